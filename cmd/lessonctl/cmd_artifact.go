package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "获取处理产物 (音频、转写、摘要、波形)",
	}
	cmd.AddCommand(newArtifactAudioCmd())
	cmd.AddCommand(newArtifactJSONCmd("transcript", "获取转写结果", "transcript"))
	cmd.AddCommand(newArtifactJSONCmd("summary", "获取课程摘要", "summary"))
	cmd.AddCommand(newArtifactPeaksCmd())
	return cmd
}

func newArtifactAudioCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "audio <id> <track>",
		Short: "下载音轨: original / vocals / accompaniment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			out := mustGetString(cmd, "file")
			if out == "" {
				out = fmt.Sprintf("%s-%s.mp3", args[0], args[1])
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}

			n, err := NewAPIClient(cfg).Download(cmd.Context(), lessonPath(args[0], "audio", args[1]), f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, n)
			return nil
		},
	}
	c.Flags().StringP("file", "f", "", "输出文件（默认: <id>-<track>.mp3）")
	return c
}

func newArtifactJSONCmd(use, short, sub string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), lessonPath(args[0], sub))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newArtifactPeaksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peaks <id> <track>",
		Short: "获取波形峰值",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), lessonPath(args[0], "peaks", args[1]))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}
