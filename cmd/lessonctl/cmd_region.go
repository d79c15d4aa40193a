package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRegionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "region",
		Short: "区间操作",
	}
	cmd.AddCommand(newRegionTranscribeCmd())
	return cmd
}

func newRegionTranscribeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "transcribe <id>",
		Short: "将伴奏音轨的一段转为 ABC 记谱",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			start, _ := cmd.Flags().GetFloat64("start")
			end, _ := cmd.Flags().GetFloat64("end")
			body := map[string]any{
				"lesson_id":  args[0],
				"start_time": start,
				"end_time":   end,
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "POST", "/api/v1/transcribe-region", body)
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			var out struct {
				ABC string `json:"abc"`
			}
			if err := unmarshalResponse(resp, &out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.ABC)
			return nil
		},
	}
	c.Flags().Float64("start", 0, "起始秒（必选）")
	c.Flags().Float64("end", 0, "结束秒（必选）")
	_ = c.MarkFlagRequired("start")
	_ = c.MarkFlagRequired("end")
	return c
}

func newTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "列出所有标签",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), "/api/v1/tags")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "检查服务端就绪状态与转写服务健康",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			ready, readyErr := client.Get(cmd.Context(), "/readiness")
			if readyErr != nil {
				return readyErr
			}
			if err := printOutput(cmd.OutOrStdout(), cfg.Output, ready); err != nil {
				return err
			}
			transcriber, err := client.Get(cmd.Context(), "/api/v1/services/transcriber/health")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, transcriber)
		},
	}
}

// unmarshalResponse 解析 JSON 响应
func unmarshalResponse(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
