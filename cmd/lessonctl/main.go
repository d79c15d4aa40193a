package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd 构建完整命令树
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lessonctl",
		Short:         "lessonctl - 课程录音处理服务命令行工具",
		Long:          "通过命令行调用 refret 服务端 HTTP API：上传录音、查看处理状态、获取转写/摘要/波形、重跑阶段。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newLessonCmd())
	rootCmd.AddCommand(newArtifactCmd())
	rootCmd.AddCommand(newRegionCmd())
	rootCmd.AddCommand(newTagsCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newLickCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(newSettingsCmd())
	return rootCmd
}
