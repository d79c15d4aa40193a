package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLessonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "课程管理 (上传、查询、状态、重跑、删除)",
	}
	cmd.AddCommand(newLessonUploadCmd())
	cmd.AddCommand(newLessonListCmd())
	cmd.AddCommand(newLessonGetCmd())
	cmd.AddCommand(newLessonUpdateCmd())
	cmd.AddCommand(newLessonDeleteCmd())
	cmd.AddCommand(newLessonStatusCmd())
	cmd.AddCommand(newLessonRerunCmd())
	return cmd
}

func lessonPath(id string, parts ...string) string {
	p := "/api/v1/lessons/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func newLessonUploadCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "upload <file>",
		Short: "上传录音并启动处理流水线",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)

			fields := map[string]string{
				"title":      mustGetString(cmd, "title"),
				"tags":       mustGetString(cmd, "tags"),
				"memo":       mustGetString(cmd, "memo"),
				"created_at": mustGetString(cmd, "created-at"),
			}
			resp, err := client.Upload(cmd.Context(), "/api/v1/lessons", args[0], fields)
			if err != nil {
				return err
			}

			wait, _ := cmd.Flags().GetBool("wait")
			if !wait {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			var created struct {
				ID string `json:"id"`
			}
			if err := unmarshalResponse(resp, &created); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "lesson %s queued\n", created.ID)
			return waitAndReport(cmd, client, created.ID)
		},
	}
	c.Flags().String("title", "", "标题（默认使用文件名）")
	c.Flags().String("tags", "", "标签，逗号分隔")
	c.Flags().String("memo", "", "备注")
	c.Flags().String("created-at", "", "录制日期: RFC3339 或 YYYY-MM-DD")
	addWaitFlags(c)
	return c
}

func newLessonListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出所有课程",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), "/api/v1/lessons")
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			return printLessonTable(cmd.OutOrStdout(), resp)
		},
	}
}

func newLessonGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "获取课程详情（元数据、产物、状态）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), lessonPath(args[0]))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newLessonUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update <id>",
		Short: "修改标题、标签、备注",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body := map[string]any{}
			addOptionalString(cmd, body, "title")
			addOptionalString(cmd, body, "memo")
			if cmd.Flags().Changed("tags") {
				body["tags"] = splitTags(mustGetString(cmd, "tags"))
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update: set --title, --tags or --memo")
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "PATCH", lessonPath(args[0]), body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().String("title", "", "新标题")
	c.Flags().String("tags", "", "新标签，逗号分隔，空字符串清空")
	c.Flags().String("memo", "", "新备注")
	return c
}

func newLessonDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "删除课程及其全部产物",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "DELETE", lessonPath(args[0]), nil)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newLessonStatusCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "status <id>",
		Short: "查看流水线状态",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				return waitAndReport(cmd, client, args[0])
			}
			resp, err := client.Get(cmd.Context(), lessonPath(args[0], "status"))
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			var rec statusRecord
			if err := unmarshalResponse(resp, &rec); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatStatus(rec))
			return nil
		},
	}
	addWaitFlags(c)
	return c
}

func newLessonRerunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:       "rerun <id> <stage>",
		Short:     "重跑单个阶段: separate / transcribe / summarize / peaks",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"separate", "transcribe", "summarize", "peaks"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			resp, err := client.Request(cmd.Context(), "POST", lessonPath(args[0], "stages", args[1], "rerun"), nil)
			if err != nil {
				return err
			}
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				return waitAndReport(cmd, client, args[0])
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	addWaitFlags(c)
	return c
}

func addWaitFlags(c *cobra.Command) {
	c.Flags().Bool("wait", false, "等待处理完成")
	c.Flags().Duration("interval", 2*time.Second, "--wait 时的轮询间隔")
}

// waitAndReport 轮询到终态，失败时返回错误
func waitAndReport(cmd *cobra.Command, client *APIClient, id string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	rec, err := client.WaitForStatus(ctx, id, interval, func(r statusRecord) {
		fmt.Fprintln(out, formatStatus(r))
	})
	if err != nil {
		return err
	}
	if rec.Status == "failed" {
		return fmt.Errorf("lesson %s failed: %s", id, rec.Message)
	}
	return nil
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
