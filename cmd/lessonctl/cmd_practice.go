package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func lickPath(id string) string {
	return "/api/v1/licks/" + url.PathEscape(id)
}

func newLickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lick",
		Short: "乐句管理（课程中保存的片段）",
	}
	cmd.AddCommand(newLickListCmd())
	cmd.AddCommand(newLickCreateCmd())
	cmd.AddCommand(newLickGetCmd())
	cmd.AddCommand(newLickUpdateCmd())
	cmd.AddCommand(newLickDeleteCmd())
	return cmd
}

func newLickListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "列出乐句",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			path := "/api/v1/licks"
			if lesson := mustGetString(cmd, "lesson"); lesson != "" {
				path = lessonPath(lesson, "licks")
			}
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), path)
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			return printLickTable(cmd.OutOrStdout(), resp)
		},
	}
	c.Flags().String("lesson", "", "只列出该课程的乐句")
	return c
}

func newLickCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create <lesson-id>",
		Short: "保存课程中的一段区间",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			start, _ := cmd.Flags().GetFloat64("start")
			end, _ := cmd.Flags().GetFloat64("end")
			body := map[string]any{
				"lesson_id": args[0],
				"title":     mustGetString(cmd, "title"),
				"start":     start,
				"end":       end,
				"tags":      splitTags(mustGetString(cmd, "tags")),
				"memo":      mustGetString(cmd, "memo"),
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "POST", "/api/v1/licks", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().String("title", "", "标题（必选）")
	c.Flags().Float64("start", 0, "起始秒（必选）")
	c.Flags().Float64("end", 0, "结束秒（必选）")
	c.Flags().String("tags", "", "标签，逗号分隔")
	c.Flags().String("memo", "", "备注")
	_ = c.MarkFlagRequired("title")
	_ = c.MarkFlagRequired("start")
	_ = c.MarkFlagRequired("end")
	return c
}

func newLickGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "获取乐句详情",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), lickPath(args[0]))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newLickUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update <id>",
		Short: "修改乐句",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body := map[string]any{}
			addOptionalString(cmd, body, "title")
			addOptionalString(cmd, body, "memo")
			addOptionalString(cmd, body, "abc")
			for _, flag := range []string{"start", "end"} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetFloat64(flag)
					body[flag] = v
				}
			}
			if cmd.Flags().Changed("tags") {
				body["tags"] = splitTags(mustGetString(cmd, "tags"))
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update: set --title, --start, --end, --tags, --memo or --abc")
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "PUT", lickPath(args[0]), body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().String("title", "", "新标题")
	c.Flags().Float64("start", 0, "新起始秒")
	c.Flags().Float64("end", 0, "新结束秒")
	c.Flags().String("tags", "", "新标签，逗号分隔，空字符串清空")
	c.Flags().String("memo", "", "新备注")
	c.Flags().String("abc", "", "ABC 记谱")
	return c
}

func newLickDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "删除乐句",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "DELETE", lickPath(args[0]), nil)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "练习日志",
	}
	cmd.AddCommand(newJournalListCmd())
	cmd.AddCommand(newJournalAddCmd())
	cmd.AddCommand(newJournalStatsCmd())
	cmd.AddCommand(newJournalDeleteCmd())
	return cmd
}

func newJournalListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "列出练习记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			q := url.Values{}
			for _, flag := range []string{"start", "end"} {
				if v := mustGetString(cmd, flag); v != "" {
					q.Set(flag, v)
				}
			}
			path := "/api/v1/journal"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), path)
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			return printJournalTable(cmd.OutOrStdout(), resp)
		},
	}
	c.Flags().String("start", "", "起始日期 YYYY-MM-DD（含）")
	c.Flags().String("end", "", "结束日期 YYYY-MM-DD（含）")
	return c
}

func newJournalAddCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "add <date>",
		Short: "记录一次练习（日期 YYYY-MM-DD）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			minutes, _ := cmd.Flags().GetInt("minutes")
			body := map[string]any{
				"date":             args[0],
				"duration_minutes": minutes,
				"notes":            mustGetString(cmd, "notes"),
				"tags":             splitTags(mustGetString(cmd, "tags")),
				"sentiment":        mustGetString(cmd, "sentiment"),
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "POST", "/api/v1/journal", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().Int("minutes", 0, "练习时长（分钟）")
	c.Flags().String("notes", "", "笔记")
	c.Flags().String("tags", "", "标签，逗号分隔")
	c.Flags().String("sentiment", "", "感受")
	return c
}

func newJournalStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "练习统计（总时长、本周时长、每日热力图）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), "/api/v1/journal/stats")
			if err != nil {
				return err
			}
			if cfg.Output == "json" {
				return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
			}
			var stats struct {
				Heatmap      []struct{} `json:"heatmap"`
				TotalMinutes int        `json:"total_minutes"`
				WeekMinutes  int        `json:"week_minutes"`
			}
			if err := unmarshalResponse(resp, &stats); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d min\nthis week: %d min\ndays practised: %d\n",
				stats.TotalMinutes, stats.WeekMinutes, len(stats.Heatmap))
			return nil
		},
	}
}

func newJournalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "删除练习记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "DELETE", "/api/v1/journal/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "运行时 LLM 设置",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "查看当前生效的设置",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), "/api/v1/settings")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	})
	cmd.AddCommand(newSettingsSetCmd())
	return cmd
}

func newSettingsSetCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "set",
		Short: "修改设置，空字符串恢复配置默认值",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body := map[string]any{}
			addOptionalString(cmd, body, "provider", "llm_provider")
			addOptionalString(cmd, body, "model", "llm_model")
			addOptionalString(cmd, body, "system-prompt", "system_prompt")
			addOptionalString(cmd, body, "api-key", "openai_api_key")
			if len(body) == 0 {
				return fmt.Errorf("nothing to update: set --provider, --model, --system-prompt or --api-key")
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), "POST", "/api/v1/settings", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().String("provider", "", "LLM 提供方: openai 或 ollama")
	c.Flags().String("model", "", "模型名")
	c.Flags().String("system-prompt", "", "摘要系统提示词")
	c.Flags().String("api-key", "", "OpenAI API Key")
	return c
}
