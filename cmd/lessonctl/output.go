package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// printOutput 按指定格式输出响应数据
func printOutput(w io.Writer, format string, data []byte) error {
	if format == "json" {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			// 非 JSON 数据直接输出
			fmt.Fprintln(w, string(data))
			return nil
		}
		fmt.Fprintln(w, out.String())
		return nil
	}
	fmt.Fprintln(w, string(data))
	return nil
}

type lessonRow struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`
}

// printLessonTable 以表格输出课程列表
func printLessonTable(w io.Writer, data []byte) error {
	var resp struct {
		Lessons []lessonRow `json:"lessons"`
		Total   int         `json:"total"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse lesson list: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTAGS\tCREATED")
	for _, l := range resp.Lessons {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Title, strings.Join(l.Tags, ","), l.CreatedAt)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d lesson(s)\n", resp.Total)
	return nil
}

func formatStatus(rec statusRecord) string {
	return fmt.Sprintf("%-10s %5.1f%%  %s", rec.Status, rec.Progress, rec.Message)
}

// printLickTable 以表格输出乐句列表
func printLickTable(w io.Writer, data []byte) error {
	var resp struct {
		Licks []struct {
			ID       string   `json:"id"`
			LessonID string   `json:"lesson_id"`
			Title    string   `json:"title"`
			Start    float64  `json:"start"`
			End      float64  `json:"end"`
			Tags     []string `json:"tags"`
		} `json:"licks"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse lick list: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLESSON\tTITLE\tRANGE\tTAGS")
	for _, l := range resp.Licks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f-%.1f\t%s\n", l.ID, l.LessonID, l.Title, l.Start, l.End, strings.Join(l.Tags, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d lick(s)\n", resp.Total)
	return nil
}

// printJournalTable 以表格输出练习记录
func printJournalTable(w io.Writer, data []byte) error {
	var resp struct {
		Entries []struct {
			ID              int64  `json:"id"`
			Date            string `json:"date"`
			DurationMinutes int    `json:"duration_minutes"`
			Notes           string `json:"notes"`
		} `json:"entries"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse journal: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tMINUTES\tNOTES")
	for _, e := range resp.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", e.ID, e.Date, e.DurationMinutes, e.Notes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d entr(ies)\n", resp.Total)
	return nil
}
