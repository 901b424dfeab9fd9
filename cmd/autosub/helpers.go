package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"autosub/internal/api"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.0f%%", value)
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	elapsed := time.Since(t)
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds ago", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%.1fh ago", elapsed.Hours())
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case "completed":
		return text.FgGreen.Sprint(status)
	case "failed":
		return text.FgRed.Sprint(status)
	case "processing":
		return text.FgCyan.Sprint(status)
	case "cancelled", "partial":
		return text.FgYellow.Sprint(status)
	default:
		return status
	}
}

func jobProgress(job api.JobView) string {
	if job.Status == "processing" && job.CurrentStage != "" {
		return fmt.Sprintf("%s %s (%d/%d)", formatPercent(job.ProgressPercent), job.CurrentStage, job.StepIndex+1, job.TotalSteps)
	}
	return formatPercent(job.ProgressPercent)
}

func jobRow(job api.JobView, colorize bool) []string {
	return []string{
		shortID(job.ID),
		job.SourceFilename,
		colorStatus(job.Status, colorize),
		job.SourceLanguage + "->" + job.TargetLanguage,
		jobProgress(job),
		formatAge(job.CreatedAt),
	}
}

func batchRow(batch api.BatchView, colorize bool) []string {
	name := batch.Name
	if name == "" {
		name = "-"
	}
	return []string{
		shortID(batch.ID),
		name,
		colorStatus(batch.Status, colorize),
		fmt.Sprintf("%d/%d", batch.CompletedJobs, batch.TotalJobs),
		fmt.Sprintf("%d", batch.FailedJobs),
		formatAge(batch.CreatedAt),
	}
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
