package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"autosub/internal/language"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var batchID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			jobs, err := ctx.client().ListJobs(cmd.Context(), statuses, batchID, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(stdout, "No jobs")
				return nil
			}
			colorize := shouldColorize(stdout)
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, jobRow(job, colorize))
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"ID", "File", "Status", "Languages", "Progress", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (queued, processing, completed, failed, cancelled)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Filter by batch id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to list")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			job, err := ctx.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			colorize := shouldColorize(stdout)
			fmt.Fprintf(stdout, "Job %s\n", job.ID)
			fmt.Fprintf(stdout, "  File:       %s\n", job.InputPath)
			fmt.Fprintf(stdout, "  Status:     %s\n", colorStatus(job.Status, colorize))
			fmt.Fprintf(stdout, "  Languages:  %s -> %s\n", describeLanguage(job.SourceLanguage), describeLanguage(job.TargetLanguage))
			if job.DetectedLanguage != "" {
				fmt.Fprintf(stdout, "  Detected:   %s\n", describeLanguage(job.DetectedLanguage))
			}
			fmt.Fprintf(stdout, "  Formats:    %s\n", joinOrDash(job.OutputFormats))
			fmt.Fprintf(stdout, "  Diarize:    %s   Burn-in: %s\n", yesNo(job.Diarize), yesNo(job.BurnIn))
			fmt.Fprintf(stdout, "  Stages:     %s\n", strings.Join(job.Stages, " -> "))
			fmt.Fprintf(stdout, "  Progress:   %s\n", jobProgress(*job))
			if job.BatchID != "" {
				fmt.Fprintf(stdout, "  Batch:      %s\n", job.BatchID)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(stdout, "  Error:      %s (retryable: %s)\n", job.ErrorMessage, yesNo(job.Retryable))
			}
			if len(job.SubtitlePaths) > 0 {
				fmt.Fprintln(stdout, "  Subtitles:")
				for format, path := range job.SubtitlePaths {
					fmt.Fprintf(stdout, "    %s: %s\n", format, path)
				}
			}
			if job.BurnedVideoPath != "" {
				fmt.Fprintf(stdout, "  Hardsub:    %s\n", job.BurnedVideoPath)
			}
			fmt.Fprintf(stdout, "  Created:    %s\n", formatAge(job.CreatedAt))
			if job.CompletedAt != nil {
				fmt.Fprintf(stdout, "  Finished:   %s\n", formatAge(*job.CompletedAt))
			}
			return nil
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var isBatch bool
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job or, with --batch, a whole batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if isBatch {
				result, err := ctx.client().CancelBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Batch cancel: %d cancelled, %d flagged, %d already finished\n",
					result.Cancelled, result.Flagged, result.Skipped)
				return nil
			}
			result, err := ctx.client().CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch result.Outcome {
			case "cancelled":
				fmt.Fprintln(stdout, "Job cancelled")
			case "flagged":
				fmt.Fprintln(stdout, "Cancellation requested; the job stops at the next stage boundary")
			default:
				fmt.Fprintln(stdout, "Job already finished; nothing to cancel")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&isBatch, "batch", false, "Treat the id as a batch id")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var isBatch bool
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a failed or cancelled job, or a batch's failed members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if isBatch {
				result, err := ctx.client().RetryBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Re-queued %d failed jobs\n", result.Retried)
				return nil
			}
			result, err := ctx.client().RetryJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.Job != nil {
				fmt.Fprintf(stdout, "Re-queued job %s; it resumes after its last completed stage\n", shortID(result.Job.ID))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&isBatch, "batch", false, "Treat the id as a batch id")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var isBatch bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a finished job or batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if isBatch {
				if err := ctx.client().DeleteBatch(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Batch deleted")
				return nil
			}
			if err := ctx.client().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Job deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&isBatch, "batch", false, "Treat the id as a batch id")
	return cmd
}

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			batches, err := ctx.client().ListBatches(cmd.Context())
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Fprintln(stdout, "No batches")
				return nil
			}
			colorize := shouldColorize(stdout)
			rows := make([][]string, 0, len(batches))
			for _, batch := range batches {
				rows = append(rows, batchRow(batch, colorize))
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"ID", "Name", "Status", "Done", "Failed", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func describeLanguage(code string) string {
	if name := language.DisplayName(code); name != "" && !strings.EqualFold(name, code) {
		return fmt.Sprintf("%s (%s)", name, code)
	}
	return code
}
