package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"autosub/internal/api"
	"autosub/internal/progress"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var isBatch bool
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream live progress for a job or batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			handle := func(frame api.WatchFrame) error {
				switch frame.Kind {
				case "snapshot":
					if frame.Job != nil {
						fmt.Fprintf(stdout, "%s  %s  %s  %s\n",
							shortID(frame.Job.ID), frame.Job.SourceFilename,
							colorStatus(frame.Job.Status, colorize), jobProgress(*frame.Job))
					}
					if frame.Batch != nil {
						fmt.Fprintf(stdout, "batch %s  %s  %d/%d done\n",
							shortID(frame.Batch.ID), colorStatus(frame.Batch.Status, colorize),
							frame.Batch.CompletedJobs, frame.Batch.TotalJobs)
						for _, job := range frame.Batch.Jobs {
							fmt.Fprintf(stdout, "  %s  %s  %s\n",
								shortID(job.ID), job.SourceFilename, colorStatus(job.Status, colorize))
						}
					}
				case "event":
					if frame.Event != nil {
						printEvent(stdout, *frame.Event, colorize)
					}
				}
				return nil
			}
			if isBatch {
				return ctx.client().WatchBatch(cmd.Context(), args[0], handle)
			}
			return ctx.client().WatchJob(cmd.Context(), args[0], handle)
		},
	}
	cmd.Flags().BoolVar(&isBatch, "batch", false, "Treat the id as a batch id")
	return cmd
}

func printEvent(stdout io.Writer, ev progress.Event, colorize bool) {
	switch ev.Type {
	case progress.EventStageStarted:
		fmt.Fprintf(stdout, "%s  stage %s started (%d/%d)\n", shortID(ev.JobID), ev.Stage, ev.Step+1, ev.TotalSteps)
	case progress.EventStageCompleted:
		fmt.Fprintf(stdout, "%s  stage %s completed\n", shortID(ev.JobID), ev.Stage)
	case progress.EventTerminal:
		fmt.Fprintf(stdout, "%s  %s", shortID(ev.JobID), colorStatus(string(ev.Status), colorize))
		if ev.Message != "" {
			fmt.Fprintf(stdout, "  %s", ev.Message)
		}
		fmt.Fprintln(stdout)
	default:
		fmt.Fprintf(stdout, "%s  %s %s", shortID(ev.JobID), ev.Stage, formatPercent(ev.Percent))
		if ev.Message != "" {
			fmt.Fprintf(stdout, "  %s", ev.Message)
		}
		fmt.Fprintln(stdout)
	}
}
