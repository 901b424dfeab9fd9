package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autosub/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var since uint64
	var limit int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Fetch buffered daemon log events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client := ctx.client()

			cursor := since
			for {
				resp, err := client.Logs(cmd.Context(), cursor, limit)
				if err != nil {
					return err
				}
				for _, event := range resp.Events {
					fmt.Fprintln(stdout, formatLogEvent(event))
				}
				if !follow {
					return nil
				}
				cursor = resp.Next
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "Fetch events after this cursor (0 tails recent events)")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum events per fetch")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll for new events until interrupted")
	return cmd
}

func formatLogEvent(event logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(event.Timestamp.Local().Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(event.Level)
	b.WriteString(" ")
	b.WriteString(event.Message)
	if event.JobID != "" {
		fmt.Fprintf(&b, " job=%s", shortID(event.JobID))
	}
	if event.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", event.Stage)
	}
	return b.String()
}
