package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autosub/internal/daemon"
	"autosub/internal/logging"
	"autosub/internal/version"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and inspect the autosub daemon",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			hub := logging.NewStreamHub(2048)
			logger, err := logging.NewFromConfig(cfg, hub)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := daemon.New(cfg, logger, daemon.Options{Version: version.Version, Hub: hub})
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := d.Start(runCtx); err != nil {
				return err
			}

			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client := ctx.client()

			status, err := client.Status(cmd.Context())
			if err != nil {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}

			fmt.Fprintf(stdout, "Daemon running (pid %d, version %s)\n", status.PID, status.Version)
			fmt.Fprintf(stdout, "Started: %s\n", status.StartedAt.Local().Format(time.RFC1123))
			fmt.Fprintf(stdout, "Workers: %d active of %d\n", status.ActiveWorkers, status.MaxWorkers)
			fmt.Fprintf(stdout, "GPU gate: %d of %d slots in use\n", status.GateInUse, status.GateCapacity)

			if len(status.QueueCounts) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			names := make([]string, 0, len(status.QueueCounts))
			for name := range status.QueueCounts {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, fmt.Sprintf("%d", status.QueueCounts[name])})
			}
			fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pid, err := daemon.ReadPID(cfg)
			if err != nil {
				return err
			}
			if pid == 0 {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find daemon process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				if errors.Is(err, os.ErrProcessDone) {
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return fmt.Errorf("signal daemon process %d: %w", pid, err)
			}

			// Wait for the API to stop answering before reporting success.
			client := ctx.client()
			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				if !client.Ping(cmd.Context()) {
					fmt.Fprintln(stdout, "Daemon stopped")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			fmt.Fprintf(stdout, "Stop signal sent to pid %d\n", pid)
			return nil
		},
	}
}
