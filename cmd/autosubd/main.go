// Command autosubd runs the subtitle pipeline daemon in the foreground until
// SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"autosub/internal/config"
	"autosub/internal/daemon"
	"autosub/internal/logging"
	"autosub/internal/version"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}
	hub := logging.NewStreamHub(2048)
	logger, err := logging.NewFromConfig(cfg, hub)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger, daemon.Options{Version: version.Version, Hub: hub})
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("autosubd shutting down")
	d.Stop()
}
