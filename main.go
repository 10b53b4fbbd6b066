package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PrivacyIsAllYouNeed/protector/internal/config"
	"github.com/PrivacyIsAllYouNeed/protector/internal/logging"
	"github.com/PrivacyIsAllYouNeed/protector/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "protector: load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "protector: init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logging.Component(logger, "main")

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		sugar.Fatalw("failed to build pipeline", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sugar.Infow("pipeline starting", "ingress_url", cfg.IngressURL, "egress_url", cfg.EgressURL)
	if err := sup.Start(ctx); err != nil {
		sugar.Fatalw("pipeline exited with error", "error", err)
	}
	sugar.Infow("pipeline stopped")
}
