package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/mentionchat/internal/metrics"
	"github.com/Tyrowin/mentionchat/internal/observability"
	"github.com/Tyrowin/mentionchat/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	jsonLogs := flag.Bool("json-logs", false, "Write logs as JSON")
	flag.Parse()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mentionchat-server: %v\n", err)
		os.Exit(1)
	}

	log := observability.Setup(observability.Options{Output: os.Stdout, JSON: *jsonLogs, Level: config.LogLevel})
	log.Info("starting mentionchat server", "port", config.Port, "metrics_port", config.MetricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(config, metrics.New()).Run(ctx); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
