// Command allo-server exposes the allocation/usage pipeline over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/app"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/config"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts"
)

func main() {
	configPath := flag.String("config", "", "config file (defaults to ALLO_CONFIG_FILE or ./config.yaml)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *version {
		fmt.Println(contracts.GetFullVersionString("allo-server"))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", slog.String("error", err.Error()))
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx := context.Background()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	serveErr := application.Serve(ctx)
	if err := application.Stop(context.Background()); err != nil {
		logger.Warn("Shutdown incomplete", slog.String("error", err.Error()))
	}
	if serveErr != nil {
		logger.Error("Application error", slog.String("error", serveErr.Error()))
		os.Exit(1)
	}
}
