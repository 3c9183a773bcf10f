package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mailpilot/mailpilot-api/internal/config"
	"github.com/mailpilot/mailpilot-api/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the application together and serves until
// shutdown. Separated from main so the exit path stays testable.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server.LogLevel)
	slog.SetDefault(log)

	app, err := buildApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer app.cleanup()

	return app.run()
}
