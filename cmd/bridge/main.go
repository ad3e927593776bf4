// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/sensors_bridge/internal/app"
	"github.com/relabs-tech/sensors_bridge/internal/config"
	"github.com/relabs-tech/sensors_bridge/internal/logging"
	"github.com/relabs-tech/sensors_bridge/internal/sensors"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "bridge",
		Short:        "Location and gyroscope sensor bridge",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (empty: environment and defaults only)")
	root.AddCommand(serveCmd(), locationCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	if err := config.InitGlobal(configPath); err != nil {
		return nil, nil, err
	}
	cfg := config.Get()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon (HTTP, WebSocket, MQTT, Kafka)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting sensors bridge", slog.String("source_mode", cfg.SourceMode))
			return app.RunBridge(ctx, cfg, logger)
		},
	}
}

func locationCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Print the current location once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			reading, err := app.CurrentLocation(ctx, cfg, wait, logger)
			if err != nil {
				var se *sensors.Error
				if errors.As(err, &se) {
					enc.Encode(se)
				}
				return err
			}
			return enc.Encode(reading)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "how long to wait for a first fix")
	return cmd
}
