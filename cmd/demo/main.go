// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/sensors_bridge/internal/app"
	"github.com/relabs-tech/sensors_bridge/internal/bridge"
	"github.com/relabs-tech/sensors_bridge/internal/location"
	"github.com/relabs-tech/sensors_bridge/internal/logging"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "bridge WebSocket endpoint")
	locInterval := flag.Int("location-interval", 1000, "location interval in ms")
	gyroInterval := flag.Int("gyro-interval", 50, "gyroscope interval in ms")
	accuracy := flag.String("accuracy", "high", "location accuracy: high, balanced or low")
	flag.Parse()

	acc, err := location.ParseAccuracy(*accuracy)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	logger, err := logging.New("info", "text", os.Stderr)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bridge.SessionConfig{
		LocationIntervalMs: *locInterval,
		GyroIntervalMs:     *gyroInterval,
		LocationAccuracy:   acc,
	}
	if err := app.RunDemo(ctx, *url, cfg, os.Stdout, logger); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
