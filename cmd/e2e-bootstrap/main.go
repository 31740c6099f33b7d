// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// e2e-bootstrap is the test harness global setup as a standalone binary:
// reclaim the configured ports, boot the configured services in
// dependency order, then hold them up until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"port-reclaim/internal/config"
	"port-reclaim/internal/harness"
)

func main() {
	configPath := flag.String("config", "", "path to e2e config (default e2e.yaml)")
	flag.Parse()

	setupLogging()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := harness.New(cfg)

	fmt.Println("Bootstrapping e2e environment...")
	if err := h.Setup(ctx); err != nil {
		log.Fatalf("Setup failed: %v", err)
	}

	for _, handle := range h.Handles() {
		fmt.Printf("✓ %s ready: %s (pid %d)\n", handle.Name, handle.BaseURL, handle.PID)
	}

	if len(h.Handles()) == 0 {
		fmt.Println("No services configured; ports reclaimed, nothing to run.")
		return
	}

	fmt.Println("\nServices up. Press Ctrl-C to tear down.")
	<-ctx.Done()

	fmt.Println("\nTearing down...")
	if err := h.Teardown(); err != nil {
		log.Fatalf("Teardown finished with errors: %v", err)
	}
	fmt.Println("✓ All services stopped")
}

func setupLogging() {
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))
}
