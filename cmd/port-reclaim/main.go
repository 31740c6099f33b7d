// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// port-reclaim frees a set of TCP ports by terminating whatever currently
// listens on them, then re-verifying. Ports come from arguments
// ("5278" or "5278:backend") or from the e2e config file.
//
// Exit code 0 means every port ended unoccupied; 1 means at least one
// port is still held. The e2e harness ignores this code on purpose;
// manual callers usually do not.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"port-reclaim/internal/config"
	"port-reclaim/internal/containerport"
	"port-reclaim/internal/reclaim"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to e2e config (default e2e.yaml when no ports are given)")
		timeout    = flag.Duration("timeout", 5*time.Second, "deadline for the whole batch")
		docker     = flag.Bool("docker", false, "also stop containers publishing a listed port")
		asJSON     = flag.Bool("json", false, "print the report as JSON")
	)
	flag.Usage = printUsage
	flag.Parse()

	setupLogging()

	specs, err := collectSpecs(flag.Args(), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "port-reclaim: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	r := reclaim.New()
	if *docker {
		if m, derr := containerport.New(ctx); derr == nil {
			defer m.Close()
			r.SetContainers(m)
		} else {
			slog.Warn("docker unavailable, skipping container handling", "error", derr)
		}
	}

	report, err := r.Reclaim(ctx, specs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "port-reclaim: %v\n", err)
		os.Exit(2)
	}

	if *asJSON {
		printJSON(report)
	} else {
		printReport(report)
	}

	if !report.Success() {
		os.Exit(1)
	}
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

// collectSpecs builds the port list from args, falling back to the config
// file when no args are given.
func collectSpecs(args []string, configPath string) ([]reclaim.PortSpec, error) {
	if len(args) > 0 {
		specs := make([]reclaim.PortSpec, 0, len(args))
		for _, arg := range args {
			spec, err := parsePortArg(arg)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return specs, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var specs []reclaim.PortSpec
	for _, svc := range cfg.Services {
		if !seen[svc.Port] {
			seen[svc.Port] = true
			specs = append(specs, reclaim.PortSpec{Port: svc.Port, Label: svc.Name})
		}
	}
	for _, p := range cfg.Ports {
		if !seen[p.Port] {
			seen[p.Port] = true
			specs = append(specs, reclaim.PortSpec{Port: p.Port, Label: p.Label})
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no ports listed in %s", configPathOrDefault(configPath))
	}
	return specs, nil
}

func configPathOrDefault(path string) string {
	if path == "" {
		return config.DefaultPath
	}
	return path
}

// parsePortArg parses "PORT" or "PORT:label". The port must be numeric;
// range checking is left to the reclaimer so a bad entry still shows up
// in the report instead of aborting the batch.
func parsePortArg(arg string) (reclaim.PortSpec, error) {
	portStr, label, _ := strings.Cut(arg, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return reclaim.PortSpec{}, fmt.Errorf("invalid port argument %q", arg)
	}
	return reclaim.PortSpec{Port: port, Label: label}, nil
}

func printReport(report reclaim.Report) {
	for _, res := range report.Results {
		glyph := "✓"
		if res.Outcome == reclaim.StillOccupied {
			glyph = "✗"
		}
		fmt.Printf("%s %s\n", glyph, res)
	}

	if report.Success() {
		fmt.Printf("\n%d port(s) clear\n", len(report.Results))
	} else {
		fmt.Printf("\n%d of %d port(s) still occupied\n",
			len(report.Occupied()), len(report.Results))
	}
}

func printJSON(report reclaim.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "port-reclaim: encode report: %v\n", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: port-reclaim [flags] [port[:label] ...]

Frees TCP ports before e2e servers are started on them. With no port
arguments the port list is read from the e2e config file.

Examples:
  port-reclaim 5278:backend 5279:worker 3101:frontend
  port-reclaim -config e2e.yaml -timeout 10s
  port-reclaim -json 5278

Flags:
`)
	flag.PrintDefaults()
}
