// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package harness is the e2e global setup: reclaim every configured port,
// then boot the configured services in dependency order and wait for each
// to pass its health check.
//
// A failed reclamation is a warning, not a setup failure. A port the
// harness could not free usually belongs to a process the developer wants
// (e.g. their own dev server); aborting the run would hide the real
// signal, which is the bind failure of the server that follows.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"port-reclaim/internal/config"
	"port-reclaim/internal/containerport"
	"port-reclaim/internal/reclaim"
)

// Harness owns the setup and teardown of one e2e run.
type Harness struct {
	cfg     *config.Config
	rec     *reclaim.Reclaimer
	sm      *ServerManager
	log     *slog.Logger
	handles []*ServerHandle
}

// New creates a Harness for the given configuration.
func New(cfg *config.Config) *Harness {
	return &Harness{
		cfg: cfg,
		rec: reclaim.New(),
		sm:  NewServerManager(),
		log: slog.Default(),
	}
}

// SetReclaimer overrides the reclaimer (useful for testing).
func (h *Harness) SetReclaimer(r *reclaim.Reclaimer) {
	h.rec = r
}

// SetServerManager overrides the server manager (useful for testing).
func (h *Harness) SetServerManager(sm *ServerManager) {
	h.sm = sm
}

// SetLogger overrides the logger.
func (h *Harness) SetLogger(log *slog.Logger) {
	h.log = log
}

// Handles returns the booted services in start order.
func (h *Harness) Handles() []*ServerHandle {
	return h.handles
}

// Setup reclaims ports, then boots services in dependency order. Only a
// boot failure (or a dependency cycle) is an error; stuck ports are
// logged and the run proceeds.
func (h *Harness) Setup(ctx context.Context) error {
	h.reclaimPorts(ctx)

	order, err := startOrder(h.cfg.Services)
	if err != nil {
		return err
	}

	byName := make(map[string]config.ServiceConfig, len(h.cfg.Services))
	for _, svc := range h.cfg.Services {
		byName[svc.Name] = svc
	}

	for _, name := range order {
		svc := byName[name]
		h.log.Info("starting service", "service", svc.Name, "port", svc.Port)

		handle, err := h.sm.Boot(ctx, svc)
		if err != nil {
			h.log.Error("service failed to start, tearing down", "service", svc.Name, "error", err)
			_ = h.Teardown()
			return fmt.Errorf("boot %s: %w", svc.Name, err)
		}

		h.handles = append(h.handles, handle)
		h.log.Info("service ready", "service", handle.Name, "url", handle.BaseURL, "pid", handle.PID)
	}

	return nil
}

// reclaimPorts frees the configured ports, logging a warning for each one
// that stays occupied.
func (h *Harness) reclaimPorts(ctx context.Context) {
	specs := h.portSpecs()
	if len(specs) == 0 {
		return
	}

	if h.cfg.Docker {
		if m, err := containerport.New(ctx); err == nil {
			defer m.Close()
			h.rec.SetContainers(m)
		} else {
			h.log.Warn("docker unavailable, container-published ports will not be reclaimed", "error", err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, h.cfg.ReclaimTimeout())
	defer cancel()

	report, err := h.rec.Reclaim(rctx, specs)
	if err != nil {
		h.log.Warn("port reclamation did not run", "error", err)
		return
	}

	for _, res := range report.Results {
		if res.Outcome == reclaim.StillOccupied {
			h.log.Warn("port still occupied, proceeding anyway",
				"port", res.Spec.Port, "label", res.Spec.Label, "reason", res.Reason)
		} else {
			h.log.Info("port reclaimed", "port", res.Spec.Port, "outcome", res.Outcome.String())
		}
	}
}

// portSpecs merges the standalone port list with each service's port,
// deduplicated, service ports first.
func (h *Harness) portSpecs() []reclaim.PortSpec {
	seen := make(map[int]bool)
	var specs []reclaim.PortSpec

	for _, svc := range h.cfg.Services {
		if seen[svc.Port] {
			continue
		}
		seen[svc.Port] = true
		specs = append(specs, reclaim.PortSpec{Port: svc.Port, Label: svc.Name})
	}
	for _, p := range h.cfg.Ports {
		if seen[p.Port] {
			continue
		}
		seen[p.Port] = true
		specs = append(specs, reclaim.PortSpec{Port: p.Port, Label: p.Label})
	}
	return specs
}

// Teardown stops every booted service in reverse start order.
func (h *Harness) Teardown() error {
	var errs []error
	for i := len(h.handles) - 1; i >= 0; i-- {
		handle := h.handles[i]
		h.log.Info("stopping service", "service", handle.Name, "pid", handle.PID)
		if err := h.sm.Shutdown(handle); err != nil {
			errs = append(errs, err)
		}
	}
	h.handles = nil
	return errors.Join(errs...)
}
