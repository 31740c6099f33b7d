// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package reclaim frees a set of TCP ports before test servers are
// started on them. Each port goes through a bounded probe → terminate →
// fallback → verify pass; inability to free a port is a reportable
// outcome, never a crash, so callers can warn and proceed.
package reclaim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"port-reclaim/internal/facility"
)

// ContainerReleaser frees ports held on behalf of containers. When a
// container publishes a host port, the listening pid is a proxy process;
// killing it either respawns or orphans the mapping, so the container
// itself has to be stopped instead.
type ContainerReleaser interface {
	// Holder returns the id of a running container publishing the host
	// port, if any.
	Holder(ctx context.Context, port int) (string, bool, error)

	// Release stops the container.
	Release(ctx context.Context, id string) error
}

// Reclaimer frees TCP ports by terminating their owners, selected
// exclusively by port-indexed lookup. It holds no state between calls.
type Reclaimer struct {
	probe      Prober
	lookups    []facility.Lookup
	killer     facility.Killer
	containers ContainerReleaser
	log        *slog.Logger

	verifyWindow time.Duration
	pollInterval time.Duration
}

// New creates a Reclaimer with the default facilities: a bind probe,
// lsof as the primary lookup, ss as the fallback, and a SIGTERM/SIGKILL
// killer. Container handling is off until SetContainers is called.
func New() *Reclaimer {
	return &Reclaimer{
		probe:        BindProbe{},
		lookups:      []facility.Lookup{facility.NewLsofLookup(), facility.NewSSLookup()},
		killer:       facility.NewSignalKiller(),
		log:          slog.Default(),
		verifyWindow: 1 * time.Second,
		pollInterval: 100 * time.Millisecond,
	}
}

// SetProber overrides the port probe (useful for testing).
func (r *Reclaimer) SetProber(p Prober) {
	r.probe = p
}

// SetLookups overrides the lookup escalation chain. The first lookup is
// the primary facility; the rest are fallbacks, tried in order.
func (r *Reclaimer) SetLookups(lookups ...facility.Lookup) {
	r.lookups = lookups
}

// SetKiller overrides the process killer (useful for testing).
func (r *Reclaimer) SetKiller(k facility.Killer) {
	r.killer = k
}

// SetContainers enables the container-published-port escalation.
func (r *Reclaimer) SetContainers(c ContainerReleaser) {
	r.containers = c
}

// SetLogger overrides the logger.
func (r *Reclaimer) SetLogger(log *slog.Logger) {
	r.log = log
}

// SetVerifyWindow sets how long a port is re-probed after a termination
// wave before escalating.
func (r *Reclaimer) SetVerifyWindow(d time.Duration) {
	r.verifyWindow = d
}

// Reclaim attempts to free every port in specs and reports what happened
// to each. Ports are processed concurrently; results keep the caller's
// order. The context bounds the whole batch — on expiry, unresolved ports
// report StillOccupied with ReasonTimeout.
//
// A StillOccupied outcome is not an error. The error return is reserved
// for an empty batch, which indicates a caller bug.
func (r *Reclaimer) Reclaim(ctx context.Context, specs []PortSpec) (Report, error) {
	if len(specs) == 0 {
		return Report{}, errors.New("no ports to reclaim")
	}

	results := make([]PortResult, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = r.reclaimOne(gctx, spec)
			return nil
		})
	}
	_ = g.Wait()

	return Report{Results: results}, nil
}

// reclaimOne runs the probe/terminate/fallback/verify pass for one port.
func (r *Reclaimer) reclaimOne(ctx context.Context, spec PortSpec) PortResult {
	res := PortResult{Spec: spec}

	if spec.Port < 1 || spec.Port > 65535 {
		res.Outcome = StillOccupied
		res.Reason = ReasonInvalidPort
		return res
	}

	if !r.probe.InUse(spec.Port) {
		res.Outcome = AlreadyFree
		return res
	}

	var permission bool
	var anyAvailable bool

	for i, lookup := range r.lookups {
		if ctx.Err() != nil {
			break
		}
		if !lookup.Available() {
			r.log.Debug("termination facility missing, escalating",
				"facility", lookup.Name(), "port", spec.Port)
			continue
		}
		anyAvailable = true

		pids, err := lookup.OwnerPIDs(ctx, spec.Port)
		if err != nil {
			r.log.Warn("port owner lookup failed",
				"facility", lookup.Name(), "port", spec.Port, "error", err)
			continue
		}
		if len(pids) == 0 {
			// Bound per the probe, but this facility sees no owner
			// (the holder may live in another namespace). Nothing to
			// signal here; the next facility may see more.
			continue
		}

		for _, pid := range pids {
			if err := r.killer.Kill(pid); err != nil {
				if errors.Is(err, facility.ErrPermission) {
					permission = true
				}
				r.log.Warn("failed to terminate port owner",
					"facility", lookup.Name(), "port", spec.Port, "pid", pid, "error", err)
			}
		}

		if r.waitFree(ctx, spec.Port) {
			if i == 0 {
				res.Outcome = FreedByPrimary
			} else {
				res.Outcome = FreedByFallback
			}
			return res
		}
	}

	if r.containers != nil && ctx.Err() == nil {
		if freed := r.releaseContainer(ctx, spec.Port); freed {
			res.Outcome = FreedByFallback
			return res
		}
	}

	res.Outcome = StillOccupied
	switch {
	case ctx.Err() != nil:
		res.Reason = ReasonTimeout
	case permission:
		res.Reason = ReasonPermission
	case !anyAvailable:
		res.Reason = ReasonNoFacility
	default:
		res.Reason = ReasonStillBound
	}
	return res
}

// releaseContainer stops a container publishing the port, if one exists,
// and verifies the port came free.
func (r *Reclaimer) releaseContainer(ctx context.Context, port int) bool {
	id, ok, err := r.containers.Holder(ctx, port)
	if err != nil {
		r.log.Warn("container lookup failed", "port", port, "error", err)
		return false
	}
	if !ok {
		return false
	}

	r.log.Info("port is container-published, stopping container",
		"port", port, "container", id)
	if err := r.containers.Release(ctx, id); err != nil {
		r.log.Warn("container stop failed", "port", port, "container", id, "error", err)
		return false
	}
	return r.waitFree(ctx, port)
}

// waitFree re-probes the port until it comes free, the verify window
// elapses, or the context expires. A port can be re-bound by a third
// party inside this window; the caller treats that as StillOccupied.
func (r *Reclaimer) waitFree(ctx context.Context, port int) bool {
	deadline := time.Now().Add(r.verifyWindow)
	for {
		if !r.probe.InUse(port) {
			return true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.pollInterval):
		}
	}
}
