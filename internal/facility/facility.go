// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package facility provides the OS-level building blocks for port
// reclamation: port-indexed process lookups and a signal-based killer.
//
// Lookups map a TCP port to the process ids currently listening on it.
// That mapping is the only permitted way to select a termination target;
// selecting processes by name or command-line pattern is not supported
// anywhere in this package, because the invoking process may itself match
// such a pattern.
package facility

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates the facility's underlying tool is not
	// present on this host. Callers escalate to the next facility.
	ErrUnavailable = errors.New("termination facility unavailable")

	// ErrPermission indicates a signal was refused by the kernel because
	// the target process belongs to another user.
	ErrPermission = errors.New("permission denied")

	// ErrSelfTarget indicates a lookup returned the invoking process (or
	// its process group) as a termination target. The signal is never sent.
	ErrSelfTarget = errors.New("refusing to signal own process")
)

// Lookup resolves which process ids currently hold a TCP port for listening.
type Lookup interface {
	// Name identifies the facility in logs and reports.
	Name() string

	// Available reports whether the underlying tool exists on this host.
	Available() bool

	// OwnerPIDs returns the pids listening on port. An empty slice means
	// the facility ran and found no owner; ErrUnavailable means it could
	// not run at all.
	OwnerPIDs(ctx context.Context, port int) ([]int, error)
}

// Killer terminates a single process by pid.
type Killer interface {
	Kill(pid int) error
}
