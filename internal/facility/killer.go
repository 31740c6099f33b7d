// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package facility

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// SignalKiller terminates processes with SIGTERM, escalating to SIGKILL
// after a grace period if the target is still alive.
//
// It refuses to signal the invoking process or anything in its process
// group, regardless of what a lookup returned. A cleanup tool that kills
// its own caller turns a dirty port into a hung test run.
type SignalKiller struct {
	grace        time.Duration
	pollInterval time.Duration
}

// NewSignalKiller creates a killer with a 500ms grace period between
// SIGTERM and SIGKILL.
func NewSignalKiller() *SignalKiller {
	return &SignalKiller{
		grace:        500 * time.Millisecond,
		pollInterval: 50 * time.Millisecond,
	}
}

// SetGrace overrides the SIGTERM-to-SIGKILL grace period (useful for testing).
func (k *SignalKiller) SetGrace(d time.Duration) {
	k.grace = d
}

// Kill signals pid to terminate. A pid that is already gone is success.
// Returns ErrPermission when the kernel refuses the signal and
// ErrSelfTarget when pid resolves to the caller itself.
func (k *SignalKiller) Kill(pid int) error {
	if pid <= 1 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := k.guardSelf(pid); err != nil {
		return err
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return classifySignalError(pid, err)
	}

	// Give the process a chance to exit cleanly before escalating.
	deadline := time.Now().Add(k.grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(k.pollInterval)
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return classifySignalError(pid, err)
	}
	return nil
}

// guardSelf rejects the invoking process and its process group as targets.
func (k *SignalKiller) guardSelf(pid int) error {
	self := os.Getpid()
	if pid == self || pid == os.Getppid() {
		return fmt.Errorf("pid %d: %w", pid, ErrSelfTarget)
	}
	selfPgid, err := syscall.Getpgid(self)
	if err != nil {
		return nil
	}
	if targetPgid, err := syscall.Getpgid(pid); err == nil && targetPgid == selfPgid {
		return fmt.Errorf("pid %d shares our process group: %w", pid, ErrSelfTarget)
	}
	return nil
}

// processAlive checks liveness with a null signal.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func classifySignalError(pid int, err error) error {
	switch {
	case errors.Is(err, syscall.ESRCH):
		// Already exited between lookup and signal.
		return nil
	case errors.Is(err, syscall.EPERM):
		return fmt.Errorf("pid %d: %w", pid, ErrPermission)
	default:
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
}
