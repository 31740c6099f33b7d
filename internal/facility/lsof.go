// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package facility

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bitfield/script"
)

// LsofLookup resolves port owners with lsof. This is the primary facility:
// `lsof -ti` emits exactly the pids bound to the port, nothing else.
type LsofLookup struct{}

// NewLsofLookup creates the lsof-backed lookup.
func NewLsofLookup() *LsofLookup {
	return &LsofLookup{}
}

func (l *LsofLookup) Name() string {
	return "lsof"
}

func (l *LsofLookup) Available() bool {
	_, err := exec.LookPath("lsof")
	return err == nil
}

// OwnerPIDs runs `lsof -nP -ti tcp:<port> -s tcp:LISTEN` and parses the
// pid-per-line output. lsof exits non-zero when no process matches, so a
// command failure with empty output is "no owners", not an error.
func (l *LsofLookup) OwnerPIDs(ctx context.Context, port int) ([]int, error) {
	if !l.Available() {
		return nil, fmt.Errorf("lsof: %w", ErrUnavailable)
	}

	cmd := fmt.Sprintf("lsof -nP -ti tcp:%d -s tcp:LISTEN", port)
	out, err := script.Exec(cmd).String()
	if err != nil && strings.TrimSpace(out) == "" {
		return nil, nil
	}

	return parsePIDLines(out), nil
}

// parsePIDLines extracts one pid per line, ignoring anything non-numeric.
func parsePIDLines(out string) []int {
	var pids []int
	for _, line := range strings.Fields(out) {
		pid, err := strconv.Atoi(line)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
