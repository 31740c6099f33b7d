// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package facility

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/bitfield/script"
)

// ssPIDPattern matches the pid field inside ss's process column, e.g.
// users:(("node",pid=1234,fd=23)).
var ssPIDPattern = regexp.MustCompile(`pid=(\d+)`)

// SSLookup resolves port owners with iproute2's ss. It is the fallback for
// hosts without lsof; ss is present on essentially every modern Linux.
type SSLookup struct{}

// NewSSLookup creates the ss-backed lookup.
func NewSSLookup() *SSLookup {
	return &SSLookup{}
}

func (s *SSLookup) Name() string {
	return "ss"
}

func (s *SSLookup) Available() bool {
	_, err := exec.LookPath("ss")
	return err == nil
}

// OwnerPIDs runs `ss -ltnpH` filtered to the port and parses pids out of
// the process column. The filter is by source port only, so every pid
// returned is an actual holder of the port.
func (s *SSLookup) OwnerPIDs(ctx context.Context, port int) ([]int, error) {
	if !s.Available() {
		return nil, fmt.Errorf("ss: %w", ErrUnavailable)
	}

	cmd := fmt.Sprintf("ss -ltnpH sport = :%d", port)
	out, err := script.Exec(cmd).String()
	if err != nil {
		return nil, fmt.Errorf("ss lookup for port %d: %w", port, err)
	}

	return parseSSPIDs(out), nil
}

// parseSSPIDs extracts unique pids from ss output lines.
func parseSSPIDs(out string) []int {
	seen := make(map[int]bool)
	var pids []int
	for _, m := range ssPIDPattern.FindAllStringSubmatch(out, -1) {
		pid, err := strconv.Atoi(m[1])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}
