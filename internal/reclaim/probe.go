// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package reclaim

import (
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Prober reports whether a TCP port currently has a listener. Ownership is
// never cached across calls; every decision re-probes the live port table.
type Prober interface {
	InUse(port int) bool
}

// BindProbe detects occupancy by attempting to bind the port on all
// interfaces. A successful bind (immediately released) proves the port is
// free for the servers that will be started next, which a dial probe
// cannot: a listener bound to a non-loopback interface would be invisible
// to a loopback dial.
type BindProbe struct{}

func (BindProbe) InUse(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err == nil {
		_ = ln.Close()
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}

	// Bind failed for some other reason (typically a privileged port
	// without the privilege). Fall back to a loopback dial to settle
	// whether anything is actually listening.
	conn, derr := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 250*time.Millisecond)
	if derr == nil {
		_ = conn.Close()
		return true
	}
	return false
}
