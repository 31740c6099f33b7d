// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package reclaim

import (
	"encoding/json"
	"fmt"
)

// PortSpec identifies one TCP port to reclaim and a human-readable label
// for reporting (e.g. "backend E2E server").
type PortSpec struct {
	Port  int    `json:"port"`
	Label string `json:"label,omitempty"`
}

func (s PortSpec) String() string {
	if s.Label == "" {
		return fmt.Sprintf("port %d", s.Port)
	}
	return fmt.Sprintf("%s (%d)", s.Label, s.Port)
}

// Outcome classifies what happened to a single port during reclamation.
type Outcome int

const (
	// AlreadyFree means no process held the port; nothing was signalled.
	AlreadyFree Outcome = iota

	// FreedByPrimary means the primary facility's owners were terminated
	// and the port verified free.
	FreedByPrimary

	// FreedByFallback means an escalation (fallback facility or container
	// stop) freed the port.
	FreedByFallback

	// StillOccupied means the port remained bound; the result's Reason
	// says why.
	StillOccupied
)

func (o Outcome) String() string {
	switch o {
	case AlreadyFree:
		return "already free"
	case FreedByPrimary:
		return "freed"
	case FreedByFallback:
		return "freed via fallback"
	case StillOccupied:
		return "still occupied"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalJSON renders the outcome as its string form.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Reasons attached to StillOccupied results.
const (
	ReasonInvalidPort = "invalid port"
	ReasonPermission  = "permission denied"
	ReasonNoFacility  = "no termination facility available"
	ReasonStillBound  = "still bound after termination attempt"
	ReasonTimeout     = "timeout"
)

// PortResult is the outcome for one port. Reason is set only when the
// outcome is StillOccupied.
type PortResult struct {
	Spec    PortSpec `json:"spec"`
	Outcome Outcome  `json:"outcome"`
	Reason  string   `json:"reason,omitempty"`
}

func (r PortResult) String() string {
	if r.Outcome == StillOccupied && r.Reason != "" {
		return fmt.Sprintf("%s: %s: %s", r.Spec, r.Outcome, r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Spec, r.Outcome)
}

// Report aggregates the per-port results of one reclamation pass.
// Results are ordered as the caller supplied the specs.
type Report struct {
	Results []PortResult `json:"results"`
}

// Success reports whether every port ended unoccupied.
func (r Report) Success() bool {
	for _, res := range r.Results {
		if res.Outcome == StillOccupied {
			return false
		}
	}
	return true
}

// Occupied returns the results for ports that could not be freed.
func (r Report) Occupied() []PortResult {
	var out []PortResult
	for _, res := range r.Results {
		if res.Outcome == StillOccupied {
			out = append(out, res)
		}
	}
	return out
}
