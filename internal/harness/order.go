// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package harness

import (
	"fmt"

	"github.com/gammazero/toposort"

	"port-reclaim/internal/config"
)

// startOrder performs a topological sort over service dependencies and
// returns service names in safe start order.
func startOrder(services []config.ServiceConfig) ([]string, error) {
	if len(services) == 0 {
		return []string{}, nil
	}

	edges := make([]toposort.Edge, 0)
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			edges = append(edges, toposort.Edge{dep, svc.Name})
		}
	}

	if len(edges) == 0 {
		order := make([]string, 0, len(services))
		for _, svc := range services {
			order = append(order, svc.Name)
		}
		return order, nil
	}

	sortedNodes, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("cycle in service dependencies: %w", err)
	}

	inSorted := make(map[string]bool, len(sortedNodes))
	order := make([]string, 0, len(services))
	for _, node := range sortedNodes {
		name := node.(string)
		inSorted[name] = true
		order = append(order, name)
	}

	// Services with no dependency edges are still part of the run; start
	// them first.
	for _, svc := range services {
		if !inSorted[svc.Name] {
			order = append([]string{svc.Name}, order...)
		}
	}

	return order, nil
}
