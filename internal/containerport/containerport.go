// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package containerport frees host ports that are published by Docker
// containers. The process listening on such a port is docker-proxy, and
// signalling it leaves the container's port mapping in place; the only
// correct release is stopping the publishing container.
package containerport

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// stopTimeout is how long a container gets to stop gracefully before the
// daemon kills it.
const stopTimeout = 10 * time.Second

// Manager locates and stops containers by the host port they publish.
type Manager struct {
	client *client.Client
}

// New creates a Manager from the ambient Docker environment. It also
// pings the daemon: a host without a reachable daemon should disable the
// container layer rather than fail every lookup later.
func New(ctx context.Context) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &Manager{client: cli}, nil
}

// Close closes the Docker client connection.
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Holder returns the id of a running container that publishes the given
// host port, if any.
func (m *Manager) Holder(ctx context.Context, port int) (string, bool, error) {
	containers, err := m.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return "", false, fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		for _, p := range c.Ports {
			if int(p.PublicPort) == port {
				return c.ID, true, nil
			}
		}
	}
	return "", false, nil
}

// Release stops the container. A container that is already gone is not an
// error; the point is the port, not the container.
func (m *Manager) Release(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}

	timeout := int(stopTimeout.Seconds())
	err := m.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	return nil
}
