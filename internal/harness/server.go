// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package harness

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"syscall"
	"time"

	"port-reclaim/internal/config"
)

// ServerHandle represents one running e2e service process.
type ServerHandle struct {
	Name    string
	Port    int
	Cmd     *exec.Cmd
	BaseURL string
	PID     int
}

// ServerManager boots configured services and tears them down. Each
// service runs in its own process group so the whole tree dies with it.
type ServerManager struct {
	healthTimeout  time.Duration
	healthInterval time.Duration
}

// NewServerManager creates a manager with a 10s readiness deadline and a
// 200ms health poll interval per service.
func NewServerManager() *ServerManager {
	return &ServerManager{
		healthTimeout:  10 * time.Second,
		healthInterval: 200 * time.Millisecond,
	}
}

// SetHealthTimeout sets the per-service readiness deadline.
func (sm *ServerManager) SetHealthTimeout(timeout time.Duration) {
	sm.healthTimeout = timeout
}

// Boot starts a service and waits for its health endpoint to answer 200
// before returning. On readiness timeout the process is killed and an
// error returned.
func (sm *ServerManager) Boot(ctx context.Context, svc config.ServiceConfig) (*ServerHandle, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", svc.Command)
	if svc.Dir != "" {
		cmd.Dir = svc.Dir
	}

	// Own process group so Teardown can kill the whole tree, not just sh.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start service %s: %w", svc.Name, err)
	}

	handle := &ServerHandle{
		Name:    svc.Name,
		Port:    svc.Port,
		Cmd:     cmd,
		BaseURL: fmt.Sprintf("http://localhost:%d", svc.Port),
		PID:     cmd.Process.Pid,
	}

	healthCtx, cancel := context.WithTimeout(ctx, sm.healthTimeout)
	defer cancel()

	client := &http.Client{Timeout: 1 * time.Second}
	ticker := time.NewTicker(sm.healthInterval)
	defer ticker.Stop()

	healthURL := handle.BaseURL + svc.Health
	for {
		select {
		case <-healthCtx.Done():
			_ = sm.Shutdown(handle)
			return nil, fmt.Errorf("service %s on port %d failed to become ready within %v",
				svc.Name, svc.Port, sm.healthTimeout)

		case <-ticker.C:
			resp, err := client.Get(healthURL)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return handle, nil
			}
		}
	}
}

// Shutdown stops a service's whole process group, SIGTERM first and
// SIGKILL after a bounded wait.
func (sm *ServerManager) Shutdown(handle *ServerHandle) error {
	if handle == nil || handle.Cmd == nil || handle.Cmd.Process == nil {
		return fmt.Errorf("invalid server handle")
	}

	pgid, err := syscall.Getpgid(handle.Cmd.Process.Pid)
	if err != nil {
		return handle.Cmd.Process.Kill()
	}

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}

	done := make(chan error, 1)
	go func() {
		done <- handle.Cmd.Wait()
	}()

	select {
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return fmt.Errorf("service %s shutdown timed out, force killed", handle.Name)
	case err := <-done:
		if err != nil && err.Error() != "signal: terminated" && err.Error() != "signal: killed" {
			return err
		}
		return nil
	}
}

// IsHealthy checks whether a booted service still answers on its health
// endpoint.
func (sm *ServerManager) IsHealthy(handle *ServerHandle, healthPath string) bool {
	if handle == nil {
		return false
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(handle.BaseURL + healthPath)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
