// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package harness

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"port-reclaim/internal/config"
)

func TestStartOrder(t *testing.T) {
	tests := []struct {
		name     string
		services []config.ServiceConfig
		want     []string
		wantErr  bool
	}{
		{
			name:     "no services",
			services: nil,
			want:     []string{},
		},
		{
			name: "no dependencies keeps config order",
			services: []config.ServiceConfig{
				{Name: "backend"},
				{Name: "frontend"},
			},
			want: []string{"backend", "frontend"},
		},
		{
			name: "dependency ordering",
			services: []config.ServiceConfig{
				{Name: "frontend", DependsOn: []string{"backend"}},
				{Name: "backend"},
			},
			want: []string{"backend", "frontend"},
		},
		{
			name: "chain",
			services: []config.ServiceConfig{
				{Name: "frontend", DependsOn: []string{"worker"}},
				{Name: "worker", DependsOn: []string{"backend"}},
				{Name: "backend"},
			},
			want: []string{"backend", "worker", "frontend"},
		},
		{
			name: "cycle",
			services: []config.ServiceConfig{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := startOrder(tt.services)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStartOrderIncludesDisconnectedRoots(t *testing.T) {
	services := []config.ServiceConfig{
		{Name: "standalone"},
		{Name: "frontend", DependsOn: []string{"backend"}},
		{Name: "backend"},
	}

	got, err := startOrder(services)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Contains(t, got, "standalone")
	assert.Less(t, indexOf(got, "backend"), indexOf(got, "frontend"))
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestBootFailsWhenNeverHealthy(t *testing.T) {
	sm := NewServerManager()
	sm.SetHealthTimeout(1 * time.Second)

	svc := config.ServiceConfig{
		Name:    "stuck",
		Command: "sleep 30",
		Port:    freePort(t),
		Health:  "/health",
	}

	start := time.Now()
	_, err := sm.Boot(context.Background(), svc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to become ready")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sm := NewServerManager()
	handle := &ServerHandle{Name: "backend", BaseURL: srv.URL}

	assert.True(t, sm.IsHealthy(handle, "/health"))
	assert.False(t, sm.IsHealthy(handle, "/nope"))
	assert.False(t, sm.IsHealthy(nil, "/health"))
}

func TestSetupWithNoServices(t *testing.T) {
	cfg := &config.Config{
		Ports:          []config.PortConfig{{Port: freePort(t), Label: "spare"}},
		TimeoutSeconds: 2,
	}

	h := New(cfg)
	require.NoError(t, h.Setup(context.Background()))
	assert.Empty(t, h.Handles())
	require.NoError(t, h.Teardown())
}

func TestSetupFailsOnDependencyCycle(t *testing.T) {
	cfg := &config.Config{
		TimeoutSeconds: 1,
		Services: []config.ServiceConfig{
			{Name: "a", Command: "true", Port: freePort(t), DependsOn: []string{"b"}},
			{Name: "b", Command: "true", Port: freePort(t), DependsOn: []string{"a"}},
		},
	}

	h := New(cfg)
	err := h.Setup(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cycle"))
}

func TestPortSpecsMergesAndDedupes(t *testing.T) {
	cfg := &config.Config{
		Ports: []config.PortConfig{
			{Port: 5278, Label: "stale backend"},
			{Port: 9229, Label: "debugger"},
		},
		Services: []config.ServiceConfig{
			{Name: "backend", Port: 5278},
			{Name: "frontend", Port: 3101},
		},
	}

	h := New(cfg)
	specs := h.portSpecs()
	require.Len(t, specs, 3)

	// Service ports come first and win label conflicts.
	assert.Equal(t, 5278, specs[0].Port)
	assert.Equal(t, "backend", specs[0].Label)
	assert.Equal(t, 3101, specs[1].Port)
	assert.Equal(t, 9229, specs[2].Port)
}

// freePort grabs an ephemeral port and releases it immediately.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}
