// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "e2e.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "full configuration",
			content: `
ports:
  - port: 9229
    label: "node debugger"

timeout_seconds: 10
docker: true

services:
  - name: backend
    command: "npm run start:e2e"
    dir: "./backend"
    port: 5278
    health: /api/health
  - name: backend-worker
    command: "npm run worker:e2e"
    dir: "./backend"
    port: 5279
    depends_on: [backend]
  - name: frontend
    command: "npm run dev"
    dir: "./frontend"
    port: 3101
    depends_on: [backend]
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10*time.Second, cfg.ReclaimTimeout())
				assert.True(t, cfg.Docker)
				require.Len(t, cfg.Ports, 1)
				assert.Equal(t, "node debugger", cfg.Ports[0].Label)
				require.Len(t, cfg.Services, 3)
				assert.Equal(t, "/api/health", cfg.Services[0].Health)
				assert.Equal(t, "/health", cfg.Services[1].Health, "health path should default")
				assert.Equal(t, []string{"backend"}, cfg.Services[2].DependsOn)
			},
		},
		{
			name: "defaults applied",
			content: `
ports:
  - port: 5278
    label: backend
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Second, cfg.ReclaimTimeout())
				assert.False(t, cfg.Docker)
				assert.Empty(t, cfg.Services)
			},
		},
		{
			name: "port out of range",
			content: `
ports:
  - port: 99999
`,
			wantErr:     true,
			errContains: "out of range",
		},
		{
			name: "service without command",
			content: `
services:
  - name: backend
    port: 5278
`,
			wantErr:     true,
			errContains: "command is required",
		},
		{
			name: "duplicate service names",
			content: `
services:
  - name: backend
    command: "npm start"
    port: 5278
  - name: backend
    command: "npm start"
    port: 5279
`,
			wantErr:     true,
			errContains: "duplicate service name",
		},
		{
			name: "unknown dependency",
			content: `
services:
  - name: frontend
    command: "npm run dev"
    port: 3101
    depends_on: [backend]
`,
			wantErr:     true,
			errContains: "unknown service",
		},
		{
			name:        "invalid yaml",
			content:     "ports: [port: {{",
			wantErr:     true,
			errContains: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			cfg, err := Load(path)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
