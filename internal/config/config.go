// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads the e2e harness configuration: the ports to
// reclaim before a run and the services to start afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no explicit path is given.
const DefaultPath = "e2e.yaml"

const (
	defaultTimeoutSeconds = 5
	defaultHealthPath     = "/health"
)

// Config is the complete harness configuration.
type Config struct {
	// Ports to reclaim that are not tied to a configured service
	// (e.g. a debugger or metrics port).
	Ports []PortConfig `yaml:"ports"`

	// TimeoutSeconds bounds the whole reclamation batch. Defaults to 5.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Docker enables stopping containers that publish a configured port.
	Docker bool `yaml:"docker"`

	// Services to boot after reclamation, in dependency order.
	Services []ServiceConfig `yaml:"services"`
}

// PortConfig is one port to reclaim, with a label for reporting.
type PortConfig struct {
	Port  int    `yaml:"port"`
	Label string `yaml:"label"`
}

// ServiceConfig describes one server the harness boots.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	Dir     string `yaml:"dir"`
	Port    int    `yaml:"port"`

	// Health is the HTTP path polled until the service is ready.
	// Defaults to /health.
	Health string `yaml:"health"`

	// DependsOn lists services that must be healthy before this one starts.
	DependsOn []string `yaml:"depends_on"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	for i := range c.Services {
		if c.Services[i].Health == "" {
			c.Services[i].Health = defaultHealthPath
		}
	}
}

// ReclaimTimeout returns the batch deadline as a duration.
func (c *Config) ReclaimTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks port ranges, service completeness and dependency
// references.
func (c *Config) Validate() error {
	for _, p := range c.Ports {
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("port %d out of range", p.Port)
		}
	}

	names := make(map[string]bool, len(c.Services))
	for _, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("service name is required")
		}
		if names[svc.Name] {
			return fmt.Errorf("duplicate service name: %s", svc.Name)
		}
		names[svc.Name] = true

		if svc.Command == "" {
			return fmt.Errorf("service %s: command is required", svc.Name)
		}
		if svc.Port < 1 || svc.Port > 65535 {
			return fmt.Errorf("service %s: port %d out of range", svc.Name, svc.Port)
		}
	}

	for _, svc := range c.Services {
		for _, dep := range svc.DependsOn {
			if !names[dep] {
				return fmt.Errorf("service %s depends on unknown service %s", svc.Name, dep)
			}
		}
	}

	return nil
}
