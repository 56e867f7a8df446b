package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ryanbastic/go-docsync/internal/partition"
)

// ContainerDefinition describes a container to provision at startup.
type ContainerDefinition struct {
	Database          string   `json:"database"`
	Name              string   `json:"name"`
	Kind              string   `json:"kind"`
	PartitionKeyPaths []string `json:"partition_key_paths"`
	DefaultTTL        *int     `json:"default_ttl,omitempty"`
	UniqueKeyPaths    []string `json:"unique_key_paths,omitempty"`
	IndexingPolicy    string   `json:"indexing_policy,omitempty"`
}

// ContainerConfig holds the containers to provision.
type ContainerConfig struct {
	Containers []ContainerDefinition `json:"containers"`
}

// LoadContainerConfig reads a JSON container config file and validates it.
// Kind defaults to "document".
func LoadContainerConfig(path string) (*ContainerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container config: %w", err)
	}

	var cfg ContainerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse container config: %w", err)
	}

	if len(cfg.Containers) == 0 {
		return nil, fmt.Errorf("container config: no containers defined")
	}

	seen := make(map[string]bool, len(cfg.Containers))
	for i := range cfg.Containers {
		c := &cfg.Containers[i]
		if c.Name == "" {
			return nil, fmt.Errorf("container config: container #%d has empty name", i)
		}
		if c.Kind == "" {
			c.Kind = "document"
		}
		switch c.Kind {
		case "document":
			if c.Database == "" {
				return nil, fmt.Errorf("container config: container %q has empty database", c.Name)
			}
			if _, err := partition.ParsePaths(c.PartitionKeyPaths); err != nil {
				return nil, fmt.Errorf("container config: container %q: %w", c.Name, err)
			}
			if len(c.PartitionKeyPaths) == 0 {
				return nil, fmt.Errorf("container config: container %q has no partition_key_paths", c.Name)
			}
		case "table":
		default:
			return nil, fmt.Errorf("container config: container %q has unknown kind %q", c.Name, c.Kind)
		}
		if c.DefaultTTL != nil && *c.DefaultTTL < -1 {
			return nil, fmt.Errorf("container config: container %q has invalid default_ttl %d", c.Name, *c.DefaultTTL)
		}

		id := c.Kind + "/" + c.Database + "/" + c.Name
		if seen[id] {
			return nil, fmt.Errorf("container config: duplicate container %s/%s", c.Database, c.Name)
		}
		seen[id] = true
	}

	return &cfg, nil
}
