package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// BackendConfig describes a single PostgreSQL backend and its shard range.
type BackendConfig struct {
	Name        string `json:"name"`
	DatabaseURL string `json:"database_url"`
	ShardStart  int    `json:"shard_start"`
	ShardEnd    int    `json:"shard_end"`
}

// ShardConfig holds the list of backends that together cover all shards.
type ShardConfig struct {
	Backends []BackendConfig `json:"backends"`
}

// LoadShardConfig reads a JSON shard config file and validates it.
func LoadShardConfig(path string, numShards int) (*ShardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shard config: %w", err)
	}

	var cfg ShardConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse shard config: %w", err)
	}
	if err := cfg.Validate(numShards); err != nil {
		return nil, fmt.Errorf("shard config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that backends have unique names and together cover each
// of numShards document shards exactly once.
func (c *ShardConfig) Validate(numShards int) error {
	if len(c.Backends) == 0 {
		return errors.New("no backends defined")
	}

	owner := make([]string, numShards)
	names := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		switch {
		case b.Name == "":
			return fmt.Errorf("backend #%d has no name", i)
		case names[b.Name]:
			return fmt.Errorf("backend name %q is used twice", b.Name)
		case b.DatabaseURL == "":
			return fmt.Errorf("backend %q has empty database_url", b.Name)
		case b.ShardStart < 0 || b.ShardEnd < 0:
			return fmt.Errorf("backend %q has negative shard range", b.Name)
		case b.ShardStart > b.ShardEnd:
			return fmt.Errorf("backend %q has shard_start (%d) > shard_end (%d)", b.Name, b.ShardStart, b.ShardEnd)
		case b.ShardEnd >= numShards:
			return fmt.Errorf("backend %q shard_end (%d) >= num_shards (%d)", b.Name, b.ShardEnd, numShards)
		}
		names[b.Name] = true

		for s := b.ShardStart; s <= b.ShardEnd; s++ {
			if owner[s] != "" {
				return fmt.Errorf("shard %d is covered by multiple backends (%s, %s)", s, owner[s], b.Name)
			}
			owner[s] = b.Name
		}
	}

	var missing []string
	for s, name := range owner {
		if name == "" {
			missing = append(missing, strconv.Itoa(s))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("shards %s are not covered by any backend", strings.Join(missing, ","))
	}
	return nil
}

// SingleBackend returns a config placing every shard on one database.
func SingleBackend(databaseURL string, numShards int) *ShardConfig {
	return &ShardConfig{Backends: []BackendConfig{{
		Name:        "primary",
		DatabaseURL: databaseURL,
		ShardStart:  0,
		ShardEnd:    numShards - 1,
	}}}
}

// Primary returns the backend holding shard 0, where the container catalog
// lives.
func (c *ShardConfig) Primary() BackendConfig {
	for _, b := range c.Backends {
		if b.ShardStart == 0 {
			return b
		}
	}
	return c.Backends[0]
}
