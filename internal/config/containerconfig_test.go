package config

import (
	"strings"
	"testing"
)

func TestLoadContainerConfig_Valid(t *testing.T) {
	cfg := `{
		"containers": [
			{
				"database": "shop",
				"name": "orders",
				"partition_key_paths": ["/tenant", "/region"],
				"default_ttl": 3600,
				"unique_key_paths": ["/orderNo"],
				"indexing_policy": "consistent"
			},
			{"name": "people", "kind": "table"}
		]
	}`
	cc, err := LoadContainerConfig(writeTempFile(t, "containers.json", cfg))
	if err != nil {
		t.Fatalf("LoadContainerConfig: %v", err)
	}
	if len(cc.Containers) != 2 {
		t.Fatalf("got %d containers, want 2", len(cc.Containers))
	}

	orders := cc.Containers[0]
	if orders.Kind != "document" {
		t.Errorf("Kind: got %q, want document", orders.Kind)
	}
	if len(orders.PartitionKeyPaths) != 2 || orders.PartitionKeyPaths[1] != "/region" {
		t.Errorf("PartitionKeyPaths: got %v", orders.PartitionKeyPaths)
	}
	if orders.DefaultTTL == nil || *orders.DefaultTTL != 3600 {
		t.Errorf("DefaultTTL: got %v", orders.DefaultTTL)
	}
	if cc.Containers[1].Kind != "table" {
		t.Errorf("Kind: got %q, want table", cc.Containers[1].Kind)
	}
}

func TestLoadContainerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid json", `{invalid`, "parse container config"},
		{"empty list", `{"containers": []}`, "no containers defined"},
		{"empty name", `{"containers": [{"database": "shop", "partition_key_paths": ["/pk"]}]}`, "empty name"},
		{"empty database", `{"containers": [{"name": "orders", "partition_key_paths": ["/pk"]}]}`, "empty database"},
		{"no paths", `{"containers": [{"database": "shop", "name": "orders"}]}`, "no partition_key_paths"},
		{"bad path", `{"containers": [{"database": "shop", "name": "orders", "partition_key_paths": ["pk"]}]}`, "orders"},
		{"unknown kind", `{"containers": [{"name": "orders", "kind": "graph"}]}`, "unknown kind"},
		{"bad ttl", `{"containers": [{"database": "shop", "name": "orders", "partition_key_paths": ["/pk"], "default_ttl": -2}]}`, "invalid default_ttl"},
		{
			"duplicate",
			`{"containers": [
				{"database": "shop", "name": "orders", "partition_key_paths": ["/pk"]},
				{"database": "shop", "name": "orders", "partition_key_paths": ["/other"]}
			]}`,
			"duplicate container",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadContainerConfig(writeTempFile(t, "containers.json", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadContainerConfig_FileNotFound(t *testing.T) {
	if _, err := LoadContainerConfig("/nonexistent/containers.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
