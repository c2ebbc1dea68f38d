package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
schc:
  profile: "extended-16"
  rules_file: "/etc/schc/rules.yml"
  reassembly:
    ttl_ticks: 30
    tick_interval: "500ms"
    ttl_policy: "reset_on_receive"
    max_buffers: 16
    integrity_check: true
    partitions: 2
  transport:
    listen: "127.0.0.1:7000"
  sinks:
    - type: console
      options:
        format: hex
    - type: kafka
      options:
        brokers: ["localhost:9092"]
        topic: "schc-messages"
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Profile != "extended-16" {
		t.Errorf("Expected profile extended-16, got %s", cfg.Profile)
	}
	if cfg.ProfileSpec().Name != "extended-16" {
		t.Errorf("Expected resolved profile extended-16, got %s", cfg.ProfileSpec().Name)
	}
	if cfg.RulesFile != "/etc/schc/rules.yml" {
		t.Errorf("Expected rules file /etc/schc/rules.yml, got %s", cfg.RulesFile)
	}
	if cfg.Reassembly.TTLTicks != 30 {
		t.Errorf("Expected ttl_ticks 30, got %d", cfg.Reassembly.TTLTicks)
	}
	if cfg.Reassembly.TickInterval != 500*time.Millisecond {
		t.Errorf("Expected tick_interval 500ms, got %s", cfg.Reassembly.TickInterval)
	}
	if cfg.Reassembly.TTLPolicy != "reset_on_receive" {
		t.Errorf("Expected ttl_policy reset_on_receive, got %s", cfg.Reassembly.TTLPolicy)
	}
	if !cfg.Reassembly.IntegrityCheck {
		t.Error("Expected integrity_check true")
	}
	if cfg.Reassembly.MaxPieces != 1024 {
		t.Errorf("Expected default max_pieces 1024, got %d", cfg.Reassembly.MaxPieces)
	}
	if cfg.Transport.Listen != "127.0.0.1:7000" {
		t.Errorf("Expected listen 127.0.0.1:7000, got %s", cfg.Transport.Listen)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[0].Type != "console" || cfg.Sinks[1].Type != "kafka" {
		t.Fatalf("Expected console and kafka sinks, got %+v", cfg.Sinks)
	}
	if cfg.Sinks[0].Options["format"] != "hex" {
		t.Errorf("Expected console format hex, got %v", cfg.Sinks[0].Options["format"])
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Expected debug/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "schc:\n  log:\n    level: loud\n"},
		{"log format", "schc:\n  log:\n    format: xml\n"},
		{"profile", "schc:\n  profile: lorawan-64\n"},
		{"ttl", "schc:\n  reassembly:\n    ttl_ticks: 0\n"},
		{"ttl policy", "schc:\n  reassembly:\n    ttl_policy: sliding\n"},
		{"partitions", "schc:\n  reassembly:\n    partitions: 0\n"},
		{"sink type", "schc:\n  sinks:\n    - type: mqtt\n"},
		{"file path", "schc:\n  log:\n    file:\n      enabled: true\n      path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Expected validation error for invalid %s", tt.name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
schc:
  log:
    level: "info"
`)

	t.Setenv("SCHC_LOG_LEVEL", "debug")
	t.Setenv("SCHC_REASSEMBLY_TTL_TICKS", "5")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
	if cfg.Reassembly.TTLTicks != 5 {
		t.Errorf("Expected ttl_ticks 5 from env var, got %d", cfg.Reassembly.TTLTicks)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Profile != "ietf-draft-100" {
		t.Errorf("Expected default profile ietf-draft-100, got %s", cfg.Profile)
	}
	if cfg.Reassembly.TTLTicks != 60 {
		t.Errorf("Expected default ttl_ticks 60, got %d", cfg.Reassembly.TTLTicks)
	}
	if cfg.Reassembly.TickInterval != time.Second {
		t.Errorf("Expected default tick_interval 1s, got %s", cfg.Reassembly.TickInterval)
	}
	if cfg.Reassembly.TTLPolicy != "absolute" {
		t.Errorf("Expected default ttl_policy absolute, got %s", cfg.Reassembly.TTLPolicy)
	}
	if cfg.Reassembly.MaxBuffers != 4096 {
		t.Errorf("Expected default max_buffers 4096, got %d", cfg.Reassembly.MaxBuffers)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected default metrics enabled true")
	}
	if len(cfg.Sinks) != 0 {
		t.Errorf("Expected no sinks by default, got %d", len(cfg.Sinks))
	}
}
