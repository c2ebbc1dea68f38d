// Package config handles gateway configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/schc/internal/schc"
)

// Config is the top-level configuration, mapped from the `schc:` root key.
type Config struct {
	Profile    string           `mapstructure:"profile"`
	RulesFile  string           `mapstructure:"rules_file"`
	Reassembly ReassemblyConfig `mapstructure:"reassembly"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Sinks      []SinkConfig     `mapstructure:"sinks"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ─── Reassembly ───

// ReassemblyConfig controls the receive-side engine.
type ReassemblyConfig struct {
	TTLTicks       int           `mapstructure:"ttl_ticks"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	TTLPolicy      string        `mapstructure:"ttl_policy"` // absolute | reset_on_receive
	MaxBuffers     int           `mapstructure:"max_buffers"`
	MaxPieces      int           `mapstructure:"max_pieces"`
	IntegrityCheck bool          `mapstructure:"integrity_check"`
	Partitions     int           `mapstructure:"partitions"`
	QueueSize      int           `mapstructure:"queue_size"`
}

// ─── Transport ───

// TransportConfig configures the UDP link.
type TransportConfig struct {
	Listen      string `mapstructure:"listen"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxDatagram int    `mapstructure:"max_datagram"`
}

// ─── Sinks ───

// SinkConfig selects a sink implementation; Options are decoded by the sink.
type SinkConfig struct {
	Type    string         `mapstructure:"type"`
	Options map[string]any `mapstructure:"options"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // trace / debug / info / warn / error
	Format  string           `mapstructure:"format"` // text / json / pattern / prefixed
	Pattern string           `mapstructure:"pattern"`
	Time    string           `mapstructure:"time"`
	File    FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures rotating file output.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the wrapper matching the YAML structure `schc: ...`.
type configRoot struct {
	SCHC Config `mapstructure:"schc"`
}

// Load reads configuration from path. An empty path yields the defaults with
// environment overrides applied. Env vars use the SCHC_ prefix, e.g.
// SCHC_LOG_LEVEL or SCHC_REASSEMBLY_TTL_TICKS.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "schc.log.level" maps to env "SCHC_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.SCHC

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults are static and always valid.
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schc.profile", schc.IETFDraft100.Name)

	// Reassembly defaults
	v.SetDefault("schc.reassembly.ttl_ticks", 60)
	v.SetDefault("schc.reassembly.tick_interval", "1s")
	v.SetDefault("schc.reassembly.ttl_policy", "absolute")
	v.SetDefault("schc.reassembly.max_buffers", 4096)
	v.SetDefault("schc.reassembly.max_pieces", 1024)
	v.SetDefault("schc.reassembly.integrity_check", false)
	v.SetDefault("schc.reassembly.partitions", 4)
	v.SetDefault("schc.reassembly.queue_size", 1024)

	// Transport defaults
	v.SetDefault("schc.transport.listen", ":5683")
	v.SetDefault("schc.transport.batch_size", 32)
	v.SetDefault("schc.transport.max_datagram", 2048)

	// Metrics defaults
	v.SetDefault("schc.metrics.enabled", true)
	v.SetDefault("schc.metrics.listen", ":9091")
	v.SetDefault("schc.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("schc.log.level", "info")
	v.SetDefault("schc.log.format", "text")
	v.SetDefault("schc.log.pattern", "%time [%level] %field %msg\n")
	v.SetDefault("schc.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("schc.log.file.enabled", false)
	v.SetDefault("schc.log.file.path", "/var/log/schc/schc.log")
	v.SetDefault("schc.log.file.max_size_mb", 100)
	v.SetDefault("schc.log.file.max_age_days", 30)
	v.SetDefault("schc.log.file.max_backups", 5)
	v.SetDefault("schc.log.file.compress", true)
}

var (
	validLevels    = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"text": true, "json": true, "pattern": true, "prefixed": true}
	validTTLPolicy = map[string]bool{"absolute": true, "reset_on_receive": true}
	validSinkTypes = map[string]bool{"console": true, "kafka": true}
)

// Validate checks the configuration for values the gateway cannot run with.
func (cfg *Config) Validate() error {
	if _, err := schc.ProfileByName(cfg.Profile); err != nil {
		return err
	}

	// ── Log ──
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if !validFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text/json/pattern/prefixed)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	// ── Reassembly ──
	r := cfg.Reassembly
	if r.TTLTicks <= 0 {
		return fmt.Errorf("reassembly.ttl_ticks must be positive, got %d", r.TTLTicks)
	}
	if r.TickInterval <= 0 {
		return fmt.Errorf("reassembly.tick_interval must be positive, got %s", r.TickInterval)
	}
	if !validTTLPolicy[r.TTLPolicy] {
		return fmt.Errorf("invalid reassembly.ttl_policy: %s (must be absolute/reset_on_receive)", r.TTLPolicy)
	}
	if r.Partitions <= 0 {
		return fmt.Errorf("reassembly.partitions must be positive, got %d", r.Partitions)
	}
	if r.QueueSize <= 0 {
		return fmt.Errorf("reassembly.queue_size must be positive, got %d", r.QueueSize)
	}

	// ── Transport ──
	if cfg.Transport.Listen == "" {
		return fmt.Errorf("transport.listen is required")
	}
	if cfg.Transport.MaxDatagram <= 0 {
		return fmt.Errorf("transport.max_datagram must be positive, got %d", cfg.Transport.MaxDatagram)
	}

	// ── Sinks ──
	for i, s := range cfg.Sinks {
		if !validSinkTypes[s.Type] {
			return fmt.Errorf("sinks[%d]: unsupported type %q (must be console/kafka)", i, s.Type)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}
	return nil
}

// ProfileSpec resolves the configured header layout.
func (cfg *Config) ProfileSpec() schc.Profile {
	p, _ := schc.ProfileByName(cfg.Profile)
	return p
}
