package corevm

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the core's tunable parameter set, loaded from a TOML
// document the same way the host's project manifest is (manifest/manifest.go).
type Config struct {
	// JITHitThreshold is the hit count a monomorphic cache must reach
	// before the JIT queue schedules a compile request for its site.
	JITHitThreshold uint64 `toml:"jit_hit_threshold"`

	// RegisterCount is the configured register-file size per call
	// frame. NewCallFrame takes its register count as an argument and
	// does not read this field.
	RegisterCount int `toml:"register_count"`

	// GCSafepointCadence is the configured dispatch-loop interval for
	// collector safepoint checks. Execute does not read it and performs
	// no safepoint checks.
	GCSafepointCadence int `toml:"gc_safepoint_cadence"`

	// JITQueueCapacity is the configured bound on pending compile
	// requests. Queue does not read it; its pending list is unbounded.
	JITQueueCapacity int `toml:"jit_queue_capacity"`
}

// DefaultConfig returns the configuration new cores start from absent
// an explicit maggie.toml-style override.
func DefaultConfig() *Config {
	return &Config{
		JITHitThreshold:    500,
		RegisterCount:      64,
		GCSafepointCadence: 1024,
		JITQueueCapacity:   256,
	}
}

// LoadConfig parses a TOML document at path into a Config seeded from
// DefaultConfig, so a partial document still yields sane values for
// the fields it omits.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corevm: cannot read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("corevm: parse error in %s: %w", path, err)
	}
	return cfg, nil
}
