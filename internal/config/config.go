// Package config loads the engine's tunables from a YAML document: pool
// size, page size, LRU-K's K, disk-scheduler shard count, and the default
// isolation level. Grounded in the teacher's use of gopkg.in/yaml.v3 for
// its fixture and import/export formats, promoted here to a first-class
// engine-config loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Isolation names the default transaction isolation level new
// transactions start with.
type Isolation string

const (
	ReadUncommitted Isolation = "read-uncommitted"
	SnapshotIsolation Isolation = "snapshot-isolation"
	Serializable      Isolation = "serializable"
)

// Config holds every engine tunable exposed to operators. Fields carry
// `yaml` tags so the zero-value YAML key names are lowercase/hyphen-free,
// matching the teacher's own fixture conventions.
type Config struct {
	BufferPoolFrames int       `yaml:"buffer_pool_frames"`
	PageSize         int       `yaml:"page_size"`
	ReplacerK        int       `yaml:"replacer_k"`
	DiskShards       int       `yaml:"disk_shards"`
	DefaultIsolation Isolation `yaml:"default_isolation"`
	GCIntervalCron   string    `yaml:"gc_interval_cron"`
}

// Default returns the engine's out-of-the-box tunables, used when no
// config file is supplied.
func Default() Config {
	return Config{
		BufferPoolFrames: 64,
		PageSize:         4096,
		ReplacerK:        2,
		DiskShards:       4,
		DefaultIsolation: SnapshotIsolation,
		GCIntervalCron:   "@every 30s",
	}
}

// Load reads and parses a YAML config file, keeping the Default() value of
// every field whose key the document omits. A key set explicitly (even to
// zero) overrides the default and is then validated.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BufferPoolFrames < 1 {
		return fmt.Errorf("config: buffer_pool_frames must be >= 1, got %d", c.BufferPoolFrames)
	}
	if c.PageSize < 512 {
		return fmt.Errorf("config: page_size must be >= 512, got %d", c.PageSize)
	}
	if c.ReplacerK < 1 {
		return fmt.Errorf("config: replacer_k must be >= 1, got %d", c.ReplacerK)
	}
	if c.DiskShards < 1 {
		return fmt.Errorf("config: disk_shards must be >= 1, got %d", c.DiskShards)
	}
	switch c.DefaultIsolation {
	case ReadUncommitted, SnapshotIsolation, Serializable:
	default:
		return fmt.Errorf("config: unknown default_isolation %q", c.DefaultIsolation)
	}
	return nil
}
