package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	path := writeFile(t, "buffer_pool_frames: 128\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferPoolFrames != 128 {
		t.Fatalf("expected overridden BufferPoolFrames=128, got %d", cfg.BufferPoolFrames)
	}
	if cfg.ReplacerK != Default().ReplacerK {
		t.Fatalf("expected default ReplacerK, got %d", cfg.ReplacerK)
	}
}

func TestLoadRejectsInvalidIsolation(t *testing.T) {
	path := writeFile(t, "default_isolation: bogus\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown isolation level")
	}
}

func TestLoadRejectsZeroPoolSize(t *testing.T) {
	path := writeFile(t, "buffer_pool_frames: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero buffer_pool_frames")
	}
}
