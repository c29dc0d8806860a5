package rateshop

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Full File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
stream_threshold: 2000
chunk_size: 250
chunk_concurrency: 5
max_retries: 2
pause_tick: 50ms
residential_override: true
required_fields:
  - tracking_id
  - dest_zip
`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if cfg.StreamThreshold != 2000 || cfg.ChunkSize != 250 || cfg.ChunkConcurrency != 5 {
			t.Errorf("unexpected streaming config: %+v", cfg)
		}
		if cfg.MaxRetries == nil || *cfg.MaxRetries != 2 || cfg.PauseTick != 50*time.Millisecond {
			t.Errorf("unexpected retry config: %+v", cfg)
		}
		if cfg.ResidentialOverride == nil || !*cfg.ResidentialOverride {
			t.Error("expected residential override true")
		}
		if len(cfg.RequiredFields) != 2 {
			t.Errorf("expected 2 required fields, got %v", cfg.RequiredFields)
		}
	})

	t.Run("Partial File Gets Defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("chunk_size: 100\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		def := DefaultConfig()
		if cfg.ChunkSize != 100 {
			t.Errorf("expected explicit chunk size, got %d", cfg.ChunkSize)
		}
		if cfg.StreamThreshold != def.StreamThreshold ||
			cfg.MaxRetries == nil || *cfg.MaxRetries != *def.MaxRetries {
			t.Errorf("expected defaults for unset fields, got %+v", cfg)
		}
		if cfg.ResidentialOverride != nil {
			t.Error("unset override must stay nil")
		}
	})

	t.Run("Explicit Zero Retries Preserved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("max_retries: 0\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if cfg.MaxRetries == nil || *cfg.MaxRetries != 0 {
			t.Errorf("explicit zero must disable retries, got %v", cfg.MaxRetries)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("chunk_size: [oops\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected parse error")
		}
	})
}
