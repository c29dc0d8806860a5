package rateshop

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the engine tunables. Zero values mean "use the default";
// DefaultConfig returns the fully defaulted set.
type Config struct {
	// StreamThreshold is the shipment count above which the run switches
	// to chunked streaming.
	StreamThreshold int `yaml:"stream_threshold"`

	// ChunkSize is the fixed chunk size in streaming mode.
	ChunkSize int `yaml:"chunk_size"`

	// ChunkConcurrency is the number of chunks processed at once.
	ChunkConcurrency int `yaml:"chunk_concurrency"`

	// MaxRetries bounds retries per carrier call beyond the first attempt.
	// Unset (nil) means the default; an explicit 0 disables retries.
	MaxRetries *int `yaml:"max_retries"`

	// PauseTick is how often a paused run re-checks for resume/stop.
	PauseTick time.Duration `yaml:"pause_tick"`

	// ResidentialOverride, when set, resolves the residential flag for
	// records without an explicit CSV flag.
	ResidentialOverride *bool `yaml:"residential_override"`

	// RequiredFields overrides the validator's required field set.
	RequiredFields []Field `yaml:"required_fields"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	retries := 3
	return Config{
		StreamThreshold:  1000,
		ChunkSize:        500,
		ChunkConcurrency: 3,
		MaxRetries:       &retries,
		PauseTick:        100 * time.Millisecond,
	}
}

// LoadConfig reads a YAML config file and applies defaults to any field
// left unset.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.StreamThreshold <= 0 {
		c.StreamThreshold = def.StreamThreshold
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = def.ChunkConcurrency
	}
	if c.MaxRetries == nil {
		c.MaxRetries = def.MaxRetries
	} else if *c.MaxRetries < 0 {
		zero := 0
		c.MaxRetries = &zero
	}
	if c.PauseTick <= 0 {
		c.PauseTick = def.PauseTick
	}
}
