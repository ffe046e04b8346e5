package collector

import (
	"testing"
	"time"

	"github.com/loykin/logtail/internal/tailer"
	"github.com/loykin/logtail/internal/tracker"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Default(t *testing.T) {
	var cfg Config
	cfg.Default()

	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, "\n", cfg.Separator)
	assert.Equal(t, tracker.StrategyDeviceAndInode, cfg.FingerprintStrategy)
	assert.Equal(t, ReadFromBeginning, cfg.ReadFrom)
	assert.True(t, cfg.StoreOffsets)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SetDefaultFingerprint(t *testing.T) {
	var cfg Config
	cfg.Default()
	cfg.SetDefaultFingerprint()

	assert.Equal(t, tracker.StrategyChecksum, cfg.FingerprintStrategy)
	assert.Equal(t, tracker.DefaultFingerprintLines, cfg.FingerprintLines)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		cfg.Default()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }},
		{"empty separator", func(c *Config) { c.Separator = "" }},
		{"bad read from", func(c *Config) { c.ReadFrom = "middle" }},
		{"negative remove after", func(c *Config) { c.RemoveAfter = -time.Second }},
		{"zero flush interval with offsets", func(c *Config) { c.FlushInterval = 0 }},
		{"bad fingerprint strategy", func(c *Config) { c.FingerprintStrategy = "bogus" }},
		{"checksum without lines", func(c *Config) { c.FingerprintStrategy = tracker.StrategyChecksum; c.FingerprintLines = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_ValidateMultiline(t *testing.T) {
	valid := func() Config {
		var cfg Config
		cfg.Default()
		cfg.Multiline = MultilineConfig{
			Enabled:          true,
			Mode:             tailer.MultilineModeContinueThrough,
			StartPattern:     `^[^\s]`,
			ConditionPattern: `^\s`,
			Timeout:          time.Second,
		}
		return cfg
	}
	base := valid()
	assert.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Multiline.Mode = "bogus" }},
		{"empty start pattern", func(c *Config) { c.Multiline.StartPattern = "" }},
		{"bad start regex", func(c *Config) { c.Multiline.StartPattern = "(" }},
		{"empty condition pattern", func(c *Config) { c.Multiline.ConditionPattern = "" }},
		{"bad condition regex", func(c *Config) { c.Multiline.ConditionPattern = "(" }},
		{"zero timeout", func(c *Config) { c.Multiline.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// Disabled multiline skips pattern validation.
	cfg := valid()
	cfg.Multiline.Enabled = false
	cfg.Multiline.Mode = "bogus"
	assert.NoError(t, cfg.Validate())
}
