package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

func TestDefaultConfigAndValidate(t *testing.T) {
	cfg := DefaultConfig()

	// Basic defaults
	if cfg.Sink.Type != "console" {
		t.Fatalf("default sink.type = %q, want console", cfg.Sink.Type)
	}
	if cfg.Prometheus.Enable {
		t.Fatal("prometheus.enable should default to false")
	}

	// Collector defaults should include embedded example paths and checksum strategy
	if len(cfg.Collector.Include) == 0 {
		t.Fatal("collector.include should have defaults for examples")
	}
	if cfg.Collector.FingerprintStrategy == "" {
		t.Fatal("collector fingerprint strategy should be set by default")
	}

	// Validate should pass for defaults
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got error: %v", err)
	}
}

func TestValidate_SinkTypes(t *testing.T) {
	// Invalid sink.type should error
	cfg := DefaultConfig()
	cfg.Sink.Type = "does-not-exist"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid sink.type, got nil")
	}

	// File sink requires a path
	cfg2 := DefaultConfig()
	cfg2.Sink.Type = "file"
	cfg2.Sink.File.Path = ""
	if err := cfg2.Validate(); err == nil {
		t.Fatal("expected error when sink.type=file and sink.file.path is empty")
	}
	cfg2.Sink.File.Path = filepath.Join(t.TempDir(), "out.log")
	if err := cfg2.Validate(); err != nil {
		t.Fatalf("unexpected error for valid file sink: %v", err)
	}

	// ClickHouse sink requires addr and table
	cfg3 := DefaultConfig()
	cfg3.Sink.Type = "clickhouse"
	if err := cfg3.Validate(); err == nil {
		t.Fatal("expected error when clickhouse addr/table are missing")
	}
	cfg3.Sink.ClickHouse.Addr = "http://localhost:8123"
	cfg3.Sink.ClickHouse.Table = "logs"
	if err := cfg3.Validate(); err != nil {
		t.Fatalf("unexpected error for valid clickhouse sink: %v", err)
	}

	// OpenSearch sink requires url and index
	cfg4 := DefaultConfig()
	cfg4.Sink.Type = "opensearch"
	if err := cfg4.Validate(); err == nil {
		t.Fatal("expected error when opensearch url/index are missing")
	}
	cfg4.Sink.OpenSearch.URL = "http://localhost:9200"
	cfg4.Sink.OpenSearch.Index = "logs"
	if err := cfg4.Validate(); err != nil {
		t.Fatalf("unexpected error for valid opensearch sink: %v", err)
	}

	// Bad console stream
	cfg5 := DefaultConfig()
	cfg5.Sink.Console.Stream = "tty"
	if err := cfg5.Validate(); err == nil {
		t.Fatal("expected error for invalid sink.console.stream")
	}

	// Prometheus enabled requires an address
	cfg6 := DefaultConfig()
	cfg6.Prometheus.Enable = true
	cfg6.Prometheus.Addr = ""
	if err := cfg6.Validate(); err == nil {
		t.Fatal("expected error when prometheus.enable is set without addr")
	}
}

func TestLoadFromViper_WithEnvConfigAndFlags(t *testing.T) {
	// Prepare a Cobra command and default config
	cfg := DefaultConfig()
	cmd := &cobra.Command{Use: "logtail-test"}
	cfg.SetupFlags(cmd)

	// Use repository example config file via LOGTAIL_CONFIG. When running tests from
	// the cmd/logtail package, the working directory is this package dir, so the
	// config lives two levels up. Probe a few likely locations to be robust.
	candidates := []string{
		filepath.Join(".", "config", "config.toml"),
		filepath.Join("..", "config", "config.toml"),
		filepath.Join("..", "..", "config", "config.toml"),
		filepath.Join("..", "..", "..", "config", "config.toml"),
	}
	var configPath string
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			configPath = p
			break
		}
	}
	if configPath == "" {
		t.Fatalf("missing test config file: tried %v", candidates)
	}

	// Set env var and ensure cleanup
	prev := os.Getenv("LOGTAIL_CONFIG")
	if err := os.Setenv("LOGTAIL_CONFIG", configPath); err != nil {
		t.Fatalf("set env: %v", err)
	}
	t.Cleanup(func() { _ = os.Setenv("LOGTAIL_CONFIG", prev) })

	// Set some flags that should override config file values
	// Enable Prometheus and set a different addr
	if err := cmd.Flags().Set("prometheus.enable", "true"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := cmd.Flags().Set("prometheus.addr", "127.0.0.1:0"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	// Override include patterns via flags to ensure precedence over config file
	customIncludes := []string{"./some/other/path", "./another/*.log"}
	if err := cmd.Flags().Set("include", customIncludes[0]+","+customIncludes[1]); err != nil {
		t.Fatalf("set include flag: %v", err)
	}

	// Load from Viper (env+file+flags)
	if err := cfg.LoadFromViper(cmd); err != nil {
		t.Fatalf("LoadFromViper failed: %v", err)
	}

	// Flags should take precedence over file
	if !cfg.Prometheus.Enable {
		t.Fatal("prometheus.enable should be true from flag override")
	}
	if got := cfg.Prometheus.Addr; got != "127.0.0.1:0" {
		t.Fatalf("prometheus.addr = %q, want 127.0.0.1:0", got)
	}
	if !reflect.DeepEqual(cfg.Collector.Include, customIncludes) {
		t.Fatalf("collector.include = %#v, want %#v (flags override file)", cfg.Collector.Include, customIncludes)
	}

	// Some fields should come from the file (we didn't override them)
	if cfg.Sink.Type != "console" {
		t.Fatalf("sink.type from file = %q, want console", cfg.Sink.Type)
	}
	if cfg.Collector.FingerprintStrategy != "checksum" {
		t.Fatalf("collector fingerprint strategy from file = %q, want checksum", cfg.Collector.FingerprintStrategy)
	}

	// Final validation should pass after loading
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed after LoadFromViper: %v", err)
	}
}
