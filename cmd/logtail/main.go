package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sinkmetrics "github.com/loykin/logtail/cmd/logtail/metrics"
	"github.com/loykin/logtail/cmd/logtail/sink/common"
	"github.com/loykin/logtail/internal/collector"
	"github.com/loykin/logtail/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spf13/cobra"
)

func main() {
	config := DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "logtail",
		Short: "A file tailer that checkpoints its position and forwards records",
		Long: `logtail watches files for growth, reads complete records from them, and
forwards the records to a sink. Read positions survive restarts and file
rotation: each file is identified by a content fingerprint, so a renamed file
keeps its offset and a replaced file starts fresh.

Examples:
  # Tail the ./log directory and print to stdout
  logtail

  # Tail multiple directories with custom poll interval
  logtail --include ./log,/var/log --poll-interval 5s

  # Drain the oldest file fully before reading newer ones
  logtail --oldest-first

  # Merge stack traces into one record
  logtail --multiline --multiline-mode continueThrough \
    --multiline-start '^[^\s]' --multiline-condition '^\s' --multiline-timeout 3s`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadFromViper(cmd); err != nil {
				return err
			}
			return config.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollector(config)
		},
	}

	// Setup flags from config
	config.SetupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func runCollector(config *Config) error {
	// Build the forwarding sink
	sink, err := buildSink(config)
	if err != nil {
		return err
	}

	// Optionally start Prometheus metrics endpoint
	var metricsStop = func() error { return nil }
	if config.Prometheus.Enable {
		// Register metrics explicitly to the default registry to avoid library init-time side effects
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("failed to register prometheus metrics: %w", err)
		}
		if err := sinkmetrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("failed to register sink metrics: %w", err)
		}
		metricsServer, err := metrics.Start(config.Prometheus.Addr)
		if err != nil {
			return fmt.Errorf("failed to start prometheus endpoint: %w", err)
		}
		metricsStop = metricsServer.Stop
	}

	cfg := config.Collector
	if sink != nil {
		cfg.OnRecord = func(rec collector.Record) {
			sink.Enqueue(common.Record{Path: rec.Path, Text: rec.Text, Time: rec.Time})
		}
	}

	// Create collector
	c, err := collector.NewCollector(cfg)
	if err != nil {
		_ = metricsStop()
		return errors.New("error creating collector: " + err.Error())
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Start the collector
	c.Start()

	// Wait for interrupt signal
	fmt.Println("Running... Press Ctrl+C to stop")
	<-sigCh

	fmt.Println("Shutting down...")
	c.Stop()
	if sink != nil {
		_ = sink.Stop()
	}
	_ = metricsStop()

	return nil
}
