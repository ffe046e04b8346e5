// Package logtail provides a simplified, stable root-level API for external users.
//
// Instead of importing internal subpackages like "github.com/loykin/logtail/internal/collector",
// consumers can just:
//
//	import "github.com/loykin/logtail"
//
// and then use logtail.NewCollector and logtail.Config directly.
package logtail

import (
	"github.com/loykin/logtail/internal/collector"
	"github.com/loykin/logtail/internal/metrics"
	"github.com/loykin/logtail/internal/tailer"
	"github.com/loykin/logtail/internal/tracker"
	"github.com/prometheus/client_golang/prometheus"
)

// Config re-exports collector.Config for convenient use from the module root.
// This is a type alias, so it's fully compatible with the underlying type.
type Config = collector.Config

// MultilineConfig re-exports collector.MultilineConfig.
type MultilineConfig = collector.MultilineConfig

// Collector re-exports collector.Collector so callers can keep the concrete type
// when using the root-level constructor.
type Collector = collector.Collector

// Record re-exports collector.Record, the delivered log entry type.
type Record = collector.Record

// Tracker re-exports tracker.Tracker for root-level usage.
type Tracker = tracker.Tracker

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker { return tracker.New() }

// GetFileIDFromPath re-exports the utility to compute a file ID from a path.
func GetFileIDFromPath(path string) (string, error) { return tracker.GetFileIDFromPath(path) }

// TailReader re-exports tailer.TailReader for root-level usage.
type TailReader = tailer.TailReader

// Fingerprint strategy constants re-exported for convenient configuration.
const (
	FingerprintStrategyChecksum       = tracker.StrategyChecksum
	FingerprintStrategyDeviceAndInode = tracker.StrategyDeviceAndInode
)

// Where tailing starts for files without a stored checkpoint.
const (
	ReadFromBeginning = collector.ReadFromBeginning
	ReadFromEnd       = collector.ReadFromEnd
)

// Multiline aggregation modes.
const (
	MultilineModeContinueThrough = tailer.MultilineModeContinueThrough
	MultilineModeContinuePast    = tailer.MultilineModeContinuePast
	MultilineModeHaltBefore      = tailer.MultilineModeHaltBefore
	MultilineModeHaltWith        = tailer.MultilineModeHaltWith
)

// NewCollector constructs a new Collector using the provided configuration.
// It is a thin wrapper around collector.NewCollector.
func NewCollector(cfg Config) (*Collector, error) {
	return collector.NewCollector(cfg)
}

// StartMetrics registers logtail metrics on the default Prometheus registry and starts an HTTP server.
// It returns a stop function to gracefully shut down the metrics server.
func StartMetrics(addr string) (func() error, error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	srv, err := metrics.Start(addr)
	if err != nil {
		return nil, err
	}
	return srv.Stop, nil
}
