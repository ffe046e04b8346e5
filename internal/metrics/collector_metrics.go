package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	linesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "lines_total",
		Help:      "Total number of logical records emitted downstream.",
	})
	bytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "bytes_total",
		Help:      "Total number of bytes read from tailed files.",
	})
	readErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "read_errors_total",
		Help:      "Total number of read errors encountered while tailing files.",
	})
	activeFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "logtail",
		Name:      "active_files",
		Help:      "Current number of files being tailed.",
	})
	filesAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "files_added_total",
		Help:      "Total number of files discovered and added to the watch set.",
	})
	filesRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "files_removed_total",
		Help:      "Total number of files removed from the watch set after draining.",
	})
	filesResumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "files_resumed_total",
		Help:      "Total number of files resumed from a stored checkpoint on discovery.",
	})
	fingerprintErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "fingerprint_errors_total",
		Help:      "Total number of fingerprint computation failures.",
	})
	discoveryErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "discovery_errors_total",
		Help:      "Total number of discovery walk/glob errors.",
	})
	checkpointWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "checkpoint_writes_total",
		Help:      "Total number of checkpoints written to the store.",
	})
	checkpointErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "checkpoint_errors_total",
		Help:      "Total number of failed checkpoint writes.",
	})
	oversizedLinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "logtail",
		Name:      "oversized_lines_total",
		Help:      "Total number of lines discarded for exceeding the maximum line length.",
	})
)

// Register registers all logtail metrics to the provided Prometheus registerer.
// It is safe to call multiple times; AlreadyRegisteredError will be ignored.
func Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		linesTotal, bytesTotal, readErrorsTotal, activeFiles,
		filesAddedTotal, filesRemovedTotal, filesResumedTotal,
		fingerprintErrorsTotal, discoveryErrorsTotal,
		checkpointWritesTotal, checkpointErrorsTotal, oversizedLinesTotal,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var alreadyRegisteredError prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegisteredError) {
				continue
			}
			return err
		}
	}
	return nil
}

// IncLines increments the emitted records counter by n.
func IncLines(n int) {
	if n > 0 {
		linesTotal.Add(float64(n))
	}
}

// AddBytes adds n to the bytes counter.
func AddBytes(n int) {
	if n > 0 {
		bytesTotal.Add(float64(n))
	}
}

func IncReadErrors() { readErrorsTotal.Inc() }

func IncFilesAdded() { filesAddedTotal.Inc() }

func IncFilesRemoved() { filesRemovedTotal.Inc() }

func IncFilesResumed() { filesResumedTotal.Inc() }

func IncFingerprintErrors() { fingerprintErrorsTotal.Inc() }

func IncDiscoveryErrors() { discoveryErrorsTotal.Inc() }

func IncCheckpointWrites(n int) {
	if n > 0 {
		checkpointWritesTotal.Add(float64(n))
	}
}

func IncCheckpointErrors() { checkpointErrorsTotal.Inc() }

func IncOversizedLines() { oversizedLinesTotal.Inc() }

func IncActiveFiles() { activeFiles.Inc() }

func DecActiveFiles() { activeFiles.Dec() }
