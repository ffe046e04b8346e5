package common

import (
	"sync"
	"time"

	sinkmetrics "github.com/loykin/logtail/cmd/logtail/metrics"
)

// Batcher provides buffering, timing, and stop coordination for sinks.
type Batcher struct {
	Ch            chan Record
	BatchSize     int
	BatchInterval time.Duration
	Name          string
	filter        *filter
	Wg            sync.WaitGroup
	StopOnce      sync.Once
	StopCh        chan struct{}
}

func NewBatcher(size int, interval time.Duration, includes, excludes []string, name string) Batcher {
	return Batcher{
		Ch:            make(chan Record, size*2),
		BatchSize:     size,
		BatchInterval: interval,
		Name:          name,
		filter:        &filter{includes: includes, excludes: excludes},
		StopCh:        make(chan struct{}),
	}
}

func (b *Batcher) Enqueue(rec Record) {
	if !b.filter.allow(rec.Text) {
		sinkmetrics.SinkDropped(b.Name, "filtered")
		return
	}
	select {
	case b.Ch <- rec:
		sinkmetrics.SinkEnqueued(b.Name)
	default:
		// buffer full, drop to avoid blocking file ingestion
		sinkmetrics.SinkDropped(b.Name, "buffer_full")
	}
}
