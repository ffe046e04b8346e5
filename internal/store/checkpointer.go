package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/logtail/internal/metrics"
)

type pendingCheckpoint struct {
	strategy string
	path     string
	offset   int64
}

// Checkpointer batches offset updates in memory and flushes them to the
// backing Store on an interval, so readers are not throttled by checkpoint
// durability. Offsets for a given fingerprint never go backwards; the worst
// case after a crash is re-reading data already delivered, never skipping.
type Checkpointer struct {
	store    Store
	interval time.Duration

	mu      sync.Mutex
	pending map[string]pendingCheckpoint
	high    map[string]int64 // highest offset accepted per fingerprint

	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	started bool
}

func NewCheckpointer(s Store, interval time.Duration) *Checkpointer {
	return &Checkpointer{
		store:    s,
		interval: interval,
		pending:  make(map[string]pendingCheckpoint),
		high:     make(map[string]int64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Update records a new offset for the fingerprint. Updates below the highest
// offset already accepted are dropped.
func (c *Checkpointer) Update(fileID, strategy, path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offset < c.high[fileID] {
		return
	}
	c.high[fileID] = offset
	c.pending[fileID] = pendingCheckpoint{strategy: strategy, path: path, offset: offset}
}

// Load returns the persisted offset for the fingerprint, preferring a pending
// in-memory update over the stored value.
func (c *Checkpointer) Load(fileID, strategy string) (int64, bool, error) {
	c.mu.Lock()
	if p, ok := c.pending[fileID]; ok && p.strategy == strategy {
		c.mu.Unlock()
		return p.offset, true, nil
	}
	c.mu.Unlock()
	return c.store.Load(fileID, strategy)
}

// Delete drops the checkpoint for the fingerprint, both pending and stored.
func (c *Checkpointer) Delete(fileID, strategy string) error {
	c.mu.Lock()
	delete(c.pending, fileID)
	delete(c.high, fileID)
	c.mu.Unlock()
	return c.store.Delete(fileID, strategy)
}

// Start launches the periodic flush loop.
func (c *Checkpointer) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.FlushNow()
			}
		}
	}()
}

// FlushNow writes all pending checkpoints to the store. Entries that fail to
// persist are kept pending for the next flush.
func (c *Checkpointer) FlushNow() {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[string]pendingCheckpoint)
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	written := 0
	for id, p := range batch {
		if err := c.store.Save(id, p.strategy, p.path, p.offset); err != nil {
			slog.Warn("failed to persist checkpoint", "id", id, "path", p.path, "error", err)
			metrics.IncCheckpointErrors()
			c.mu.Lock()
			// Only restore when no newer update has arrived meanwhile
			if _, ok := c.pending[id]; !ok {
				c.pending[id] = p
			}
			c.mu.Unlock()
			continue
		}
		written++
	}
	if written > 0 {
		metrics.IncCheckpointWrites(written)
	}
}

// Stop halts the flush loop and performs a final flush so no acknowledged
// update is lost on clean shutdown. Safe to call even when Start never ran.
func (c *Checkpointer) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started {
			<-c.doneCh
		}
		c.FlushNow()
	})
}
