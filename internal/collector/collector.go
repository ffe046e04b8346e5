package collector

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loykin/logtail/internal/metrics"
	"github.com/loykin/logtail/internal/store"
	"github.com/loykin/logtail/internal/tailer"
	"github.com/loykin/logtail/internal/tracker"
	"github.com/loykin/logtail/internal/watcher"
)

// Record is one delivered log entry: a complete line, or an aggregated
// multiline group when aggregation is enabled.
type Record struct {
	Path string
	Text string
	Time time.Time
}

// Collector wires discovery, scheduling, reading, aggregation, and
// checkpointing into one tailing pipeline. Records are delivered either to
// the configured OnRecord callback or through the Records channel.
type Collector struct {
	cfg          Config
	fileManager  *tracker.Tracker
	watcher      *watcher.Watcher
	offsetDB     store.Store
	checkpointer *store.Checkpointer
	scheduler    *tailer.TailScheduler

	aggMu       sync.Mutex
	aggregators map[string]*tailer.MultilineReader

	records  chan Record
	onRecord func(Record)
	emitMu   sync.Mutex

	stopCh   chan struct{}
	workerWg sync.WaitGroup
	reaperWg sync.WaitGroup
	stopOnce sync.Once
}

func NewCollector(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Collector{
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		aggregators: make(map[string]*tailer.MultilineReader),
		records:     make(chan Record, cfg.RecordBuffer),
		onRecord:    cfg.OnRecord,
	}

	// Initialize offset store if enabled
	if cfg.StoreOffsets {
		var err error
		c.offsetDB, err = store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		c.checkpointer = store.NewCheckpointer(c.offsetDB, cfg.FlushInterval)
	}

	c.scheduler = tailer.NewTailScheduler(cfg.OldestFirst)
	c.fileManager = tracker.New()

	config := watcher.DefaultConfig()
	config.PollInterval = cfg.PollInterval
	config.Tracker = c.fileManager
	config.Fingerprinter = cfg.fingerprinter()
	config.Include = cfg.Include
	config.Exclude = cfg.Exclude

	var err error
	c.watcher, err = watcher.NewWatcher(config, c.onFileAdded, c.onFileMissing)
	if err != nil {
		if c.offsetDB != nil {
			_ = c.offsetDB.Close()
		}
		return nil, err
	}

	return c, nil
}

// Records returns the delivery channel. It is closed by Stop after the final
// flush. Unused when OnRecord is configured.
func (c *Collector) Records() <-chan Record {
	return c.records
}

// onFileAdded runs when discovery reports a new fingerprint. The starting
// offset comes from the stored checkpoint when one exists, otherwise from the
// ReadFrom policy.
func (c *Collector) onFileAdded(id, path string) {
	offset := int64(0)
	resumed := false

	if c.checkpointer != nil && !c.cfg.IgnoreCheckpoints {
		storedOffset, found, err := c.checkpointer.Load(id, c.cfg.FingerprintStrategy)
		if err != nil {
			slog.Error("failed to load offset", "file", id, "error", err)
		} else if found {
			offset = storedOffset
			resumed = true
			slog.Debug("loaded offset from store", "file", id, "offset", offset)
		}
	}
	if !resumed && c.cfg.ReadFrom == ReadFromEnd {
		if info, err := os.Stat(path); err == nil {
			offset = info.Size()
		}
	}
	if offset > 0 {
		c.fileManager.UpdateOffset(id, offset)
	}

	fileTail := tailer.TailReader{
		FileId:        id,
		Offset:        offset,
		Separator:     c.cfg.Separator,
		MaxLineBytes:  c.cfg.MaxLineBytes,
		Tracker:       c.fileManager,
		Fingerprinter: c.cfg.fingerprinter(),
	}

	if c.cfg.Multiline.Enabled {
		agg, err := tailer.NewMultilineReader(
			c.cfg.Multiline.Mode,
			c.cfg.Multiline.StartPattern,
			c.cfg.Multiline.ConditionPattern,
			c.cfg.Multiline.Timeout,
			func(rec []byte) { c.emit(fileTail.Path(), string(rec)) },
		)
		if err != nil {
			// Patterns are validated up front; reaching this means a config
			// mutation after start. Deliver lines unaggregated.
			slog.Error("failed to create multiline aggregator", "file", id, "error", err)
		} else {
			c.aggMu.Lock()
			c.aggregators[id] = agg
			c.aggMu.Unlock()
		}
	}

	slog.Debug("file added", "file", id, "path", path, "offset", offset)
	c.scheduler.Add(id, &fileTail)
	metrics.IncFilesAdded()
	metrics.IncActiveFiles()
	if resumed {
		metrics.IncFilesResumed()
	}
}

// onFileMissing runs when discovery stops seeing a fingerprint. The entry is
// already marked pending removal; the reaper finishes the job once the reader
// has drained and the grace period elapsed.
func (c *Collector) onFileMissing(id string) {
	slog.Debug("file missing, pending removal", "file", id)
}

func (c *Collector) emit(path, text string) {
	rec := Record{Path: path, Text: text, Time: time.Now()}
	if c.onRecord != nil {
		c.emitMu.Lock()
		c.onRecord(rec)
		c.emitMu.Unlock()
		return
	}
	select {
	case c.records <- rec:
	case <-c.stopCh:
		// Shutdown in progress: deliver if buffer space remains, else drop.
		select {
		case c.records <- rec:
		default:
			slog.Debug("dropped record during shutdown", "path", path)
		}
	}
}

// ingest routes one complete line either through the file's multiline
// aggregator or straight to delivery.
func (c *Collector) ingest(id string, fileTail *tailer.TailReader, line string) {
	metrics.IncLines(1)
	c.aggMu.Lock()
	agg := c.aggregators[id]
	c.aggMu.Unlock()
	if agg != nil {
		agg.Write([]byte(line))
		return
	}
	c.emit(fileTail.Path(), line)
}

func (c *Collector) worker() {
	defer c.workerWg.Done()

	loopCount := 0
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	loopLimit := c.scheduler.Count()

	for {
		select {
		case <-c.stopCh:
			return
		default:
			if loopCount >= loopLimit {
				select {
				case <-c.stopCh:
					return
				case <-time.After(bo.NextBackOff()):
					loopLimit = c.scheduler.Count()
					loopCount = 0
				}
			}
			loopCount++

			fileTail, ok := c.scheduler.NextAvailable()
			if !ok {
				continue
			}
			id := fileTail.FileId

			read, err := fileTail.ReadBudget(c.cfg.MaxReadBytes, func(line string) {
				c.ingest(id, fileTail, line)
				bo.Reset()
			})

			switch {
			case err == nil:
				metrics.AddBytes(read)
				c.fileManager.UpdateOffset(id, fileTail.Offset)
				if c.checkpointer != nil {
					if fileInfo := c.fileManager.Get(id); fileInfo != nil {
						c.checkpointer.Update(id, c.cfg.FingerprintStrategy, fileInfo.Path, fileTail.Offset)
					}
				}
			case os.IsNotExist(err):
				slog.Debug("file not found", "file", id, "error", err)
				// A pending file that vanished before it could be opened has
				// nothing left to drain.
				if f := c.fileManager.Get(id); f != nil && f.State == tracker.StatePendingRemoval {
					fileTail.MarkDead()
				}
			case tailer.IsFileTruncated(err):
				// Truncated in place with its fingerprinted head intact:
				// restart the stream from the top. Already-delivered lines may
				// repeat; data is never skipped. If the head changed too, the
				// reopen fails the fingerprint check and the mismatch branch
				// retires the reader.
				slog.Info("file truncated, restarting from beginning", "file", id, "error", err)
				fileTail.Restart()
				c.fileManager.UpdateOffset(id, 0)
				if c.checkpointer != nil {
					if cerr := c.checkpointer.Delete(id, c.cfg.FingerprintStrategy); cerr != nil {
						slog.Error("failed to reset offset", "file", id, "error", cerr)
					}
				}
			case tailer.IsFingerprintMismatch(err):
				// The path now holds a different stream. Retire this reader;
				// discovery registers the replacement as a new file.
				slog.Info("file content replaced, retiring reader", "file", id, "error", err)
				fileTail.MarkDead()
				c.fileManager.MarkPendingRemoval(id)
			default:
				slog.Error("failed to read file", "file", id, "error", err)
				metrics.IncReadErrors()
			}

			c.scheduler.SetIdle(id, read > 0)
		}
	}
}

// reaper finalizes pending removals: once the reader has drained to
// end-of-data and the grace period has elapsed, the file is dropped from the
// scheduler, registry, and checkpoint store.
func (c *Collector) reaper() {
	defer c.reaperWg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			for id, file := range c.fileManager.Snapshot() {
				if file.State != tracker.StatePendingRemoval {
					continue
				}
				if c.cfg.RemoveAfter > 0 && time.Since(file.MissingSince) < c.cfg.RemoveAfter {
					continue
				}
				if fileTail := c.scheduler.Get(id); fileTail != nil && !fileTail.AtEOF() {
					continue
				}
				c.removeFile(id)
			}
		}
	}
}

func (c *Collector) removeFile(id string) {
	fileTail, ok := c.scheduler.RemoveIfIdle(id)
	if !ok {
		// A worker still holds the reader; retry on the next tick.
		return
	}
	if fileTail != nil {
		fileTail.Close()
	}

	c.aggMu.Lock()
	agg := c.aggregators[id]
	delete(c.aggregators, id)
	c.aggMu.Unlock()
	if agg != nil {
		agg.Flush()
		agg.Close()
	}

	c.fileManager.Remove(id)
	if c.checkpointer != nil {
		if err := c.checkpointer.Delete(id, c.cfg.FingerprintStrategy); err != nil {
			slog.Error("failed to delete offset", "file", id, "error", err)
		}
	}
	metrics.IncFilesRemoved()
	metrics.DecActiveFiles()
	slog.Debug("file removed", "file", id)
}

func (c *Collector) Start() {
	if c.checkpointer != nil {
		c.checkpointer.Start()
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workerWg.Add(1)
		go c.worker()
	}

	c.reaperWg.Add(1)
	go c.reaper()

	c.watcher.Start()
}

// Stop shuts the pipeline down in dependency order: discovery first, then
// workers, then aggregator flush, then the final checkpoint flush. The
// Records channel is closed last.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		c.watcher.StopAndWait()

		close(c.stopCh)
		c.workerWg.Wait()
		c.reaperWg.Wait()

		// Flush partially assembled multiline groups
		c.aggMu.Lock()
		aggs := c.aggregators
		c.aggregators = make(map[string]*tailer.MultilineReader)
		c.aggMu.Unlock()
		for _, agg := range aggs {
			agg.Flush()
			agg.Close()
		}

		// Close remaining readers
		for id := range c.fileManager.Snapshot() {
			if fileTail, ok := c.scheduler.RemoveIfIdle(id); ok && fileTail != nil {
				fileTail.Close()
			}
		}

		if c.checkpointer != nil {
			c.checkpointer.Stop()
		}
		if c.offsetDB != nil {
			if err := c.offsetDB.Close(); err != nil {
				slog.Error("failed to close offset store", "error", err)
			}
		}

		close(c.records)
	})
}
