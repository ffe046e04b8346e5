package collector

import (
	"errors"
	"regexp"
	"time"

	"github.com/loykin/logtail/internal/tailer"
	"github.com/loykin/logtail/internal/tracker"
	"github.com/loykin/logtail/internal/watcher"
)

const (
	ReadFromBeginning = "beginning"
	ReadFromEnd       = "end"
)

// MultilineConfig merges raw lines into logical records before delivery.
type MultilineConfig struct {
	Enabled          bool
	Mode             string
	StartPattern     string
	ConditionPattern string
	Timeout          time.Duration
}

type Config struct {
	WorkerCount         int
	Separator           string
	PollInterval        time.Duration
	FingerprintStrategy string
	FingerprintLines    int
	IgnoredHeaderBytes  int
	Include             []string
	Exclude             []string

	// MaxReadBytes bounds how much one file may consume in a single
	// scheduling turn; MaxLineBytes bounds a single line, beyond which the
	// line is discarded while its offset still advances.
	MaxReadBytes int
	MaxLineBytes int

	// OldestFirst drains the oldest backlogged file exclusively instead of
	// rotating budgets fairly across all files.
	OldestFirst bool

	// ReadFrom selects where a file with no stored checkpoint starts:
	// the beginning of the file or its current end.
	ReadFrom string

	// IgnoreCheckpoints starts every file per ReadFrom even when a stored
	// offset exists.
	IgnoreCheckpoints bool

	// RemoveAfter is the grace period a vanished file stays registered after
	// being drained, allowing a rename to be recognized. Zero removes the
	// file as soon as it is drained.
	RemoveAfter time.Duration

	// FlushInterval is how often in-memory checkpoints are persisted.
	FlushInterval time.Duration

	DBPath       string
	StoreOffsets bool

	// RecordBuffer sizes the delivery channel used when OnRecord is nil.
	// A full channel blocks readers rather than dropping records.
	RecordBuffer int

	Multiline MultilineConfig

	// OnRecord, when set, receives records synchronously instead of the
	// Records channel.
	OnRecord func(record Record)
}

func (c *Config) Default() {
	c.WorkerCount = 1
	c.PollInterval = 100 * time.Millisecond
	c.Separator = "\n"
	c.FingerprintStrategy = tracker.StrategyDeviceAndInode
	c.MaxReadBytes = tailer.DefaultMaxReadBytes
	c.MaxLineBytes = tailer.DefaultMaxLineBytes
	c.ReadFrom = ReadFromBeginning
	c.FlushInterval = time.Second
	c.DBPath = "logtail.db"
	c.StoreOffsets = true
	c.RecordBuffer = 1024
}

// SetDefaultFingerprint switches to the content-based checksum strategy with
// its default line count.
func (c *Config) SetDefaultFingerprint() {
	c.FingerprintStrategy = tracker.StrategyChecksum
	c.FingerprintLines = tracker.DefaultFingerprintLines
}

func (c *Config) fingerprinter() tracker.Fingerprinter {
	return tracker.Fingerprinter{
		Strategy:           c.FingerprintStrategy,
		Lines:              c.FingerprintLines,
		IgnoredHeaderBytes: c.IgnoredHeaderBytes,
	}
}

// Validate checks the collector configuration and underlying watcher-related options.
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return errors.New("worker count must be > 0")
	}
	if c.Separator == "" {
		return errors.New("separator must not be empty")
	}
	switch c.ReadFrom {
	case "", ReadFromBeginning, ReadFromEnd:
	default:
		return errors.New("read from must be \"beginning\" or \"end\"")
	}
	if c.RemoveAfter < 0 {
		return errors.New("remove after must be >= 0")
	}
	if c.StoreOffsets && c.FlushInterval <= 0 {
		return errors.New("flush interval must be > 0")
	}
	if c.Multiline.Enabled {
		if err := c.validateMultiline(); err != nil {
			return err
		}
	}
	// Build a watcher config to reuse its validation rules
	wc := watcher.Config{
		PollInterval:  c.PollInterval,
		Fingerprinter: c.fingerprinter(),
		Include:       c.Include,
		Exclude:       c.Exclude,
		Tracker:       nil, // set at runtime by NewCollector
	}
	return wc.Validate()
}

func (c *Config) validateMultiline() error {
	switch c.Multiline.Mode {
	case tailer.MultilineModeContinueThrough, tailer.MultilineModeContinuePast,
		tailer.MultilineModeHaltBefore, tailer.MultilineModeHaltWith:
	default:
		return errors.New("unsupported multiline mode: " + c.Multiline.Mode)
	}
	if c.Multiline.StartPattern == "" {
		return errors.New("multiline start pattern must not be empty")
	}
	if _, err := regexp.Compile(c.Multiline.StartPattern); err != nil {
		return err
	}
	if c.Multiline.ConditionPattern == "" {
		return errors.New("multiline condition pattern must not be empty")
	}
	if _, err := regexp.Compile(c.Multiline.ConditionPattern); err != nil {
		return err
	}
	if c.Multiline.Timeout <= 0 {
		return errors.New("multiline timeout must be > 0")
	}
	return nil
}
