package tailer

import (
	"errors"
	"regexp"
	"sync"
	"time"
)

const (
	MultilineModeContinueThrough = "continueThrough"
	MultilineModeContinuePast    = "continuePast"
	MultilineModeHaltBefore      = "haltBefore"
	MultilineModeHaltWith        = "haltWith"
)

// MultilineReader merges consecutive raw lines into logical records for one
// watched file. Lines matching the start pattern open a group; the condition
// pattern and mode decide how the group grows and ends. A group also flushes
// when no line completes it within Timeout of its first line, and on forced
// teardown when the owning file is removed.
type MultilineReader struct {
	Mode             string
	StartPattern     string // start of a multiline record; only lines matching this begin accumulation
	ConditionPattern string // e.g. "^\\s" for indented lines
	Timeout          time.Duration

	out     func([]byte) // receives completed records, called in input order
	re      *regexp.Regexp
	startRe *regexp.Regexp
	buf     []byte    // current assembling record (without trailing separator)
	started time.Time // when the first line of the current group was buffered
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu sync.Mutex // protects buf/started and serializes out calls
}

// NewMultilineReader compiles the patterns, starts the timeout flusher, and
// returns a reader delivering completed records to out.
func NewMultilineReader(mode, startPattern, conditionPattern string, timeout time.Duration, out func([]byte)) (*MultilineReader, error) {
	m := &MultilineReader{
		Mode:             mode,
		StartPattern:     startPattern,
		ConditionPattern: conditionPattern,
		Timeout:          timeout,
		out:              out,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var err error
	if m.startRe, err = regexp.Compile(startPattern); err != nil {
		return nil, err
	}
	if m.re, err = regexp.Compile(conditionPattern); err != nil {
		return nil, err
	}
	go m.timeoutLoop()
	return m, nil
}

func (m *MultilineReader) Validate() error {
	switch m.Mode {
	case MultilineModeContinueThrough, MultilineModeContinuePast,
		MultilineModeHaltBefore, MultilineModeHaltWith:
	default:
		return errors.New("unsupported multiline mode: " + m.Mode)
	}
	if m.StartPattern == "" {
		return errors.New("StartPattern is required")
	}
	if m.ConditionPattern == "" {
		return errors.New("ConditionPattern is required")
	}
	if m.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if m.out == nil {
		return errors.New("output callback is required")
	}
	return nil
}

// timeoutLoop flushes a group that received its first line longer than
// Timeout ago. Ticker granularity is a fraction of the timeout.
func (m *MultilineReader) timeoutLoop() {
	defer close(m.doneCh)
	interval := m.Timeout / 4
	if interval <= 0 {
		interval = m.Timeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			if len(m.buf) > 0 && !m.started.IsZero() && time.Since(m.started) >= m.Timeout {
				m.flushLocked()
			}
			m.mu.Unlock()
		}
	}
}

// Write ingests one raw line (without its separator) and advances the state
// machine. Completed records are delivered to out in input order, which may
// block when the downstream is slow.
func (m *MultilineReader) Write(b []byte) {
	line := append([]byte(nil), b...) // copy
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.buf) == 0 {
		m.beginOrEmitLocked(line)
		return
	}

	matches := m.re.Match(line)

	switch m.Mode {
	case MultilineModeContinueThrough:
		// Keep appending while the condition holds; the first line that does
		// not match ends the group and is evaluated fresh as a start line.
		if matches {
			m.appendLocked(line)
			return
		}
		m.flushLocked()
		m.beginOrEmitLocked(line)

	case MultilineModeContinuePast:
		// Keep appending while the condition holds, then take exactly one
		// more line unconditionally and flush.
		if matches {
			m.appendLocked(line)
			return
		}
		m.appendLocked(line)
		m.flushLocked()

	case MultilineModeHaltBefore:
		// Append until the condition matches; the matching line is excluded
		// from the current group and starts the next one.
		if matches {
			m.flushLocked()
			m.beginOrEmitLocked(line)
			return
		}
		m.appendLocked(line)

	case MultilineModeHaltWith:
		// Append until the condition matches; the matching line is included
		// and closes the group.
		if matches {
			m.appendLocked(line)
			m.flushLocked()
			return
		}
		m.appendLocked(line)
	}
}

// beginOrEmitLocked handles a line arriving with no group in progress: a
// start-pattern match opens a group, anything else passes through standalone.
func (m *MultilineReader) beginOrEmitLocked(line []byte) {
	if m.startRe.Match(line) {
		m.buf = line
		m.started = time.Now()
		return
	}
	m.out(append([]byte(nil), line...))
}

func (m *MultilineReader) appendLocked(line []byte) {
	// Join lines with a single newline to reconstruct the logical message
	m.buf = append(m.buf, '\n')
	m.buf = append(m.buf, line...)
}

func (m *MultilineReader) flushLocked() {
	if len(m.buf) == 0 {
		return
	}
	rec := append([]byte(nil), m.buf...)
	m.buf = nil
	m.started = time.Time{}
	m.out(rec)
}

// Flush emits the currently buffered record, if any. Called on forced
// teardown when the owning file is removed.
func (m *MultilineReader) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

// Close stops the timeout flusher. It does not flush; call Flush first when
// the buffered group should still be delivered.
func (m *MultilineReader) Close() {
	select {
	case <-m.stopCh:
		return
	default:
		close(m.stopCh)
	}
	<-m.doneCh
}
