package tailer

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/loykin/logtail/internal/metrics"
	"github.com/loykin/logtail/internal/tracker"
)

const DefaultMaxReadBytes = 64 * 1024
const DefaultMaxLineBytes = 100 * 1024

// TailReader reads one watched file incrementally. The handle is opened once
// and kept across reads so a deleted or rotated-away file can still be drained
// to its own end-of-data. Offset only ever advances past complete delimited
// lines; a trailing partial line stays buffered until its delimiter arrives.
type TailReader struct {
	FileId        string
	Offset        int64
	Separator     string
	MaxLineBytes  int
	Tracker       *tracker.Tracker
	Fingerprinter tracker.Fingerprinter

	// mu protects the handle and state against races between the worker
	// reading and the removal path closing the reader.
	mu         sync.Mutex
	path       string
	file       *os.File
	reader     *bufio.Reader
	buf        []byte // internal buffer across reads for incomplete lines
	discarding bool   // currently dropping an oversized line
	discarded  int64  // sep-free bytes already dropped from the oversized line
	eof        bool   // last read reached end of currently-available data
	dead       bool
}

func (t *TailReader) open() error {
	if t.file != nil {
		return nil
	}

	fileInfo := t.Tracker.Get(t.FileId)
	if fileInfo == nil {
		return errors.New("file not found: " + t.FileId)
	}

	file, err := os.Open(fileInfo.Path)
	if err != nil {
		return err
	}

	fileId, err := t.Fingerprinter.IdentifyFile(file)
	if err != nil {
		_ = file.Close()
		return err
	}
	if fileId != t.FileId {
		_ = file.Close()
		return &FingerprintMismatchError{
			Path:                fileInfo.Path,
			ExpectedFingerprint: t.FileId,
			ActualFingerprint:   fileId,
		}
	}

	if _, err = file.Seek(t.Offset, io.SeekStart); err != nil {
		_ = file.Close()
		return err
	}

	t.path = fileInfo.Path
	t.file = file
	t.reader = bufio.NewReader(t.file)

	return nil
}

// ReadBudget reads up to budget bytes, invoking callback for every complete
// line (without its separator). It returns the number of bytes consumed from
// the file. Reaching end of currently-available data is not an error; the
// reader resumes from its position on the next call.
//
// Lines are delivered after the read completes, outside the internal lock, so
// the callback may call back into the reader (Path, AtEOF).
func (t *TailReader) ReadBudget(budget int, callback func(string)) (int, error) {
	t.mu.Lock()
	var lines []string
	read, err := t.readLocked(budget, &lines)
	t.mu.Unlock()

	for _, line := range lines {
		callback(line)
	}
	return read, err
}

func (t *TailReader) readLocked(budget int, lines *[]string) (int, error) {
	if t.dead {
		return 0, nil
	}

	sep := []byte(t.Separator)
	if len(sep) == 0 {
		return 0, errors.New("separator must not be empty")
	}
	if budget <= 0 {
		budget = DefaultMaxReadBytes
	}

	if err := t.open(); err != nil {
		return 0, err
	}

	// A shrunken file cannot be read past its end; the caller decides whether
	// to Restart (head intact) or retire the reader.
	if info, err := t.file.Stat(); err == nil && info.Size() < t.Offset {
		return 0, &FileTruncatedError{Path: t.path, Size: info.Size(), Offset: t.Offset}
	}

	t.eof = false
	read := 0
	for {
		if read >= budget {
			return read, nil
		}
		data, err := t.reader.ReadBytes(sep[len(sep)-1])
		if len(data) > 0 {
			read += len(data)
			t.buf = append(t.buf, data...)
			t.emitComplete(sep, lines)
			t.clampOversize(sep)
		}
		if err != nil {
			if err == io.EOF {
				t.eof = true
				return read, nil
			}
			return read, err
		}
	}
}

// emitComplete consumes every complete separator-terminated chunk in the
// internal buffer, committing the offset past each one.
func (t *TailReader) emitComplete(sep []byte, lines *[]string) {
	for {
		idx := bytes.Index(t.buf, sep)
		if idx < 0 {
			return
		}
		end := idx + len(sep)
		chunk := t.buf[:end]
		t.buf = append([]byte{}, t.buf[end:]...)

		if t.discarding {
			// Tail end of an oversized line: the whole line is dropped but
			// the offset still advances past it.
			t.Offset += t.discarded + int64(end)
			t.discarded = 0
			t.discarding = false
			metrics.IncOversizedLines()
			continue
		}

		t.Offset += int64(end)
		if t.MaxLineBytes > 0 && idx > t.MaxLineBytes {
			// The whole oversized line arrived in one read.
			metrics.IncOversizedLines()
			continue
		}
		if end > len(sep) {
			*lines = append(*lines, string(chunk[:idx]))
		}
	}
}

// clampOversize keeps the partial-line buffer bounded. Once the buffered
// partial exceeds MaxLineBytes it can never be emitted, so its bytes are
// dropped as they stream in; only a possible separator prefix is retained so
// a separator split across reads is still found.
func (t *TailReader) clampOversize(sep []byte) {
	if t.MaxLineBytes <= 0 {
		return
	}
	keep := len(sep) - 1
	if t.discarding {
		if len(t.buf) > keep {
			t.discarded += int64(len(t.buf) - keep)
			t.buf = append([]byte{}, t.buf[len(t.buf)-keep:]...)
		}
		return
	}
	if len(t.buf) > t.MaxLineBytes {
		t.discarding = true
		t.discarded = int64(len(t.buf) - keep)
		t.buf = append([]byte{}, t.buf[len(t.buf)-keep:]...)
	}
}

// AtEOF reports whether the last read reached the end of currently-available
// data. A dead reader is always at end-of-data.
func (t *TailReader) AtEOF() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eof || t.dead
}

// Path returns the path the reader last opened.
func (t *TailReader) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path != "" {
		return t.path
	}
	if info := t.Tracker.Get(t.FileId); info != nil {
		return info.Path
	}
	return ""
}

// Restart rewinds the reader to the start of the file, dropping any buffered
// partial line. The handle is reopened on the next read, so the fingerprint is
// verified again before anything is emitted. Used after in-place truncation.
func (t *TailReader) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Offset = 0
	t.discarding = false
	t.discarded = 0
	t.eof = false
	t.cleanup()
}

// MarkDead makes the reader permanently report end-of-data. Used when the
// underlying stream is known to be unreadable (rotated away, replaced).
func (t *TailReader) MarkDead() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dead = true
	t.cleanup()
}

func (t *TailReader) cleanup() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
	t.reader = nil
	t.buf = nil
}

func (t *TailReader) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup()
}
