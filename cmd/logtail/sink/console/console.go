package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	sinkmetrics "github.com/loykin/logtail/cmd/logtail/metrics"
	"github.com/loykin/logtail/cmd/logtail/sink/common"
	"gopkg.in/natefinch/lumberjack.v2"
)

// stdoutSink batches and writes records to stdout (or any io.Writer) as a sink.
type stdoutSink struct {
	batcher common.Batcher
	w       io.Writer
}

// New returns a console sink writing to stdout or stderr depending on stream.
// stream: "stdout" (default) or "stderr".
func New(stream string, batchSize int, batchInterval time.Duration, includes, excludes []string) common.Sink {
	w := io.Writer(os.Stdout)
	if stream == "stderr" {
		w = os.Stderr
	}
	s := &stdoutSink{batcher: common.NewBatcher(batchSize, batchInterval, includes, excludes, "console"), w: w}
	s.start()
	return s
}

func (s *stdoutSink) start() {
	s.batcher.Wg.Add(1)
	go func() {
		defer s.batcher.Wg.Done()
		buf := make([]common.Record, 0, s.batcher.BatchSize)
		ticker := time.NewTicker(s.batcher.BatchInterval)
		defer ticker.Stop()
		flush := func() {
			if len(buf) == 0 {
				return
			}
			start := time.Now()
			for _, rec := range buf {
				_, _ = fmt.Fprintln(s.w, rec.Text)
			}
			sinkmetrics.SinkFlushObserve("console", len(buf), time.Since(start), true)
			buf = buf[:0]
		}
		for {
			select {
			case <-s.batcher.StopCh:
				flush()
				return
			case <-ticker.C:
				flush()
			case rec := <-s.batcher.Ch:
				buf = append(buf, rec)
				if len(buf) >= s.batcher.BatchSize {
					flush()
				}
			}
		}
	}()
}

func (s *stdoutSink) Enqueue(rec common.Record) { s.batcher.Enqueue(rec) }

func (s *stdoutSink) Stop() error {
	s.batcher.StopOnce.Do(func() { close(s.batcher.StopCh) })
	s.batcher.Wg.Wait()
	return nil
}

// fileSink writes records to a self-rotating log file.
type fileSink struct {
	batcher common.Batcher
	out     *lumberjack.Logger
}

// FileOptions controls the rotation behavior of the file sink.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFile creates a rotating file sink and starts it.
func NewFile(opts FileOptions, batchSize int, batchInterval time.Duration, includes, excludes []string) (common.Sink, error) {
	if opts.Path == "" {
		return nil, errors.New("file sink requires a path")
	}
	s := &fileSink{
		batcher: common.NewBatcher(batchSize, batchInterval, includes, excludes, "file"),
		out: &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}
	s.start()
	return s, nil
}

func (s *fileSink) start() {
	s.batcher.Wg.Add(1)
	go func() {
		defer s.batcher.Wg.Done()
		buf := make([]common.Record, 0, s.batcher.BatchSize)
		ticker := time.NewTicker(s.batcher.BatchInterval)
		defer ticker.Stop()
		flush := func() {
			if len(buf) == 0 {
				return
			}
			start := time.Now()
			ok := true
			for _, rec := range buf {
				if _, err := fmt.Fprintln(s.out, rec.Text); err != nil {
					ok = false
				}
			}
			sinkmetrics.SinkFlushObserve("file", len(buf), time.Since(start), ok)
			buf = buf[:0]
		}
		for {
			select {
			case <-s.batcher.StopCh:
				flush()
				return
			case <-ticker.C:
				flush()
			case rec := <-s.batcher.Ch:
				buf = append(buf, rec)
				if len(buf) >= s.batcher.BatchSize {
					flush()
				}
			}
		}
	}()
}

func (s *fileSink) Enqueue(rec common.Record) { s.batcher.Enqueue(rec) }

func (s *fileSink) Stop() error {
	s.batcher.StopOnce.Do(func() { close(s.batcher.StopCh) })
	s.batcher.Wg.Wait()
	return s.out.Close()
}
