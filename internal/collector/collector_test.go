package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/loykin/logtail/internal/tailer"
	"github.com/loykin/logtail/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) onRecord(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, rec.Text)
}

func (s *lineSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *lineSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func testConfig(tempDir string, include ...string) Config {
	var cfg Config
	cfg.Default()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.FlushInterval = 50 * time.Millisecond
	cfg.Include = include
	cfg.DBPath = filepath.Join(tempDir, "collector.db")
	return cfg
}

func TestCollector_TailsFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "app.log")
	require.NoError(t, os.WriteFile(logPath, []byte("first\nsecond\n"), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, logPath)
	cfg.StoreOffsets = false
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 3*time.Second, 20*time.Millisecond)

	// Appended lines keep flowing through the same reader.
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("third\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return sink.count() == 3 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"first", "second", "third"}, sink.snapshot())
}

func TestCollector_RecordsChannel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "chan.log")
	require.NoError(t, os.WriteFile(logPath, []byte("a\nb\n"), 0644))

	cfg := testConfig(tempDir, logPath)
	cfg.StoreOffsets = false

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()

	var got []string
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case rec := <-c.Records():
			assert.Equal(t, logPath, rec.Path)
			assert.False(t, rec.Time.IsZero())
			got = append(got, rec.Text)
		case <-deadline:
			t.Fatal("timed out waiting for records")
		}
	}
	c.Stop()

	assert.Equal(t, []string{"a", "b"}, got)

	// Stop closes the channel.
	_, open := <-c.Records()
	assert.False(t, open)
}

func TestCollector_ResumesFromCheckpoint(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "resume.log")
	require.NoError(t, os.WriteFile(logPath, []byte("one\ntwo\n"), 0644))

	run := func() *lineSink {
		sink := &lineSink{}
		cfg := testConfig(tempDir, logPath)
		cfg.OnRecord = sink.onRecord
		c, err := NewCollector(cfg)
		require.NoError(t, err)
		c.Start()
		time.Sleep(500 * time.Millisecond)
		c.Stop()
		return sink
	}

	first := run()
	assert.Equal(t, []string{"one", "two"}, first.snapshot())

	// Append between runs; the second run must deliver only the new line.
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("three\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second := run()
	assert.Equal(t, []string{"three"}, second.snapshot())
}

func TestCollector_IgnoreCheckpoints(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "fresh.log")
	require.NoError(t, os.WriteFile(logPath, []byte("one\ntwo\n"), 0644))

	run := func(ignore bool) *lineSink {
		sink := &lineSink{}
		cfg := testConfig(tempDir, logPath)
		cfg.IgnoreCheckpoints = ignore
		cfg.OnRecord = sink.onRecord
		c, err := NewCollector(cfg)
		require.NoError(t, err)
		c.Start()
		time.Sleep(500 * time.Millisecond)
		c.Stop()
		return sink
	}

	run(false)
	// The stored offset exists, but the second run rereads from the start.
	second := run(true)
	assert.Equal(t, []string{"one", "two"}, second.snapshot())
}

func TestCollector_ReadFromEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "end.log")
	require.NoError(t, os.WriteFile(logPath, []byte("old one\nold two\n"), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, logPath)
	cfg.StoreOffsets = false
	cfg.ReadFrom = ReadFromEnd
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	// Give discovery a moment, then append.
	time.Sleep(300 * time.Millisecond)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("new\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return sink.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	// Pre-existing content is skipped entirely.
	assert.Equal(t, []string{"new"}, sink.snapshot())
}

func TestCollector_RotationStartsNewStream(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "rotate.log")
	require.NoError(t, os.WriteFile(logPath, []byte("pre rotation\n"), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, filepath.Join(tempDir, "*.log"))
	cfg.StoreOffsets = false
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 20*time.Millisecond)

	// Classic rotation: rename away, recreate the path with fresh content.
	require.NoError(t, os.Rename(logPath, logPath+".1"))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(logPath, []byte("post rotation\n"), 0644))

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 3*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"pre rotation", "post rotation"}, sink.snapshot())
}

func TestCollector_MultilineAggregation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "ml.log")
	content := "ERROR start\n  at foo\n  at bar\nINFO next\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, logPath)
	cfg.StoreOffsets = false
	cfg.Multiline = MultilineConfig{
		Enabled:          true,
		Mode:             tailer.MultilineModeContinueThrough,
		StartPattern:     `^[^\s]`,
		ConditionPattern: `^\s`,
		Timeout:          200 * time.Millisecond,
	}
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{
		"ERROR start\n  at foo\n  at bar",
		"INFO next",
	}, sink.snapshot())
}

func TestCollector_DeletedFileRemovedAfterDrain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "doomed.log")
	require.NoError(t, os.WriteFile(logPath, []byte("going\naway\n"), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, filepath.Join(tempDir, "*.log"))
	cfg.StoreOffsets = false
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 2 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(logPath))

	// Once drained and confirmed missing, the registry entry disappears.
	assert.Eventually(t, func() bool {
		return len(c.fileManager.Snapshot()) == 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 0, c.scheduler.Count())
}

func TestCollector_MultipleFilesAndWorkers(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	want := 0
	for i := 0; i < 5; i++ {
		var content string
		for j := 0; j < 20; j++ {
			content += fmt.Sprintf("file%d line%02d\n", i, j)
			want++
		}
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, fmt.Sprintf("f%d.log", i)), []byte(content), 0644))
	}

	sink := &lineSink{}
	cfg := testConfig(tempDir, filepath.Join(tempDir, "*.log"))
	cfg.StoreOffsets = false
	cfg.WorkerCount = 3
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == want }, 5*time.Second, 20*time.Millisecond)

	// Per-file ordering is preserved even with concurrent workers.
	perFile := make(map[string][]string)
	for _, line := range sink.snapshot() {
		key := line[:5]
		perFile[key] = append(perFile[key], line)
	}
	for key, lines := range perFile {
		require.Len(t, lines, 20, "file %s", key)
		for j, line := range lines {
			assert.Equal(t, fmt.Sprintf("%s line%02d", key, j), line)
		}
	}
}

func TestCollector_TruncatedFileRetired(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "trunc.log")
	require.NoError(t, os.WriteFile(logPath, []byte("aaa\nbbb\nccc\n"), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, logPath)
	cfg.StoreOffsets = false
	// Checksum identity: truncate+rewrite changes the fingerprint.
	cfg.FingerprintStrategy = tracker.StrategyChecksum
	cfg.FingerprintLines = 1
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 3 }, 3*time.Second, 20*time.Millisecond)

	// Replace the content wholesale; the new stream is registered fresh and
	// read from offset zero.
	require.NoError(t, os.WriteFile(logPath, []byte("replacement\n"), 0644))

	assert.Eventually(t, func() bool { return sink.count() == 4 }, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, sink.snapshot(), "replacement")
}

func TestCollector_TruncationRestartsStream(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip inode-based collector tests on Windows")
	}
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "shrunk.log")
	require.NoError(t, os.WriteFile(logPath, []byte("header\nold line one\nold line two\n"), 0644))

	sink := &lineSink{}
	cfg := testConfig(tempDir, logPath)
	// Checksum over the first line only: the rewrite below keeps the
	// fingerprint, so this stays the same stream.
	cfg.FingerprintStrategy = tracker.StrategyChecksum
	cfg.FingerprintLines = 1
	cfg.OnRecord = sink.onRecord

	c, err := NewCollector(cfg)
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sink.count() == 3 }, 3*time.Second, 20*time.Millisecond)

	// Truncate-and-rewrite in place, shorter than what was already read but
	// with the fingerprinted head intact.
	require.NoError(t, os.WriteFile(logPath, []byte("header\nNEW\n"), 0644))

	// The stream restarts from the top: the header repeats, then the new data
	// arrives. Nothing is skipped and the entry stays live.
	assert.Eventually(t, func() bool { return sink.count() == 5 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{
		"header", "old line one", "old line two",
		"header", "NEW",
	}, sink.snapshot())
	assert.Equal(t, 1, c.scheduler.Count())
}
