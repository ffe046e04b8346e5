package tracker

import (
	"sync"
	"time"
)

// State is the lifecycle state of a tracked file.
type State int

const (
	StateActive State = iota
	// StatePendingRemoval marks a file whose backing path no longer matches
	// discovery. The entry stays registered until the reader has drained to
	// end-of-data and the removal grace period has elapsed.
	StatePendingRemoval
)

// TrackedFile is the registry entry for one watched stream. Exactly one entry
// exists per fingerprint; a rename updates Path without resetting Offset.
type TrackedFile struct {
	Path         string
	Strategy     string
	Offset       int64
	State        State
	DiscoveredAt time.Time
	Seq          uint64
	MissingSince time.Time
}

// Tracker is the authoritative set of currently-watched files, keyed by
// fingerprint. All mutations are serialized by a single mutex so concurrent
// scheduler reads always observe a consistent entry.
type Tracker struct {
	info  map[string]TrackedFile
	seq   uint64
	mutex sync.Mutex
}

func New() *Tracker {
	return &Tracker{
		info: make(map[string]TrackedFile),
	}
}

// Add registers a new fingerprint. Later additions always receive a higher
// sequence number, so files discovered during a drain rank younger than any
// file with outstanding backlog.
func (t *Tracker) Add(fileId string, path string, strategy string, offset int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.seq++
	t.info[fileId] = TrackedFile{
		Path:         path,
		Strategy:     strategy,
		Offset:       offset,
		State:        StateActive,
		DiscoveredAt: time.Now(),
		Seq:          t.seq,
	}
}

func (t *Tracker) Get(fileId string) *TrackedFile {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if info, ok := t.info[fileId]; ok {
		return &info
	}
	return nil
}

func (t *Tracker) Remove(fileId string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	delete(t.info, fileId)
}

func (t *Tracker) UpdateOffset(fileId string, offset int64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if file, exists := t.info[fileId]; exists {
		file.Offset = offset
		t.info[fileId] = file
		return true
	}
	return false
}

// UpdatePath records a rename: same fingerprint seen at a new path. The
// offset and discovery order are preserved.
func (t *Tracker) UpdatePath(fileId string, path string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if file, exists := t.info[fileId]; exists {
		file.Path = path
		t.info[fileId] = file
		return true
	}
	return false
}

// MarkPendingRemoval flags a file whose path vanished or stopped matching.
// MissingSince is only set on the first transition so the grace period is
// measured from when the file first went missing.
func (t *Tracker) MarkPendingRemoval(fileId string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	file, exists := t.info[fileId]
	if !exists {
		return false
	}
	if file.State != StatePendingRemoval {
		file.State = StatePendingRemoval
		file.MissingSince = time.Now()
		t.info[fileId] = file
	}
	return true
}

// MarkActive clears a pending removal when the file is found again.
func (t *Tracker) MarkActive(fileId string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	file, exists := t.info[fileId]
	if !exists {
		return false
	}
	file.State = StateActive
	file.MissingSince = time.Time{}
	t.info[fileId] = file
	return true
}

// Snapshot returns a copy of all entries.
func (t *Tracker) Snapshot() map[string]TrackedFile {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	result := make(map[string]TrackedFile, len(t.info))
	for id, file := range t.info {
		result[id] = file
	}
	return result
}
