package tailer

import (
	"container/list"
	"log/slog"
	"sync"
)

// TailScheduler hands out readers to workers. The list is kept in discovery
// order. In fair mode a rotating cursor gives every file an equal budgeted
// read per pass; in oldest-first mode the oldest entry believed to have
// backlog is drained exclusively before younger entries get any budget.
type TailScheduler struct {
	oldestFirst bool
	available   *list.List
	cursor      *list.Element
	index       map[string]*list.Element
	running     map[string]bool
	backlog     map[string]bool
	mu          sync.Mutex
}

func NewTailScheduler(oldestFirst bool) *TailScheduler {
	return &TailScheduler{
		oldestFirst: oldestFirst,
		available:   list.New(),
		running:     make(map[string]bool),
		backlog:     make(map[string]bool),
		index:       make(map[string]*list.Element),
	}
}

func (t *TailScheduler) Add(id string, fileTail *TailReader) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.index[id]; exists {
		slog.Debug("file already scheduled", "id", id)
		return
	}

	elem := t.available.PushBack(fileTail)
	t.index[id] = elem
	// Assume backlog until a read proves otherwise, so a newly discovered
	// file is drained in discovery order.
	t.backlog[id] = true

	if t.cursor == nil {
		t.cursor = t.available.Front()
	}
}

// RemoveIfIdle removes the entry and returns its reader, but only when no
// worker currently holds it. Returns (nil, false) when the entry is running
// or unknown; the caller retries later.
func (t *TailScheduler) RemoveIfIdle(id string) (*TailReader, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, exists := t.index[id]
	if !exists || t.running[id] {
		return nil, false
	}

	fileTail, _ := elem.Value.(*TailReader)
	t.removeLocked(id, elem)
	return fileTail, true
}

func (t *TailScheduler) removeLocked(id string, elem *list.Element) {
	if t.cursor == elem {
		t.cursor = elem.Next()
	}
	t.available.Remove(elem)
	delete(t.index, id)
	delete(t.running, id)
	delete(t.backlog, id)
	if t.cursor == nil {
		t.cursor = t.available.Front()
	}
}

func (t *TailScheduler) Get(id string) *TailReader {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, exists := t.index[id]; exists {
		fileTail, _ := elem.Value.(*TailReader)
		return fileTail
	}
	return nil
}

func (t *TailScheduler) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.available.Len()
}

// SetIdle releases a reader after a budgeted read. hadData records whether
// the read produced bytes; oldest-first uses it to decide when a drain is
// complete.
func (t *TailScheduler) SetIdle(id string, hadData bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[id]; ok {
		t.running[id] = false
		t.backlog[id] = hadData
	}
}

// NextAvailable returns an idle reader and marks it running.
func (t *TailScheduler) NextAvailable() (*TailReader, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.available.Len() == 0 {
		return nil, false
	}

	if t.oldestFirst {
		// Oldest backlogged entry wins. If it is being drained right now,
		// nothing younger may leapfrog it.
		for e := t.available.Front(); e != nil; e = e.Next() {
			fileTail, _ := e.Value.(*TailReader)
			if !t.backlog[fileTail.FileId] {
				continue
			}
			if t.running[fileTail.FileId] {
				return nil, false
			}
			t.running[fileTail.FileId] = true
			return fileTail, true
		}
		// No known backlog anywhere: fall through and poll round-robin.
	}

	// One bounded pass: every element is visited at most once, so the loop
	// terminates even when removals have moved the cursor and every remaining
	// entry is running.
	for i := t.available.Len(); i > 0; i-- {
		if t.cursor == nil {
			t.cursor = t.available.Front()
		}
		elem := t.cursor
		t.cursor = t.cursor.Next()

		fileTail, ok := elem.Value.(*TailReader)
		if !ok {
			continue
		}
		if !t.running[fileTail.FileId] {
			t.running[fileTail.FileId] = true
			return fileTail, true
		}
	}

	return nil, false
}
