package ledger

import (
	"sync"
	"sync/atomic"
)

// Op identifies the kind of ledger mutation a Change reports.
type Op string

const (
	OpAppend Op = "append"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Change is a ledger mutation notification.
type Change struct {
	Op    Op
	Entry Entry
}

// Feed routes ledger changes to a buffered channel for a renderer.
// A full buffer drops the change; readers resync from Ledger.Entries.
type Feed struct {
	changes chan Change
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// NewFeed creates a Feed with the given buffer size.
//
// Postcondition: Returns a Feed with an open changes channel; bufferSize <= 0 selects 64.
func NewFeed(bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Feed{changes: make(chan Change, bufferSize)}
}

// publish enqueues c without blocking.
//
// Postcondition: Returns false when the feed is closed or full.
func (f *Feed) publish(c Change) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	select {
	case f.changes <- c:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Changes returns the read-only change channel. It is closed by Close.
func (f *Feed) Changes() <-chan Change {
	return f.changes
}

// Dropped returns the number of changes discarded because the buffer was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close marks the feed closed and closes the change channel. Safe to call repeatedly.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.changes)
	}
}
