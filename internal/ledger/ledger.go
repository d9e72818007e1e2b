package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEntryNotFound is returned when an operation names an unknown entry ID.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrEntryFrozen is returned when mutating an entry that is no longer streaming.
	ErrEntryFrozen = errors.New("ledger entry is frozen")
	// ErrDuplicateID is returned when appending an entry whose ID already exists.
	ErrDuplicateID = errors.New("duplicate ledger entry id")
)

// Ledger is the ordered, append-mostly log of session entries.
// Writes come from the coordinator loop; reads are safe from any goroutine.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int // entry ID → position in entries
	feed    *Feed
	now     func() time.Time
}

// New creates an empty Ledger publishing changes to feed. feed may be nil.
func New(feed *Feed) *Ledger {
	return &Ledger{
		index: make(map[string]int),
		feed:  feed,
		now:   time.Now,
	}
}

// Append adds e to the end of the ledger.
//
// Precondition: e.Kind must be valid.
// Postcondition: Returns the stored entry with ID and Timestamp assigned when they were
// empty, or an error for an invalid kind or duplicate ID.
func (l *Ledger) Append(e Entry) (Entry, error) {
	if !e.Kind.Valid() {
		return Entry{}, fmt.Errorf("appending entry: invalid kind %q", e.Kind)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	l.mu.Lock()
	if _, exists := l.index[e.ID]; exists {
		l.mu.Unlock()
		return Entry{}, fmt.Errorf("appending entry %q: %w", e.ID, ErrDuplicateID)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e = e.clone()
	l.index[e.ID] = len(l.entries)
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	l.notify(OpAppend, e)
	return e.clone(), nil
}

// Update mutates the streaming entry id in place via fn.
// fn may not change the entry's ID; any attempt is reverted.
//
// Precondition: fn must be non-nil.
// Postcondition: Returns the updated entry, ErrEntryNotFound, or ErrEntryFrozen when
// the entry is no longer streaming.
func (l *Ledger) Update(id string, fn func(*Entry)) (Entry, error) {
	l.mu.Lock()
	pos, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return Entry{}, fmt.Errorf("updating entry %q: %w", id, ErrEntryNotFound)
	}
	e := l.entries[pos]
	if !e.IsStreaming {
		l.mu.Unlock()
		return Entry{}, fmt.Errorf("updating entry %q: %w", id, ErrEntryFrozen)
	}
	fn(&e)
	e.ID = id
	e = e.clone()
	l.entries[pos] = e
	l.mu.Unlock()

	l.notify(OpUpdate, e)
	return e.clone(), nil
}

// Remove deletes the entry id, preserving the order of the remaining entries.
//
// Postcondition: Returns ErrEntryNotFound if id is unknown.
func (l *Ledger) Remove(id string) error {
	l.mu.Lock()
	pos, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("removing entry %q: %w", id, ErrEntryNotFound)
	}
	removed := l.entries[pos]
	l.entries = append(l.entries[:pos], l.entries[pos+1:]...)
	delete(l.index, id)
	for i := pos; i < len(l.entries); i++ {
		l.index[l.entries[i].ID] = i
	}
	l.mu.Unlock()

	l.notify(OpRemove, removed)
	return nil
}

// Get returns the entry with the given ID.
//
// Postcondition: Returns (entry, true) if found, or (Entry{}, false) otherwise.
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[pos].clone(), true
}

// Entries returns a copy of all entries in ledger order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Recent returns up to limit of the newest entries accepted by match, oldest first.
//
// Postcondition: len(result) <= limit; a limit <= 0 yields nil.
func (l *Ledger) Recent(limit int, match func(Entry) bool) []Entry {
	if limit <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var picked []Entry
	for i := len(l.entries) - 1; i >= 0 && len(picked) < limit; i-- {
		if match == nil || match(l.entries[i]) {
			picked = append(picked, l.entries[i].clone())
		}
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

// Streaming returns the entries currently marked as streaming.
func (l *Ledger) Streaming() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.IsStreaming {
			out = append(out, e.clone())
		}
	}
	return out
}

func (l *Ledger) notify(op Op, e Entry) {
	if l.feed == nil {
		return
	}
	l.feed.publish(Change{Op: op, Entry: e.clone()})
}
