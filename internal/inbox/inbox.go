// Package inbox provides the single ordered event queue that serializes all
// session mutations onto one consumer goroutine.
package inbox

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Post after the inbox has been closed.
var ErrClosed = errors.New("inbox closed")

// Event is any typed message posted to the inbox. Consumers type-switch on it.
type Event interface{}

// Poster accepts events for the consumer loop.
type Poster interface {
	Post(ev Event) error
}

// Inbox is a FIFO of events with many producers and one consumer.
// Events posted by a single goroutine are delivered in posting order.
type Inbox struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// New creates an Inbox buffering up to size events.
//
// Postcondition: size <= 0 selects a buffer of 256.
func New(size int) *Inbox {
	if size <= 0 {
		size = 256
	}
	return &Inbox{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Post enqueues ev, blocking while the buffer is full.
//
// Postcondition: Returns nil once ev is queued, or ErrClosed if the inbox is or becomes closed.
func (i *Inbox) Post(ev Event) error {
	select {
	case <-i.done:
		return ErrClosed
	default:
	}
	select {
	case i.events <- ev:
		return nil
	case <-i.done:
		return ErrClosed
	}
}

// Events returns the consumer side of the queue. It is never closed; consumers
// select on Done as well.
func (i *Inbox) Events() <-chan Event {
	return i.events
}

// Done is closed when the inbox is closed.
func (i *Inbox) Done() <-chan struct{} {
	return i.done
}

// Close stops accepting events. Safe to call multiple times.
func (i *Inbox) Close() {
	i.once.Do(func() { close(i.done) })
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(ev Event) error

// Post calls f(ev).
func (f PosterFunc) Post(ev Event) error { return f(ev) }
