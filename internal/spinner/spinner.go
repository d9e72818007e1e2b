// Package spinner provides the placeholder glyph cycle and the periodic timer
// that animates it while a response is pending.
package spinner

import (
	"sync"
	"time"
)

// Frames is the fixed placeholder cycle shown before real content arrives.
var Frames = [10]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Frame returns the placeholder glyph for step n, wrapping around the cycle.
func Frame(n int) string {
	if n < 0 {
		n = -n
	}
	return Frames[n%len(Frames)]
}

// IsFrame reports whether text is exactly one placeholder glyph.
func IsFrame(text string) bool {
	for _, f := range Frames {
		if text == f {
			return true
		}
	}
	return false
}

// Next returns the frame following text, or the first frame when text is not a frame.
func Next(text string) string {
	for i, f := range Frames {
		if text == f {
			return Frames[(i+1)%len(Frames)]
		}
	}
	return Frames[0]
}

// Timer calls onTick every interval until stopped.
// It is safe for concurrent use.
type Timer struct {
	mu       sync.Mutex
	timer    *time.Timer
	interval time.Duration
	onTick   func()
	stopped  bool
}

// Start creates and starts a Timer. onTick is called in a separate goroutine.
//
// Precondition: interval > 0; onTick must not be nil.
// Postcondition: Returns a running Timer; onTick fires every interval until Stop is called.
func Start(interval time.Duration, onTick func()) *Timer {
	t := &Timer{interval: interval, onTick: onTick}
	t.mu.Lock()
	t.timer = time.AfterFunc(interval, t.fire)
	t.mu.Unlock()
	return t
}

func (t *Timer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.onTick()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.timer = time.AfterFunc(t.interval, t.fire)
	}
}

// Stop prevents further ticks. Safe to call multiple times.
//
// Postcondition: No new tick starts after Stop returns; a tick already running may finish.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Stop()
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
