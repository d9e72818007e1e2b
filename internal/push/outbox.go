package push

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrOutboxFull is returned when the outbound queue cannot take another message.
	ErrOutboxFull = errors.New("push outbox full")
	// ErrClosed is returned when sending on a closed channel.
	ErrClosed = errors.New("push channel closed")

	// errStopped ends a Run goroutine group without reporting a failure.
	errStopped = errors.New("push channel stopped")
)

// outbox is the non-blocking outbound queue shared by every transport. One
// writer goroutine drains it.
type outbox struct {
	queue  chan Envelope
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 64
	}
	return &outbox{queue: make(chan Envelope, size), done: make(chan struct{})}
}

func (o *outbox) enqueue(typ string, payload interface{}) error {
	env, err := Encode(typ, payload)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.queue <- env:
		return nil
	default:
		return ErrOutboxFull
	}
}

// SendDuelMove queues the player's move for opponentID.
func (o *outbox) SendDuelMove(opponentID, move string) error {
	return o.enqueue(TypeDuelMove, duelMoveOut{OpponentID: opponentID, Move: move})
}

// SendDuelResponse queues an accept or decline for opponentID's challenge.
func (o *outbox) SendDuelResponse(opponentID string, accept bool) error {
	return o.enqueue(TypeDuelResponse, duelResponseOut{OpponentID: opponentID, Accept: accept})
}

// SendChatMessage queues a chat line.
func (o *outbox) SendChatMessage(text, messageType string) error {
	return o.enqueue(TypeChatMessage, chatOut{Text: text, MessageType: messageType})
}

// drain writes queued envelopes until ctx is done, the outbox closes, or write fails.
func (o *outbox) drain(ctx context.Context, write func(context.Context, Envelope) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.done:
			return errStopped
		case env := <-o.queue:
			if err := write(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
}
