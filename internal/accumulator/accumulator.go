// Package accumulator turns a streamed world-action response into one ledger
// entry plus the session-state effects of its terminal payload.
package accumulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/api"
	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/inbox"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/session"
	"github.com/cory-johannsen/mudclient/internal/spinner"
)

// FailureText replaces the entry text when an action fails.
const FailureText = ledger.FailureText

var (
	// ErrActionPending is returned by Submit while the player has an action in flight.
	ErrActionPending = errors.New("an action is already pending")
	// ErrMalformedResult is the failure recorded for a terminal payload with no message.
	ErrMalformedResult = errors.New("terminal payload has no message")
)

// Outcome is the lifecycle state of a Session.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Session is one in-flight streaming action.
type Session struct {
	RequestID   string
	EntryID     string
	PlayerID    string
	RoomID      string
	Accumulated string
	Outcome     Outcome

	timer *spinner.Timer
}

// Streamer performs the streaming request.
type Streamer interface {
	StreamAction(ctx context.Context, req api.ActionRequest, onChunk func(text string)) (api.ActionResult, error)
}

// DuelStarter begins a duel signalled by an action result.
type DuelStarter interface {
	Begin(s duel.Start) error
}

// Events posted to the inbox by the stream goroutine and the spinner timer.
type (
	ChunkEvent struct {
		RequestID string
		Text      string
	}
	CompletedEvent struct {
		RequestID string
		Result    api.ActionResult
	}
	FailedEvent struct {
		RequestID string
		Err       error
	}
	TickEvent struct {
		RequestID string
	}
)

// Accumulator owns every streaming action session. All methods except Wait
// must be called from the coordinator loop.
type Accumulator struct {
	ledger   *ledger.Ledger
	store    *session.Store
	duels    DuelStarter
	streamer Streamer
	poster   inbox.Poster
	interval time.Duration
	logger   *zap.Logger

	byPlayer  map[string]*Session
	byRequest map[string]*Session
	wg        sync.WaitGroup
}

// New creates an Accumulator.
//
// Precondition: all collaborators must be non-nil; interval must be > 0.
func New(l *ledger.Ledger, store *session.Store, duels DuelStarter, streamer Streamer, poster inbox.Poster, interval time.Duration, logger *zap.Logger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{
		ledger:    l,
		store:     store,
		duels:     duels,
		streamer:  streamer,
		poster:    poster,
		interval:  interval,
		logger:    logger,
		byPlayer:  make(map[string]*Session),
		byRequest: make(map[string]*Session),
	}
}

// Pending reports whether playerID has an action in flight.
func (a *Accumulator) Pending(playerID string) bool {
	_, ok := a.byPlayer[playerID]
	return ok
}

// Submit opens a streaming session for text.
//
// Precondition: no session pending for playerID.
// Postcondition: On success a streaming system entry showing the first spinner frame
// exists and the request runs in the background. Returns ErrActionPending, with no
// ledger change and no request, when a session is already pending.
func (a *Accumulator) Submit(ctx context.Context, playerID, text, roomID string) (Session, error) {
	if a.Pending(playerID) {
		a.logger.Debug("rejecting action while one is pending", zap.String("player_id", playerID))
		return Session{}, ErrActionPending
	}

	entry, err := a.ledger.Append(ledger.Entry{
		AuthorID:    ledger.SystemAuthor,
		RoomID:      roomID,
		Kind:        ledger.KindSystem,
		Text:        spinner.Frame(0),
		IsStreaming: true,
	})
	if err != nil {
		return Session{}, fmt.Errorf("opening action entry: %w", err)
	}

	s := &Session{
		RequestID: uuid.NewString(),
		EntryID:   entry.ID,
		PlayerID:  playerID,
		RoomID:    roomID,
		Outcome:   OutcomePending,
	}
	a.byPlayer[playerID] = s
	a.byRequest[s.RequestID] = s

	requestID := s.RequestID
	s.timer = spinner.Start(a.interval, func() {
		_ = a.poster.Post(TickEvent{RequestID: requestID})
	})

	req := api.ActionRequest{PlayerID: playerID, Action: text, RoomID: roomID}
	a.wg.Add(1)
	go a.stream(ctx, requestID, req)

	a.logger.Debug("action submitted", zap.String("request_id", requestID), zap.String("entry_id", entry.ID))
	return s.snapshot(), nil
}

// stream runs the request and posts its chunks and exactly one terminal event.
func (a *Accumulator) stream(ctx context.Context, requestID string, req api.ActionRequest) {
	defer a.wg.Done()
	result, err := a.streamer.StreamAction(ctx, req, func(text string) {
		_ = a.poster.Post(ChunkEvent{RequestID: requestID, Text: text})
	})
	if err != nil {
		_ = a.poster.Post(FailedEvent{RequestID: requestID, Err: err})
		return
	}
	_ = a.poster.Post(CompletedEvent{RequestID: requestID, Result: result})
}

// Chunk applies a partial-text chunk. The first chunk replaces the placeholder,
// later chunks are appended.
func (a *Accumulator) Chunk(ev ChunkEvent) {
	s, ok := a.byRequest[ev.RequestID]
	if !ok || ev.Text == "" {
		return
	}
	s.timer.Stop()
	first := s.Accumulated == ""
	s.Accumulated += ev.Text
	_, err := a.ledger.Update(s.EntryID, func(e *ledger.Entry) {
		if first {
			e.Text = ev.Text
			return
		}
		e.Text += ev.Text
	})
	if err != nil {
		a.logger.Warn("applying chunk", zap.String("request_id", ev.RequestID), zap.Error(err))
	}
}

// Tick advances the placeholder frame while no content has arrived.
func (a *Accumulator) Tick(ev TickEvent) {
	s, ok := a.byRequest[ev.RequestID]
	if !ok || s.Accumulated != "" {
		return
	}
	_, err := a.ledger.Update(s.EntryID, func(e *ledger.Entry) {
		e.Text = spinner.Next(e.Text)
	})
	if err != nil {
		a.logger.Debug("spinner tick", zap.String("request_id", ev.RequestID), zap.Error(err))
	}
}

// Complete applies the terminal payload: final text, freeze, then effects in
// the order player diff, quest item, duel start.
func (a *Accumulator) Complete(ev CompletedEvent) {
	s, ok := a.byRequest[ev.RequestID]
	if !ok {
		return
	}
	message := strings.TrimSpace(ev.Result.Message)
	if message == "" {
		a.Fail(FailedEvent{RequestID: ev.RequestID, Err: ErrMalformedResult})
		return
	}

	a.freeze(s, message)
	a.finish(s, OutcomeSucceeded)
	a.applyEffects(s, ev.Result.Updates)
}

// Fail freezes the entry with FailureText and releases the guard.
func (a *Accumulator) Fail(ev FailedEvent) {
	s, ok := a.byRequest[ev.RequestID]
	if !ok {
		return
	}
	a.logger.Warn("action failed", zap.String("request_id", ev.RequestID), zap.Error(ev.Err))
	a.freeze(s, FailureText)
	a.finish(s, OutcomeFailed)
}

func (a *Accumulator) freeze(s *Session, text string) {
	_, err := a.ledger.Update(s.EntryID, func(e *ledger.Entry) {
		e.Text = text
		e.IsStreaming = false
	})
	if err != nil {
		a.logger.Error("freezing action entry", zap.String("entry_id", s.EntryID), zap.Error(err))
	}
}

// finish is the single terminal transition: it stops the spinner and releases the guard.
func (a *Accumulator) finish(s *Session, outcome Outcome) {
	s.timer.Stop()
	s.Outcome = outcome
	delete(a.byRequest, s.RequestID)
	if a.byPlayer[s.PlayerID] == s {
		delete(a.byPlayer, s.PlayerID)
	}
	a.logger.Debug("action finished", zap.String("request_id", s.RequestID), zap.String("outcome", string(outcome)))
}

func (a *Accumulator) applyEffects(s *Session, u *api.ActionUpdates) {
	if u == nil {
		return
	}
	if u.Player != nil && !u.Player.Empty() {
		a.store.MergePlayer(*u.Player)
	}
	if u.QuestItem != nil {
		added, err := a.store.RegisterItem(*u.QuestItem)
		switch {
		case err != nil:
			a.logger.Warn("registering quest item", zap.Error(err))
		case added:
			name := u.QuestItem.Name
			if name == "" {
				name = u.QuestItem.ID
			}
			if _, err := a.ledger.Append(ledger.Entry{
				AuthorID: ledger.SystemAuthor,
				RoomID:   s.RoomID,
				Kind:     ledger.KindItemFound,
				Text:     fmt.Sprintf("You found %s!", name),
			}); err != nil {
				a.logger.Error("appending item entry", zap.Error(err))
			}
		}
	}
	if d := u.Duel; d != nil {
		err := a.duels.Begin(duel.Start{
			OpponentID:     d.OpponentID,
			OpponentName:   d.OpponentName,
			MyVitals:       d.PlayerVitals,
			OpponentVitals: d.OpponentVitals,
			VitalCap:       d.VitalCap,
		})
		if err != nil {
			a.logger.Warn("starting duel from action result", zap.String("opponent_id", d.OpponentID), zap.Error(err))
		}
	}
}

// Shutdown stops every pending spinner. Pending sessions are abandoned; their
// late events are ignored.
func (a *Accumulator) Shutdown() {
	for _, s := range a.byRequest {
		s.timer.Stop()
	}
}

// Wait blocks until every stream goroutine has returned.
func (a *Accumulator) Wait() {
	a.wg.Wait()
}

func (s *Session) snapshot() Session {
	out := *s
	out.timer = nil
	return out
}
