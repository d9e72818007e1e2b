// Package dialogue runs NPC conversations: the player's addressed message,
// a loading placeholder, the interaction request, and the NPC's reply.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/api"
	"github.com/cory-johannsen/mudclient/internal/inbox"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/spinner"
)

// DefaultContextLimit bounds how many prior entries are sent as conversation context.
const DefaultContextLimit = 20

// ErrInteractionPending is returned by Begin while another NPC request is in flight.
var ErrInteractionPending = errors.New("an npc interaction is already pending")

// Interactor sends an NPC interaction request.
type Interactor interface {
	InteractNPC(ctx context.Context, req api.NPCRequest) (api.NPCResponse, error)
}

// Events posted to the inbox by the request goroutine and the placeholder spinner.
type (
	ReplyEvent struct {
		RequestID string
		Response  api.NPCResponse
	}
	FailedEvent struct {
		RequestID string
		Err       error
	}
	TickEvent struct {
		RequestID string
	}
)

type exchange struct {
	requestID     string
	npc           npc.Record
	roomID        string
	placeholderID string
	timer         *spinner.Timer
}

// Handler owns NPC exchanges. All methods except Wait must be called from
// the coordinator loop.
type Handler struct {
	ledger       *ledger.Ledger
	interactor   Interactor
	poster       inbox.Poster
	interval     time.Duration
	contextLimit int
	logger       *zap.Logger

	pending map[string]*exchange // request ID → exchange
	wg      sync.WaitGroup
}

// NewHandler creates a Handler.
//
// Precondition: l, interactor and poster must be non-nil; interval must be > 0.
// contextLimit <= 0 selects DefaultContextLimit.
func NewHandler(l *ledger.Ledger, interactor Interactor, poster inbox.Poster, interval time.Duration, contextLimit int, logger *zap.Logger) *Handler {
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledger:       l,
		interactor:   interactor,
		poster:       poster,
		interval:     interval,
		contextLimit: contextLimit,
		logger:       logger,
		pending:      make(map[string]*exchange),
	}
}

// Pending reports whether any NPC request is in flight.
func (h *Handler) Pending() bool {
	return len(h.pending) > 0
}

// History returns the most recent entries of the conversation with npcID:
// chat addressed to it and its own dialogue, oldest first.
func (h *Handler) History(npcID string) []ledger.Entry {
	return h.ledger.Recent(h.contextLimit, func(e ledger.Entry) bool {
		return e.NPCID == npcID && (e.Kind == ledger.KindChat || e.Kind == ledger.KindNPCDialogue)
	})
}

// Begin records the player's message to addr.NPC and sends the interaction.
// raw is the input as typed and becomes the chat entry's text.
//
// Postcondition: A chat entry and a streaming placeholder are appended and the request
// runs in the background. Returns ErrInteractionPending if a request is in flight.
func (h *Handler) Begin(ctx context.Context, playerID, roomID string, addr npc.Address, raw string) (string, error) {
	if h.Pending() {
		return "", ErrInteractionPending
	}

	history := h.History(addr.NPC.ID)
	msgs := make([]api.ContextMessage, 0, len(history))
	for _, e := range history {
		msgs = append(msgs, api.ContextMessage{AuthorID: e.AuthorID, Kind: string(e.Kind), Text: e.Text})
	}

	if _, err := h.ledger.Append(ledger.Entry{
		AuthorID: playerID,
		RoomID:   roomID,
		Kind:     ledger.KindChat,
		Text:     raw,
		NPCID:    addr.NPC.ID,
	}); err != nil {
		return "", fmt.Errorf("recording message to %s: %w", addr.NPC.Name, err)
	}
	placeholder, err := h.ledger.Append(ledger.Entry{
		AuthorID:    ledger.SystemAuthor,
		RoomID:      roomID,
		Kind:        ledger.KindSystem,
		Text:        spinner.Frame(0),
		IsStreaming: true,
		NPCID:       addr.NPC.ID,
	})
	if err != nil {
		return "", fmt.Errorf("adding placeholder for %s: %w", addr.NPC.Name, err)
	}

	x := &exchange{
		requestID:     uuid.NewString(),
		npc:           addr.NPC,
		roomID:        roomID,
		placeholderID: placeholder.ID,
	}
	requestID := x.requestID
	x.timer = spinner.Start(h.interval, func() {
		_ = h.poster.Post(TickEvent{RequestID: requestID})
	})
	h.pending[requestID] = x

	req := api.NPCRequest{
		PlayerID: playerID,
		NPCID:    addr.NPC.ID,
		RoomID:   roomID,
		Message:  addr.Message,
		Context:  msgs,
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		resp, err := h.interactor.InteractNPC(ctx, req)
		if err != nil {
			_ = h.poster.Post(FailedEvent{RequestID: requestID, Err: err})
			return
		}
		_ = h.poster.Post(ReplyEvent{RequestID: requestID, Response: resp})
	}()
	return requestID, nil
}

// Reply replaces the placeholder with the NPC's dialogue and any quest completion.
func (h *Handler) Reply(ev ReplyEvent) {
	x, ok := h.settle(ev.RequestID)
	if !ok {
		return
	}
	if err := h.ledger.Remove(x.placeholderID); err != nil {
		h.logger.Warn("removing npc placeholder", zap.String("npc_id", x.npc.ID), zap.Error(err))
	}
	if _, err := h.ledger.Append(ledger.Entry{
		AuthorID: x.npc.ID,
		RoomID:   x.roomID,
		Kind:     ledger.KindNPCDialogue,
		Text:     ev.Response.Response,
		NPCID:    x.npc.ID,
	}); err != nil {
		h.logger.Error("appending npc dialogue", zap.Error(err))
	}
	if q := ev.Response.QuestCompletion; q != nil {
		if _, err := h.ledger.Append(ledger.Entry{
			AuthorID: ledger.SystemAuthor,
			RoomID:   x.roomID,
			Kind:     ledger.KindQuestCompletion,
			Text:     q.Summary(),
			NPCID:    x.npc.ID,
			Quest:    q,
		}); err != nil {
			h.logger.Error("appending quest completion", zap.Error(err))
		}
	}
}

// Fail freezes the placeholder with the user-safe failure text.
func (h *Handler) Fail(ev FailedEvent) {
	x, ok := h.settle(ev.RequestID)
	if !ok {
		return
	}
	h.logger.Warn("npc interaction failed", zap.String("npc_id", x.npc.ID), zap.Error(ev.Err))
	_, err := h.ledger.Update(x.placeholderID, func(e *ledger.Entry) {
		e.Text = ledger.FailureText
		e.IsStreaming = false
	})
	if err != nil {
		h.logger.Error("freezing npc placeholder", zap.Error(err))
	}
}

// Tick advances the placeholder frame.
func (h *Handler) Tick(ev TickEvent) {
	x, ok := h.pending[ev.RequestID]
	if !ok {
		return
	}
	_, err := h.ledger.Update(x.placeholderID, func(e *ledger.Entry) {
		e.Text = spinner.Next(e.Text)
	})
	if err != nil {
		h.logger.Debug("npc spinner tick", zap.Error(err))
	}
}

func (h *Handler) settle(requestID string) (*exchange, bool) {
	x, ok := h.pending[requestID]
	if !ok {
		return nil, false
	}
	x.timer.Stop()
	delete(h.pending, requestID)
	return x, true
}

// Shutdown stops every placeholder spinner.
func (h *Handler) Shutdown() {
	for _, x := range h.pending {
		x.timer.Stop()
	}
}

// Wait blocks until every request goroutine has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}
