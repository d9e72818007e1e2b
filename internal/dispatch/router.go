// Package dispatch classifies raw player input and hands it to exactly one
// downstream component.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/accumulator"
	"github.com/cory-johannsen/mudclient/internal/api"
	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/session"
)

// EchoPrefix starts the local echo of every non-duel submission.
const EchoPrefix = ">> "

// Route names the component a submission was handed to.
type Route string

const (
	RouteNone     Route = ""
	RouteDuelMove Route = "duel_move"
	RouteCommand  Route = "command"
	RouteEmote    Route = "emote"
	RouteNPC      Route = "npc"
	RouteAction   Route = "action"
)

// Duel is the part of the duel machine the router drives.
type Duel interface {
	Snapshot() duel.Session
	SubmitMove(move string) error
	ForceClear(notice string) bool
}

// Actions is the streaming action accumulator.
type Actions interface {
	Pending(playerID string) bool
	Submit(ctx context.Context, playerID, text, roomID string) (accumulator.Session, error)
}

// Dialogue starts NPC exchanges.
type Dialogue interface {
	Pending() bool
	Begin(ctx context.Context, playerID, roomID string, addr npc.Address, raw string) (string, error)
}

// ChatClient posts chat to the HTTP chat endpoint.
type ChatClient interface {
	SendChat(ctx context.Context, req api.ChatRequest) error
}

// ChatPusher relays chat over the push channel. Implementations must not block.
type ChatPusher interface {
	SendChatMessage(text, messageType string) error
}

// Deps are the router's collaborators.
type Deps struct {
	Ledger    *ledger.Ledger
	Store     *session.Store
	Duel      Duel
	Actions   Actions
	Dialogue  Dialogue
	Chat      ChatClient
	Push      ChatPusher
	Directory func() *npc.Directory
	Logger    *zap.Logger
}

// Router classifies and routes player input. Submit and ToggleEmote must be
// called from the coordinator loop.
type Router struct {
	deps       Deps
	submitting bool
	emote      bool
	wg         sync.WaitGroup
}

type routeFunc func(r *Router, ctx context.Context, in input) error

type input struct {
	raw      string
	playerID string
	roomID   string
}

// routes is the single source of truth for non-duel dispatch.
var routes = map[Route]routeFunc{
	RouteCommand: (*Router).routeCommand,
	RouteEmote:   (*Router).routeEmote,
	RouteNPC:     (*Router).routeNPC,
	RouteAction:  (*Router).routeAction,
}

// NewRouter creates a Router.
//
// Precondition: every field of deps except Logger must be non-nil.
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Router{deps: deps}
}

// EmoteMode reports whether emote mode is on.
func (r *Router) EmoteMode() bool {
	return r.emote
}

// ToggleEmote flips emote mode and returns the new value.
func (r *Router) ToggleEmote() bool {
	r.emote = !r.emote
	return r.emote
}

// Busy reports whether non-duel input is held: a submission is still being
// handled or an NPC request has not settled. Duel moves are held only by the
// former.
func (r *Router) Busy() bool {
	return r.submitting || r.deps.Dialogue.Pending()
}

// Classify returns the route raw would take for the given duel session and
// emote mode, ignoring in-flight guards.
func Classify(raw string, d duel.Session, emote bool) Route {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return RouteNone
	case d.InDuel() && d.OpponentID != "":
		return RouteDuelMove
	case strings.HasPrefix(text, "/"):
		return RouteCommand
	case emote:
		return RouteEmote
	case strings.HasPrefix(text, "@"):
		return RouteNPC
	default:
		return RouteAction
	}
}

// Submit routes raw to exactly one component.
//
// Postcondition: Returns the route taken, or RouteNone when the input was empty or a
// previous submission still holds the submission flag (no entry, no request). A
// pending NPC request holds every route except RouteDuelMove. Every route except
// RouteDuelMove first appends the ">> input" echo.
func (r *Router) Submit(ctx context.Context, raw string) Route {
	text := strings.TrimSpace(raw)
	if text == "" {
		return RouteNone
	}
	if r.submitting {
		r.deps.Logger.Debug("ignoring submission while another is pending", zap.String("input", text))
		return RouteNone
	}
	r.submitting = true
	defer func() { r.submitting = false }()

	d := r.deps.Duel.Snapshot()
	if d.InDuel() && d.OpponentID == "" {
		r.deps.Logger.Warn("duel active without opponent; clearing")
		r.deps.Duel.ForceClear(duel.DesyncNotice)
		d = r.deps.Duel.Snapshot()
	}

	route := Classify(text, d, r.emote)
	if route != RouteDuelMove && r.deps.Dialogue.Pending() {
		r.deps.Logger.Debug("ignoring submission while an NPC request is pending", zap.String("input", text))
		return RouteNone
	}
	if route == RouteDuelMove {
		if err := r.deps.Duel.SubmitMove(text); err != nil {
			r.deps.Logger.Warn("submitting duel move", zap.Error(err))
		}
		return route
	}

	p := r.deps.Store.Player()
	in := input{raw: text, playerID: p.ID, roomID: p.RoomID}
	if route == RouteAction && r.deps.Actions.Pending(in.playerID) {
		r.deps.Logger.Debug("ignoring action while one is streaming", zap.String("input", text))
		return RouteNone
	}

	r.system(in.roomID, EchoPrefix+text)
	if err := routes[route](r, ctx, in); err != nil {
		r.deps.Logger.Warn("routing input", zap.String("route", string(route)), zap.Error(err))
	}
	return route
}

func (r *Router) routeCommand(ctx context.Context, in input) error {
	r.append(ledger.Entry{AuthorID: in.playerID, RoomID: in.roomID, Kind: ledger.KindChat, Text: in.raw})
	r.forward(ctx, in, api.MessageTypeCommand)
	return nil
}

func (r *Router) routeEmote(ctx context.Context, in input) error {
	r.append(ledger.Entry{AuthorID: in.playerID, RoomID: in.roomID, Kind: ledger.KindEmote, Text: in.raw})
	r.forward(ctx, in, api.MessageTypeEmote)
	return nil
}

func (r *Router) routeNPC(ctx context.Context, in input) error {
	addr, err := r.deps.Directory().ParseAddress(in.raw)
	if err != nil {
		var usage *npc.UsageError
		var unknown *npc.UnknownNPCError
		if errors.As(err, &usage) || errors.As(err, &unknown) {
			r.system(in.roomID, err.Error())
			return nil
		}
		return err
	}
	_, err = r.deps.Dialogue.Begin(ctx, in.playerID, in.roomID, addr, in.raw)
	return err
}

func (r *Router) routeAction(ctx context.Context, in input) error {
	_, err := r.deps.Actions.Submit(ctx, in.playerID, in.raw, in.roomID)
	return err
}

// forward sends chat to the HTTP endpoint in the background and to the push
// channel. Failures are logged only.
func (r *Router) forward(ctx context.Context, in input, messageType string) {
	if err := r.deps.Push.SendChatMessage(in.raw, messageType); err != nil {
		r.deps.Logger.Warn("pushing chat", zap.Error(err))
	}
	req := api.ChatRequest{PlayerID: in.playerID, RoomID: in.roomID, Message: in.raw, MessageType: messageType}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.deps.Chat.SendChat(ctx, req); err != nil {
			r.deps.Logger.Warn("sending chat", zap.Error(err))
		}
	}()
}

func (r *Router) system(roomID, text string) {
	r.append(ledger.Entry{AuthorID: ledger.SystemAuthor, RoomID: roomID, Kind: ledger.KindSystem, Text: text})
}

func (r *Router) append(e ledger.Entry) {
	if _, err := r.deps.Ledger.Append(e); err != nil {
		r.deps.Logger.Error("appending entry", zap.Error(err))
	}
}

// Wait blocks until background chat sends have returned.
func (r *Router) Wait() {
	r.wg.Wait()
}
