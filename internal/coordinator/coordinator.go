// Package coordinator merges the push channel, streaming actions, NPC
// dialogue and player input into one ordered session state. A single loop
// goroutine owns every mutation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/mudclient/internal/accumulator"
	"github.com/cory-johannsen/mudclient/internal/config"
	"github.com/cory-johannsen/mudclient/internal/dialogue"
	"github.com/cory-johannsen/mudclient/internal/dispatch"
	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/inbox"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/push"
	"github.com/cory-johannsen/mudclient/internal/session"
)

// ConnectionLostNotice is appended when the push channel fails.
const ConnectionLostNotice = "Lost connection to the game server. Duel and chat updates are unavailable."

const archiveTimeout = 10 * time.Second

// Backend is the HTTP side of the game server.
type Backend interface {
	accumulator.Streamer
	dialogue.Interactor
	dispatch.ChatClient
}

// Archiver stores the frozen transcript when a session ends.
type Archiver interface {
	SaveTranscript(ctx context.Context, playerID string, entries []ledger.Entry) error
}

// Deps are the coordinator's external collaborators.
type Deps struct {
	Backend   Backend
	Push      push.Channel
	Directory *npc.Directory
	// Feed receives ledger changes for a renderer. Optional.
	Feed *ledger.Feed
	// Archive saves the transcript on shutdown. Optional.
	Archive Archiver
	Logger  *zap.Logger
}

// Coordinator owns the session state container.
type Coordinator struct {
	cfg     config.SessionConfig
	logger  *zap.Logger
	inbox   *inbox.Inbox
	ledger  *ledger.Ledger
	feed    *ledger.Feed
	store   *session.Store
	duel    *duel.Machine
	actions *accumulator.Accumulator
	talk    *dialogue.Handler
	router  *dispatch.Router
	push    push.Channel
	archive Archiver

	directory atomic.Pointer[npc.Directory]
	running   atomic.Bool
}

// New wires a Coordinator from cfg and deps.
//
// Precondition: deps.Backend and deps.Push must be non-nil; cfg must have passed validation.
// Postcondition: Returns a Coordinator ready for Run.
func New(cfg config.SessionConfig, deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:     cfg,
		logger:  logger,
		inbox:   inbox.New(cfg.InboxSize),
		feed:    deps.Feed,
		store:   session.NewStore(session.Player{ID: cfg.PlayerID, Name: cfg.PlayerName, RoomID: cfg.RoomID}),
		push:    deps.Push,
		archive: deps.Archive,
	}
	c.ledger = ledger.New(deps.Feed)
	dir := deps.Directory
	if dir == nil {
		dir, _ = npc.NewDirectory(nil)
	}
	c.directory.Store(dir)

	c.duel = duel.NewMachine(cfg.PlayerID, cfg.DuelVitalCap, c.ledger, deps.Push, logger.Named("duel"))
	c.actions = accumulator.New(c.ledger, c.store, c.duel, deps.Backend, c.inbox, cfg.SpinnerInterval, logger.Named("accumulator"))
	c.talk = dialogue.NewHandler(c.ledger, deps.Backend, c.inbox, cfg.SpinnerInterval, cfg.NPCContextLimit, logger.Named("dialogue"))
	c.router = dispatch.NewRouter(dispatch.Deps{
		Ledger:    c.ledger,
		Store:     c.store,
		Duel:      c.duel,
		Actions:   c.actions,
		Dialogue:  c.talk,
		Chat:      deps.Backend,
		Push:      deps.Push,
		Directory: c.Directory,
		Logger:    logger.Named("dispatch"),
	})
	return c
}

// Run drives the session until ctx is cancelled. It returns after every
// goroutine it started has stopped and the transcript has been archived.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("coordinator already running")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.loop(gctx)
	})
	g.Go(func() error {
		c.readPush(gctx)
		return nil
	})
	err := g.Wait()
	c.shutdown()
	return err
}

func (c *Coordinator) loop(ctx context.Context) error {
	defer c.inbox.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.inbox.Events():
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) readPush(ctx context.Context) {
	err := c.push.Run(ctx, func(ev interface{}) {
		_ = c.inbox.Post(pushEvent{event: ev})
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Error("push channel failed", zap.Error(err))
	} else {
		c.logger.Warn("push channel closed by server")
	}
	_ = c.inbox.Post(connectionLost{})
}

func (c *Coordinator) shutdown() {
	c.actions.Shutdown()
	c.talk.Shutdown()
	if err := c.push.Close(); err != nil {
		c.logger.Debug("closing push channel", zap.Error(err))
	}
	c.actions.Wait()
	c.talk.Wait()
	c.router.Wait()

	if c.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := c.archive.SaveTranscript(ctx, c.cfg.PlayerID, c.Transcript()); err != nil {
			c.logger.Error("archiving transcript", zap.Error(err))
		}
	}
	if c.feed != nil {
		c.feed.Close()
	}
}

// post queues ev for the loop.
func (c *Coordinator) post(ev inbox.Event) error {
	if err := c.inbox.Post(ev); err != nil {
		return fmt.Errorf("posting %T: %w", ev, err)
	}
	return nil
}

// Submit queues raw player input for routing.
func (c *Coordinator) Submit(raw string) error {
	return c.post(submitCmd{raw: raw})
}

// RespondToChallenge queues an answer to the pending duel challenge.
func (c *Coordinator) RespondToChallenge(accept bool) error {
	return c.post(respondCmd{accept: accept})
}

// ToggleEmote queues an emote-mode toggle.
func (c *Coordinator) ToggleEmote() error {
	return c.post(toggleEmoteCmd{})
}

// ForceClearDuel queues a manual duel reset.
func (c *Coordinator) ForceClearDuel() error {
	return c.post(forceClearCmd{})
}

// Sync blocks until every event posted before it has been handled.
func (c *Coordinator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.post(syncCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Suggestions returns autocomplete matches for input against the current room's NPCs.
func (c *Coordinator) Suggestions(input string) npc.Suggestions {
	return npc.Suggest(input, c.Directory())
}

// Directory returns the current NPC directory.
func (c *Coordinator) Directory() *npc.Directory {
	return c.directory.Load()
}

// Ledger returns the session ledger for reading.
func (c *Coordinator) Ledger() *ledger.Ledger {
	return c.ledger
}

// Player returns the current player snapshot.
func (c *Coordinator) Player() session.Player {
	return c.store.Player()
}

// Items returns the discovered quest items.
func (c *Coordinator) Items() []session.Item {
	return c.store.Items()
}

// Duel returns the current duel snapshot.
func (c *Coordinator) Duel() duel.Session {
	return c.duel.Snapshot()
}

// Transcript returns the frozen entries in ledger order.
func (c *Coordinator) Transcript() []ledger.Entry {
	var out []ledger.Entry
	for _, e := range c.ledger.Entries() {
		if !e.IsStreaming {
			out = append(out, e)
		}
	}
	return out
}
