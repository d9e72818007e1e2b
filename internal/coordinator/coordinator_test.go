package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cory-johannsen/mudclient/internal/api"
	"github.com/cory-johannsen/mudclient/internal/config"
	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/inbox"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/push"
	"github.com/cory-johannsen/mudclient/internal/session"
	"github.com/cory-johannsen/mudclient/internal/spinner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type streamScript struct {
	chunks []string
	result api.ActionResult
	err    error
	gate   chan struct{}
}

type fakeBackend struct {
	mu      sync.Mutex
	scripts map[string]streamScript
	actions []api.ActionRequest
	npcReqs []api.NPCRequest
	npcResp api.NPCResponse
	chats   []api.ChatRequest
}

func (f *fakeBackend) StreamAction(ctx context.Context, req api.ActionRequest, onChunk func(string)) (api.ActionResult, error) {
	f.mu.Lock()
	f.actions = append(f.actions, req)
	s, ok := f.scripts[req.Action]
	f.mu.Unlock()
	if !ok {
		return api.ActionResult{Message: "Nothing happens."}, nil
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return api.ActionResult{}, ctx.Err()
		}
	}
	for _, chunk := range s.chunks {
		onChunk(chunk)
	}
	return s.result, s.err
}

func (f *fakeBackend) InteractNPC(_ context.Context, req api.NPCRequest) (api.NPCResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.npcReqs = append(f.npcReqs, req)
	return f.npcResp, nil
}

func (f *fakeBackend) SendChat(_ context.Context, req api.ChatRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, req)
	return nil
}

func (f *fakeBackend) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

type sent struct {
	kind, to, text string
	accept         bool
}

type fakePush struct {
	mu      sync.Mutex
	handle  push.Handler
	started chan struct{}
	runErr  error
	sent    []sent
	closed  bool
}

func newFakePush() *fakePush {
	return &fakePush{started: make(chan struct{})}
}

func (f *fakePush) Run(ctx context.Context, handle push.Handler) error {
	f.mu.Lock()
	f.handle = handle
	f.mu.Unlock()
	close(f.started)
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakePush) inject(t *testing.T, ev interface{}) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("push channel never started")
	}
	f.mu.Lock()
	h := f.handle
	f.mu.Unlock()
	h(ev)
}

func (f *fakePush) SendDuelMove(opponentID, move string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: push.TypeDuelMove, to: opponentID, text: move})
	return nil
}

func (f *fakePush) SendDuelResponse(opponentID string, accept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: push.TypeDuelResponse, to: opponentID, accept: accept})
	return nil
}

func (f *fakePush) SendChatMessage(text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{kind: push.TypeChatMessage, text: text})
	return nil
}

func (f *fakePush) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePush) sentMessages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeArchive struct {
	mu       sync.Mutex
	playerID string
	entries  []ledger.Entry
}

func (f *fakeArchive) SaveTranscript(_ context.Context, playerID string, entries []ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playerID = playerID
	f.entries = entries
	return nil
}

func sessionConfig() config.SessionConfig {
	return config.SessionConfig{
		PlayerID:        "p1",
		PlayerName:      "Aria",
		RoomID:          "gate",
		SpinnerInterval: time.Hour,
		NPCContextLimit: 20,
		DuelVitalCap:    6,
		InboxSize:       64,
	}
}

type running struct {
	c    *Coordinator
	stop func()
}

func start(t *testing.T, deps Deps) running {
	t.Helper()
	if deps.Directory == nil {
		dir, err := npc.NewDirectory([]npc.Record{
			{ID: "guard", Name: "Guard"},
			{ID: "prof", Name: "Professor"},
			{ID: "voss", Name: "Professor Elara Voss"},
		})
		require.NoError(t, err)
		deps.Directory = dir
	}
	c := New(sessionConfig(), deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("coordinator did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return running{c: c, stop: stop}
}

func waitFor(t *testing.T, c *Coordinator, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Sync(ctx)
		return cond()
	}, 5*time.Second, 5*time.Millisecond)
}

func texts(c *Coordinator) []string {
	var out []string
	for _, e := range c.Ledger().Entries() {
		out = append(out, e.Text)
	}
	return out
}

func TestLookAround(t *testing.T) {
	backend := &fakeBackend{scripts: map[string]streamScript{
		"look around": {
			chunks: []string{"You see ", "stone walls."},
			result: api.ActionResult{Message: "You see stone walls and a gate."},
		},
	}}
	r := start(t, Deps{Backend: backend, Push: newFakePush()})

	require.NoError(t, r.c.Submit("look around"))
	waitFor(t, r.c, func() bool { return len(r.c.Ledger().Streaming()) == 0 && r.c.Ledger().Len() == 2 })

	entries := r.c.Ledger().Entries()
	assert.Equal(t, ledger.KindSystem, entries[0].Kind)
	assert.Equal(t, ">> look around", entries[0].Text)
	assert.Equal(t, ledger.KindSystem, entries[1].Kind)
	assert.False(t, entries[1].IsStreaming)
	assert.Equal(t, "You see stone walls and a gate.", entries[1].Text)
	assert.False(t, spinner.IsFrame(entries[1].Text))
}

func TestSecondSubmitWhilePendingIsNoop(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{scripts: map[string]streamScript{
		"look": {gate: gate, result: api.ActionResult{Message: "done"}},
	}}
	r := start(t, Deps{Backend: backend, Push: newFakePush()})

	require.NoError(t, r.c.Submit("look"))
	waitFor(t, r.c, func() bool { return backend.actionCount() == 1 })
	require.NoError(t, r.c.Submit("look"))
	require.NoError(t, r.c.Sync(context.Background()))

	assert.Equal(t, 2, r.c.Ledger().Len(), "echo and streaming entry only")
	assert.Equal(t, 1, backend.actionCount())
	close(gate)
	waitFor(t, r.c, func() bool { return len(r.c.Ledger().Streaming()) == 0 })
}

func TestAddressGuard(t *testing.T) {
	backend := &fakeBackend{npcResp: api.NPCResponse{Response: "The gate stays shut."}}
	r := start(t, Deps{Backend: backend, Push: newFakePush()})

	require.NoError(t, r.c.Submit("@Guard open the gate"))
	waitFor(t, r.c, func() bool { return r.c.Ledger().Len() == 3 })

	assert.Equal(t, []string{">> @Guard open the gate", "@Guard open the gate", "The gate stays shut."}, texts(r.c))
	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.npcReqs, 1)
	assert.Equal(t, "guard", backend.npcReqs[0].NPCID)
	assert.Equal(t, "open the gate", backend.npcReqs[0].Message)
	assert.Equal(t, "gate", backend.npcReqs[0].RoomID)
}

func TestDuelMoveIsHidden(t *testing.T) {
	p := newFakePush()
	r := start(t, Deps{Backend: &fakeBackend{}, Push: p})

	p.inject(t, push.DuelStart{OpponentID: "rival", OpponentName: "Rival"})
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateActive })

	require.NoError(t, r.c.Submit("strike left"))
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateMoveSubmitted })

	for _, text := range texts(r.c) {
		assert.NotContains(t, text, "strike left")
	}
	assert.Equal(t, []sent{{kind: push.TypeDuelMove, to: "rival", text: "strike left"}}, p.sentMessages())

	p.inject(t, push.DuelMove{FromID: "rival", Move: "parry"})
	waitFor(t, r.c, func() bool { return r.c.Duel().Round == 2 })
	snap := r.c.Duel()
	assert.Equal(t, duel.StateActive, snap.State)
	assert.Nil(t, snap.MyMove)
	assert.Nil(t, snap.OpponentMove)
}

func TestDuelStartMidStream(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{scripts: map[string]streamScript{
		"search": {gate: gate, chunks: []string{"Rummaging..."}, result: api.ActionResult{Message: "You find nothing."}},
	}}
	p := newFakePush()
	r := start(t, Deps{Backend: backend, Push: p})

	require.NoError(t, r.c.Submit("search"))
	waitFor(t, r.c, func() bool { return backend.actionCount() == 1 })

	p.inject(t, push.DuelStart{OpponentID: "rival"})
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateActive })
	require.Len(t, r.c.Ledger().Streaming(), 1, "the action keeps streaming while the duel starts")

	close(gate)
	waitFor(t, r.c, func() bool { return len(r.c.Ledger().Streaming()) == 0 })

	assert.Contains(t, texts(r.c), "You find nothing.")
	assert.Equal(t, duel.StateActive, r.c.Duel().State)
}

func TestActionResultStartsDuelAfterPlayerMerge(t *testing.T) {
	health := 3
	backend := &fakeBackend{scripts: map[string]streamScript{
		"poke rat": {result: api.ActionResult{
			Message: "The rat bites back!",
			Updates: &api.ActionUpdates{
				Player: &session.PlayerDiff{Health: &health},
				Duel:   &api.DuelStart{OpponentID: "rat", OpponentName: "Rat"},
			},
		}},
	}}
	r := start(t, Deps{Backend: backend, Push: newFakePush()})

	require.NoError(t, r.c.Submit("poke rat"))
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateActive })
	assert.Equal(t, 3, r.c.Player().Health)
	assert.Equal(t, duel.DefaultVitalCap, r.c.Duel().MyVitals)
}

func TestChallengeAndRespond(t *testing.T) {
	p := newFakePush()
	r := start(t, Deps{Backend: &fakeBackend{}, Push: p})

	require.NoError(t, r.c.RespondToChallenge(true))
	waitFor(t, r.c, func() bool { return r.c.Ledger().Len() == 1 })
	assert.Equal(t, "There is no challenge to answer.", texts(r.c)[0])

	p.inject(t, push.DuelChallenge{FromID: "rival", FromName: "Rival"})
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateChallenged })
	require.NoError(t, r.c.RespondToChallenge(true))
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateActive })

	require.NoError(t, r.c.ForceClearDuel())
	waitFor(t, r.c, func() bool { return r.c.Duel().State == duel.StateIdle })
	assert.Contains(t, texts(r.c), ManualClearNotice)
}

func TestRoomStateSwapsDirectory(t *testing.T) {
	p := newFakePush()
	r := start(t, Deps{Backend: &fakeBackend{}, Push: p})
	assert.Len(t, r.c.Suggestions("@").Matches, 3)

	p.inject(t, push.RoomState{RoomID: "forge", NPCs: []npc.Record{{ID: "smith", Name: "Old Smith"}}})
	waitFor(t, r.c, func() bool { return r.c.Player().RoomID == "forge" })

	s := r.c.Suggestions("@sm")
	require.Len(t, s.Matches, 1)
	assert.Equal(t, "smith", s.Matches[0].ID)
	assert.Empty(t, r.c.Suggestions("@Guard").Matches)
}

func TestPushEntries(t *testing.T) {
	p := newFakePush()
	r := start(t, Deps{Backend: &fakeBackend{}, Push: p})

	p.inject(t, push.ChatMessage{AuthorID: "p1", Text: "my own echo"})
	p.inject(t, push.ChatMessage{AuthorID: "p2", Text: "hello"})
	p.inject(t, push.ChatMessage{AuthorID: "p2", Text: "waves", MessageType: "emote"})
	p.inject(t, push.Narration{Text: "Thunder rolls."})
	p.inject(t, push.RoomDescription{RoomID: "gate", Text: "A tall gate."})
	health := 2
	p.inject(t, push.PlayerUpdate{PlayerDiff: session.PlayerDiff{Health: &health}})

	waitFor(t, r.c, func() bool { return r.c.Ledger().Len() == 4 })
	var kinds []ledger.Kind
	for _, e := range r.c.Ledger().Entries() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []ledger.Kind{ledger.KindChat, ledger.KindEmote, ledger.KindNarration, ledger.KindRoomDescription}, kinds)
	assert.Equal(t, 2, r.c.Player().Health)
}

func TestPushFailureIsNotFatal(t *testing.T) {
	p := newFakePush()
	p.runErr = errors.New("connection refused")
	backend := &fakeBackend{}
	r := start(t, Deps{Backend: backend, Push: p})

	waitFor(t, r.c, func() bool { return r.c.Ledger().Len() == 1 })
	assert.Equal(t, ConnectionLostNotice, texts(r.c)[0])

	require.NoError(t, r.c.Submit("look"))
	waitFor(t, r.c, func() bool { return strings.Contains(strings.Join(texts(r.c), "|"), "Nothing happens.") })
}

func TestChatCommandForwarded(t *testing.T) {
	p := newFakePush()
	backend := &fakeBackend{}
	r := start(t, Deps{Backend: backend, Push: p})

	require.NoError(t, r.c.Submit("/wave"))
	waitFor(t, r.c, func() bool { return r.c.Ledger().Len() == 2 })
	r.stop()

	assert.Equal(t, []sent{{kind: push.TypeChatMessage, text: "/wave"}}, p.sentMessages())
	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.chats, 1)
	assert.Equal(t, "/wave", backend.chats[0].Message)
}

func TestShutdownArchivesAndCloses(t *testing.T) {
	p := newFakePush()
	archive := &fakeArchive{}
	feed := ledger.NewFeed(64)
	r := start(t, Deps{Backend: &fakeBackend{}, Push: p, Archive: archive, Feed: feed})

	require.NoError(t, r.c.Submit("look"))
	waitFor(t, r.c, func() bool { return r.c.Ledger().Len() == 2 && len(r.c.Ledger().Streaming()) == 0 })
	r.stop()

	archive.mu.Lock()
	assert.Equal(t, "p1", archive.playerID)
	assert.Len(t, archive.entries, 2)
	archive.mu.Unlock()

	p.mu.Lock()
	assert.True(t, p.closed)
	p.mu.Unlock()

	assert.ErrorIs(t, r.c.Submit("late"), inbox.ErrClosed)
	for range feed.Changes() {
	}
}

func TestRunTwice(t *testing.T) {
	r := start(t, Deps{Backend: &fakeBackend{}, Push: newFakePush()})
	require.NoError(t, r.c.Sync(context.Background()))
	assert.Error(t, r.c.Run(context.Background()))
}
