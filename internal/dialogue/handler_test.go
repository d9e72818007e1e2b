package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/mudclient/internal/api"
	"github.com/cory-johannsen/mudclient/internal/inbox"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/spinner"
)

type fakeInteractor struct {
	mu   sync.Mutex
	reqs []api.NPCRequest
	resp api.NPCResponse
	err  error
}

func (f *fakeInteractor) InteractNPC(_ context.Context, req api.NPCRequest) (api.NPCResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func (f *fakeInteractor) last() api.NPCRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

var guard = npc.Record{ID: "guard", Name: "Guard"}

func newHandler(t *testing.T, fi *fakeInteractor) (*Handler, *ledger.Ledger, *inbox.Inbox) {
	t.Helper()
	l := ledger.New(nil)
	ib := inbox.New(16)
	h := NewHandler(l, fi, ib, time.Hour, 0, nil)
	t.Cleanup(func() {
		h.Shutdown()
		ib.Close()
		h.Wait()
	})
	return h, l, ib
}

func settle(t *testing.T, h *Handler, ib *inbox.Inbox) {
	t.Helper()
	for h.Pending() {
		select {
		case ev := <-ib.Events():
			switch ev := ev.(type) {
			case ReplyEvent:
				h.Reply(ev)
			case FailedEvent:
				h.Fail(ev)
			case TickEvent:
				h.Tick(ev)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("npc exchange did not settle")
		}
	}
}

func TestBegin_AppendsMessageAndPlaceholder(t *testing.T) {
	fi := &fakeInteractor{resp: api.NPCResponse{Response: "Not today."}}
	h, l, ib := newHandler(t, fi)

	_, err := h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "open the gate"}, "@Guard open the gate")
	require.NoError(t, err)
	assert.True(t, h.Pending())

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindChat, entries[0].Kind)
	assert.Equal(t, "@Guard open the gate", entries[0].Text)
	assert.Equal(t, "guard", entries[0].NPCID)
	assert.True(t, entries[1].IsStreaming)
	assert.True(t, spinner.IsFrame(entries[1].Text))

	settle(t, h, ib)

	req := fi.last()
	assert.Equal(t, "guard", req.NPCID)
	assert.Equal(t, "open the gate", req.Message)
	assert.Empty(t, req.Context, "the message itself is not part of its own context")

	entries = l.Entries()
	require.Len(t, entries, 2, "placeholder removed once the reply arrives")
	assert.Equal(t, ledger.KindNPCDialogue, entries[1].Kind)
	assert.Equal(t, "Not today.", entries[1].Text)
	assert.Equal(t, "guard", entries[1].AuthorID)
}

func TestReply_QuestCompletion(t *testing.T) {
	fi := &fakeInteractor{resp: api.NPCResponse{
		Response: "You found it!",
		QuestCompletion: &ledger.QuestCompletion{
			QuestID: "q1", Title: "The Lost Key",
			Rewards: ledger.Rewards{XP: 50, Gold: 10, Items: []string{"Iron Key"}},
		},
	}}
	h, l, ib := newHandler(t, fi)
	_, err := h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "here's your key"}, "@Guard here's your key")
	require.NoError(t, err)
	settle(t, h, ib)

	entries := l.Entries()
	require.Len(t, entries, 3)
	q := entries[2]
	assert.Equal(t, ledger.KindQuestCompletion, q.Kind)
	assert.Equal(t, "Quest completed: The Lost Key! Rewards: 50 XP, 10 gold, Iron Key", q.Text)
	require.NotNil(t, q.Quest)
	assert.Equal(t, "q1", q.Quest.QuestID)
}

func TestFail_FreezesPlaceholder(t *testing.T) {
	fi := &fakeInteractor{err: errors.New("timeout")}
	h, l, ib := newHandler(t, fi)
	_, err := h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "hi"}, "@Guard hi")
	require.NoError(t, err)
	settle(t, h, ib)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.FailureText, entries[1].Text)
	assert.False(t, entries[1].IsStreaming)
}

func TestBegin_RejectsWhilePending(t *testing.T) {
	fi := &fakeInteractor{resp: api.NPCResponse{Response: "..."}}
	h, l, ib := newHandler(t, fi)
	_, err := h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "a"}, "@Guard a")
	require.NoError(t, err)
	_, err = h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "b"}, "@Guard b")
	assert.ErrorIs(t, err, ErrInteractionPending)
	assert.Equal(t, 2, l.Len())
	settle(t, h, ib)
}

func TestHistory_OnlyThisNPCAndBounded(t *testing.T) {
	fi := &fakeInteractor{resp: api.NPCResponse{Response: "ok"}}
	h, l, ib := newHandler(t, fi)

	for i := 0; i < 25; i++ {
		_, err := l.Append(ledger.Entry{Kind: ledger.KindChat, Text: fmt.Sprintf("g%d", i), NPCID: "guard"})
		require.NoError(t, err)
		_, err = l.Append(ledger.Entry{Kind: ledger.KindChat, Text: fmt.Sprintf("s%d", i), NPCID: "smith"})
		require.NoError(t, err)
		_, err = l.Append(ledger.Entry{Kind: ledger.KindSystem, Text: "noise", NPCID: "guard"})
		require.NoError(t, err)
	}

	_, err := h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "hello"}, "@Guard hello")
	require.NoError(t, err)
	settle(t, h, ib)

	ctx := fi.last().Context
	require.Len(t, ctx, DefaultContextLimit)
	assert.Equal(t, "g5", ctx[0].Text)
	assert.Equal(t, "g24", ctx[len(ctx)-1].Text)
	for _, m := range ctx {
		assert.NotEqual(t, "noise", m.Text)
	}
}

func TestTickAdvancesPlaceholder(t *testing.T) {
	fi := &fakeInteractor{resp: api.NPCResponse{Response: "ok"}}
	h, l, ib := newHandler(t, fi)
	id, err := h.Begin(context.Background(), "p1", "gate", npc.Address{NPC: guard, Message: "hi"}, "@Guard hi")
	require.NoError(t, err)

	h.Tick(TickEvent{RequestID: id})
	assert.Equal(t, spinner.Frame(1), l.Entries()[1].Text)
	settle(t, h, ib)
}
