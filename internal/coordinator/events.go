package coordinator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/accumulator"
	"github.com/cory-johannsen/mudclient/internal/dialogue"
	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/inbox"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/push"
	"github.com/cory-johannsen/mudclient/internal/session"
)

// ManualClearNotice is appended when the player resets a duel by hand.
const ManualClearNotice = "You are no longer in a duel."

type (
	submitCmd      struct{ raw string }
	respondCmd     struct{ accept bool }
	toggleEmoteCmd struct{}
	forceClearCmd  struct{}
	syncCmd        struct{ done chan struct{} }
	pushEvent      struct{ event interface{} }
	connectionLost struct{}
)

// handle applies one inbox event. It runs only on the loop goroutine.
func (c *Coordinator) handle(ctx context.Context, ev inbox.Event) {
	switch ev := ev.(type) {
	case accumulator.ChunkEvent:
		c.actions.Chunk(ev)
	case accumulator.CompletedEvent:
		c.actions.Complete(ev)
	case accumulator.FailedEvent:
		c.actions.Fail(ev)
	case accumulator.TickEvent:
		c.actions.Tick(ev)
	case dialogue.ReplyEvent:
		c.talk.Reply(ev)
	case dialogue.FailedEvent:
		c.talk.Fail(ev)
	case dialogue.TickEvent:
		c.talk.Tick(ev)
	case submitCmd:
		c.router.Submit(ctx, ev.raw)
	case respondCmd:
		if err := c.duel.Respond(ev.accept); errors.Is(err, duel.ErrNoChallenge) {
			c.system("There is no challenge to answer.")
		} else if err != nil {
			c.logger.Warn("answering challenge", zap.Error(err))
		}
	case toggleEmoteCmd:
		on := c.router.ToggleEmote()
		c.logger.Debug("emote mode", zap.Bool("on", on))
	case forceClearCmd:
		c.duel.ForceClear(ManualClearNotice)
	case syncCmd:
		close(ev.done)
	case pushEvent:
		c.handlePush(ev.event)
	case connectionLost:
		c.system(ConnectionLostNotice)
	default:
		c.logger.Warn("unhandled inbox event", zap.String("type", typeName(ev)))
	}
}

func (c *Coordinator) handlePush(event interface{}) {
	switch ev := event.(type) {
	case push.DuelChallenge:
		c.duel.Challenge(ev.FromID, ev.FromName)
	case push.DuelStart:
		err := c.duel.Begin(duel.Start{
			OpponentID:     ev.OpponentID,
			OpponentName:   ev.OpponentName,
			MyVitals:       ev.PlayerVitals,
			OpponentVitals: ev.OpponentVitals,
			VitalCap:       ev.VitalCap,
		})
		if err != nil {
			c.logger.Warn("duel start from push", zap.String("opponent_id", ev.OpponentID), zap.Error(err))
		}
	case push.DuelMove:
		c.duel.OpponentMove(ev.FromID, ev.Move, ev.Outcome)
	case push.DuelResponse:
		if err := c.duel.ChallengeAnswered(ev.FromID, ev.FromName, ev.Accept); err != nil {
			c.logger.Warn("challenge answered", zap.String("from", ev.FromID), zap.Error(err))
		}
	case push.DuelEnd:
		c.duel.End(ev.FromID, ev.WinnerID, ev.Reason)
	case push.ChatMessage:
		if ev.AuthorID == c.cfg.PlayerID {
			return
		}
		kind := ledger.KindChat
		if ev.MessageType == "emote" {
			kind = ledger.KindEmote
		}
		c.append(ledger.Entry{AuthorID: ev.AuthorID, RoomID: ev.RoomID, Kind: kind, Text: ev.Text})
	case push.Narration:
		c.append(ledger.Entry{AuthorID: ledger.SystemAuthor, RoomID: ev.RoomID, Kind: ledger.KindNarration, Text: ev.Text})
	case push.RoomDescription:
		c.append(ledger.Entry{AuthorID: ledger.SystemAuthor, RoomID: ev.RoomID, Kind: ledger.KindRoomDescription, Text: ev.Text})
	case push.PlayerUpdate:
		c.store.MergePlayer(ev.PlayerDiff)
	case push.RoomState:
		c.enterRoom(ev)
	default:
		c.logger.Debug("ignoring push event", zap.String("type", typeName(event)))
	}
}

// enterRoom records the new room and swaps in its NPC roster.
func (c *Coordinator) enterRoom(rs push.RoomState) {
	if rs.RoomID != "" {
		room := rs.RoomID
		c.store.MergePlayer(session.PlayerDiff{RoomID: &room})
	}
	dir, err := npc.NewDirectory(rs.NPCs)
	if err != nil {
		c.logger.Warn("rejecting room roster", zap.String("room_id", rs.RoomID), zap.Error(err))
		return
	}
	c.directory.Store(dir)
}

func (c *Coordinator) system(text string) {
	c.append(ledger.Entry{AuthorID: ledger.SystemAuthor, RoomID: c.store.Player().RoomID, Kind: ledger.KindSystem, Text: text})
}

func (c *Coordinator) append(e ledger.Entry) {
	if _, err := c.ledger.Append(e); err != nil {
		c.logger.Error("appending entry", zap.Error(err))
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
