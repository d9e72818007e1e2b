package render

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/mudclient/internal/dispatch"
	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/session"
)

// NameFunc resolves an author ID to a display name. It returns "" when unknown.
type NameFunc func(id string) string

// Renderer formats session state for a line-oriented console.
type Renderer struct {
	style    Styler
	playerID string
	names    NameFunc
}

// NewRenderer creates a Renderer. names may be nil.
func NewRenderer(color bool, playerID string, names NameFunc) *Renderer {
	return &Renderer{style: Styler{Enabled: color}, playerID: playerID, names: names}
}

func (r *Renderer) name(id string) string {
	if id == r.playerID {
		return "You"
	}
	if r.names != nil {
		if n := r.names(id); n != "" {
			return n
		}
	}
	return id
}

// Entry formats e as a single line without a trailing newline.
func (r *Renderer) Entry(e ledger.Entry) string {
	s := r.style
	switch e.Kind {
	case ledger.KindChat:
		if e.AuthorID == r.playerID {
			if e.NPCID != "" {
				return s.Colorf(BrightWhite, "You say to %s: %s", r.name(e.NPCID), stripAddress(e.Text))
			}
			return s.Colorf(BrightWhite, "You say: %s", e.Text)
		}
		return s.Colorf(BrightWhite, "%s says: %s", r.name(e.AuthorID), e.Text)
	case ledger.KindEmote:
		return s.Colorf(Magenta, "%s %s", r.name(e.AuthorID), e.Text)
	case ledger.KindNPCDialogue:
		return s.Colorize(Yellow, r.name(e.AuthorID)+": ") + e.Text
	case ledger.KindNarration:
		return s.Colorize(Cyan, e.Text)
	case ledger.KindRoomDescription:
		return s.Colorize(BrightCyan, e.Text)
	case ledger.KindQuestCompletion:
		return s.Colorize(Bold+Green, e.Text)
	case ledger.KindItemFound:
		return s.Colorize(Green, e.Text)
	case ledger.KindDuelOutcome:
		return s.Colorize(BrightRed, e.Text)
	default:
		if strings.HasPrefix(e.Text, dispatch.EchoPrefix) {
			return s.Colorize(Dim, e.Text)
		}
		if e.Text == ledger.FailureText {
			return s.Colorize(Red, e.Text)
		}
		return e.Text
	}
}

// stripAddress drops the leading "@Name " from a message addressed to an NPC.
func stripAddress(text string) string {
	if !strings.HasPrefix(text, "@") {
		return text
	}
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}

// Status formats the prompt line: room, health, and the duel when one is running.
func (r *Renderer) Status(p session.Player, d duel.Session) string {
	var b strings.Builder
	b.WriteString(r.style.Colorf(BrightYellow, "[%s]", p.RoomID))
	if p.MaxHealth > 0 {
		fmt.Fprintf(&b, " HP %d/%d", p.Health, p.MaxHealth)
	}
	switch d.State {
	case duel.StateChallenged:
		b.WriteString(r.style.Colorf(Red, " challenged by %s (accept/decline)", d.OpponentName))
	case duel.StateActive, duel.StateMoveSubmitted:
		b.WriteString(r.style.Colorf(Red, " duel vs %s round %d, %d-%d", d.OpponentName, d.Round, d.MyVitals, d.OpponentVitals))
		if d.State == duel.StateMoveSubmitted {
			b.WriteString(r.style.Colorize(Dim, " (waiting)"))
		}
	}
	b.WriteString(" > ")
	return b.String()
}

// Suggestions lists autocomplete matches, marking the one under the cursor.
//
// Postcondition: Returns "" when s has no matches.
func (r *Renderer) Suggestions(s npc.Suggestions) string {
	if !s.Active() {
		return ""
	}
	names := make([]string, len(s.Matches))
	for i, m := range s.Matches {
		if i == s.Cursor {
			names[i] = r.style.Colorize(Bold+Yellow, m.Name)
			continue
		}
		names[i] = m.Name
	}
	return strings.Join(names, "  ")
}

// Directory lists the NPCs in d, one per line.
func (r *Renderer) Directory(d *npc.Directory) string {
	records := d.Records()
	if len(records) == 0 {
		return r.style.Colorize(Dim, "No NPCs are here.")
	}
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(r.style.Colorize(Yellow, rec.Name))
		if rec.Description != "" {
			b.WriteString(" - ")
			b.WriteString(rec.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
