// Package ledger provides the ordered, mutable-by-id message log that a session
// UI renders from.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a ledger entry. The set is closed.
type Kind string

const (
	KindChat            Kind = "chat"
	KindEmote           Kind = "emote"
	KindSystem          Kind = "system"
	KindNarration       Kind = "narration"
	KindNPCDialogue     Kind = "npc_dialogue"
	KindQuestCompletion Kind = "quest_completion"
	KindDuelOutcome     Kind = "duel_outcome"
	KindRoomDescription Kind = "room_description"
	KindItemFound       Kind = "item_found"
)

// Valid reports whether k is one of the closed set of kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindEmote, KindSystem, KindNarration, KindNPCDialogue,
		KindQuestCompletion, KindDuelOutcome, KindRoomDescription, KindItemFound:
		return true
	}
	return false
}

// SystemAuthor is the AuthorID used for locally synthesized entries.
const SystemAuthor = "system"

// FailureText is the user-safe text a failed request's entry is frozen with.
const FailureText = "That didn't go through. Please try again."

// Rewards lists what a completed quest granted.
type Rewards struct {
	XP    int      `json:"xp,omitempty"`
	Gold  int      `json:"gold,omitempty"`
	Items []string `json:"items,omitempty"`
}

// QuestCompletion is the payload attached to quest_completion entries.
type QuestCompletion struct {
	QuestID string  `json:"quest_id"`
	Title   string  `json:"title"`
	Rewards Rewards `json:"rewards"`
}

// Summary formats the completion as one line. Rewards are always listed in
// XP, gold, items order so identical payloads render identically.
func (q QuestCompletion) Summary() string {
	title := q.Title
	if title == "" {
		title = q.QuestID
	}
	var parts []string
	if q.Rewards.XP > 0 {
		parts = append(parts, fmt.Sprintf("%d XP", q.Rewards.XP))
	}
	if q.Rewards.Gold > 0 {
		parts = append(parts, fmt.Sprintf("%d gold", q.Rewards.Gold))
	}
	parts = append(parts, q.Rewards.Items...)
	if len(parts) == 0 {
		return fmt.Sprintf("Quest completed: %s!", title)
	}
	return fmt.Sprintf("Quest completed: %s! Rewards: %s", title, strings.Join(parts, ", "))
}

// Entry is one chat, system, or narrative line in the ledger.
type Entry struct {
	// ID is unique and stable once assigned.
	ID       string
	AuthorID string
	RoomID   string
	Text     string
	Kind     Kind
	// Timestamp is set at append time when zero.
	Timestamp time.Time
	// IsStreaming marks an entry that may still be mutated in place.
	IsStreaming bool
	// NPCID links player messages addressed to an NPC and that NPC's replies.
	NPCID string
	Quest *QuestCompletion
}

// clone returns a copy of e that shares no mutable state with it.
func (e Entry) clone() Entry {
	if e.Quest != nil {
		q := *e.Quest
		q.Rewards.Items = append([]string(nil), e.Quest.Rewards.Items...)
		e.Quest = &q
	}
	return e
}
