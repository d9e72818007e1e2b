// Package push is the server-to-client event channel and its outbound duel
// and chat traffic, over WebSocket or Redis Pub/Sub.
package push

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/mudclient/internal/duel"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/session"
)

// Envelope types.
const (
	TypeDuelChallenge   = "duel_challenge"
	TypeDuelStart       = "duel_start"
	TypeDuelMove        = "duel_move"
	TypeDuelResponse    = "duel_response"
	TypeDuelEnd         = "duel_end"
	TypeChatMessage     = "chat_message"
	TypeNarration       = "narration"
	TypeRoomDescription = "room_description"
	TypePlayerUpdate    = "player_update"
	TypeRoomState       = "room_state"
)

// Envelope is the wire frame for every push message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound events.
type (
	DuelChallenge struct {
		FromID   string `json:"from_id"`
		FromName string `json:"from_name,omitempty"`
	}
	DuelStart struct {
		OpponentID     string `json:"opponent_id"`
		OpponentName   string `json:"opponent_name,omitempty"`
		PlayerVitals   int    `json:"player_vitals,omitempty"`
		OpponentVitals int    `json:"opponent_vitals,omitempty"`
		VitalCap       int    `json:"vital_cap,omitempty"`
	}
	DuelMove struct {
		FromID  string        `json:"from_id"`
		Move    string        `json:"move"`
		Outcome *duel.Outcome `json:"outcome,omitempty"`
	}
	DuelResponse struct {
		FromID   string `json:"from_id"`
		FromName string `json:"from_name,omitempty"`
		Accept   bool   `json:"accept"`
	}
	DuelEnd struct {
		FromID   string `json:"from_id,omitempty"`
		WinnerID string `json:"winner_id,omitempty"`
		Reason   string `json:"reason,omitempty"`
	}
	ChatMessage struct {
		AuthorID    string `json:"author_id"`
		AuthorName  string `json:"author_name,omitempty"`
		RoomID      string `json:"room_id,omitempty"`
		Text        string `json:"text"`
		MessageType string `json:"message_type,omitempty"`
	}
	Narration struct {
		RoomID string `json:"room_id,omitempty"`
		Text   string `json:"text"`
	}
	RoomDescription struct {
		RoomID string `json:"room_id,omitempty"`
		Text   string `json:"text"`
	}
	PlayerUpdate struct {
		session.PlayerDiff
	}
	RoomState struct {
		RoomID string       `json:"room_id"`
		NPCs   []npc.Record `json:"npcs"`
	}
)

// Outbound payloads.
type (
	duelMoveOut struct {
		OpponentID string `json:"opponent_id"`
		Move       string `json:"move"`
	}
	duelResponseOut struct {
		OpponentID string `json:"opponent_id"`
		Accept     bool   `json:"accept"`
	}
	chatOut struct {
		Text        string `json:"text"`
		MessageType string `json:"message_type,omitempty"`
	}
)

var decoders = map[string]func() interface{}{
	TypeDuelChallenge:   func() interface{} { return &DuelChallenge{} },
	TypeDuelStart:       func() interface{} { return &DuelStart{} },
	TypeDuelMove:        func() interface{} { return &DuelMove{} },
	TypeDuelResponse:    func() interface{} { return &DuelResponse{} },
	TypeDuelEnd:         func() interface{} { return &DuelEnd{} },
	TypeChatMessage:     func() interface{} { return &ChatMessage{} },
	TypeNarration:       func() interface{} { return &Narration{} },
	TypeRoomDescription: func() interface{} { return &RoomDescription{} },
	TypePlayerUpdate:    func() interface{} { return &PlayerUpdate{} },
	TypeRoomState:       func() interface{} { return &RoomState{} },
}

// UnknownTypeError reports an envelope whose type has no decoder.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown push event type %q", e.Type)
}

// Decode converts env into its typed event value (not a pointer).
//
// Postcondition: Returns the event, *UnknownTypeError for an unrecognised type, or a
// decoding error.
func Decode(env Envelope) (interface{}, error) {
	newEvent, ok := decoders[env.Type]
	if !ok {
		return nil, &UnknownTypeError{Type: env.Type}
	}
	ev := newEvent()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
	}
	switch v := ev.(type) {
	case *DuelChallenge:
		return *v, nil
	case *DuelStart:
		return *v, nil
	case *DuelMove:
		return *v, nil
	case *DuelResponse:
		return *v, nil
	case *DuelEnd:
		return *v, nil
	case *ChatMessage:
		return *v, nil
	case *Narration:
		return *v, nil
	case *RoomDescription:
		return *v, nil
	case *PlayerUpdate:
		return *v, nil
	case *RoomState:
		return *v, nil
	}
	return ev, nil
}

// Encode builds an envelope around payload.
func Encode(typ string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}
