package api

import (
	"context"
	"errors"

	"github.com/cory-johannsen/mudclient/internal/ledger"
)

// ContextMessage is one prior exchange sent as NPC conversation context.
type ContextMessage struct {
	AuthorID string `json:"author_id"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
}

// NPCRequest is the body of an NPC interaction.
type NPCRequest struct {
	PlayerID string           `json:"player_id"`
	NPCID    string           `json:"npc_id"`
	RoomID   string           `json:"room_id"`
	Message  string           `json:"message"`
	Context  []ContextMessage `json:"context"`
}

// NPCResponse is the NPC's reply.
type NPCResponse struct {
	Response        string                  `json:"response"`
	QuestCompletion *ledger.QuestCompletion `json:"quest_completion,omitempty"`
}

// InteractNPC sends req to the NPC interaction endpoint.
//
// Postcondition: Returns the reply, or an error for transport failure or an empty response.
func (c *Client) InteractNPC(ctx context.Context, req NPCRequest) (NPCResponse, error) {
	if req.Context == nil {
		req.Context = []ContextMessage{}
	}
	var resp NPCResponse
	if err := c.postJSON(ctx, npcInteractPath, req, &resp); err != nil {
		return NPCResponse{}, err
	}
	if resp.Response == "" {
		return NPCResponse{}, errors.New("npc interaction: empty response")
	}
	return resp, nil
}
