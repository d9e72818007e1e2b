package api

import "context"

// Chat message types.
const (
	MessageTypeChat    = "chat"
	MessageTypeEmote   = "emote"
	MessageTypeCommand = "command"
)

// ChatRequest is the body of a chat send.
type ChatRequest struct {
	PlayerID    string `json:"player_id"`
	RoomID      string `json:"room_id"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
}

// SendChat posts req to the chat endpoint. The response body is ignored.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) error {
	if req.MessageType == "" {
		req.MessageType = MessageTypeChat
	}
	return c.postJSON(ctx, chatPath, req, nil)
}
