package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/session"
)

// ErrStreamTruncated is returned when the action stream ends without a terminal event.
var ErrStreamTruncated = errors.New("action stream ended without a terminal event")

// ActionRequest is the body of a streaming world action.
type ActionRequest struct {
	PlayerID string `json:"player_id"`
	Action   string `json:"action"`
	RoomID   string `json:"room_id"`
}

// DuelStart is carried by an action result that begins a duel.
type DuelStart struct {
	OpponentID     string `json:"opponent_id"`
	OpponentName   string `json:"opponent_name,omitempty"`
	PlayerVitals   int    `json:"player_vitals,omitempty"`
	OpponentVitals int    `json:"opponent_vitals,omitempty"`
	VitalCap       int    `json:"vital_cap,omitempty"`
}

// ActionUpdates are the session-state effects of a completed action.
type ActionUpdates struct {
	Player    *session.PlayerDiff `json:"player,omitempty"`
	QuestItem *session.Item       `json:"quest_item,omitempty"`
	Duel      *DuelStart          `json:"duel,omitempty"`
}

// ActionResult is the terminal payload of an action stream.
type ActionResult struct {
	Message string         `json:"message"`
	Updates *ActionUpdates `json:"updates,omitempty"`
}

// RemoteError is an error reported by the backend inside the stream.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "action failed: " + e.Message
}

type chunkData struct {
	Text string `json:"text"`
}

type errorData struct {
	Error string `json:"error"`
}

// StreamAction posts req to the streaming action endpoint. onChunk is called
// for each partial text chunk in delivery order, from the calling goroutine.
//
// Precondition: onChunk must be non-nil.
// Postcondition: Returns the terminal result, a *RemoteError for an explicit error event,
// ErrStreamTruncated if the stream ends early, or a transport/decoding error.
func (c *Client) StreamAction(ctx context.Context, req ActionRequest, onChunk func(text string)) (ActionResult, error) {
	if c.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()
	}
	resp, err := c.do(ctx, actionStreamPath, "text/event-stream", req)
	if err != nil {
		return ActionResult{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			ev.parseLine(line)
			continue
		}
		if ev.empty() {
			continue
		}
		result, done, err := c.handleEvent(ev, onChunk)
		if done || err != nil {
			return result, err
		}
		ev = sseEvent{}
	}
	if !ev.empty() {
		if result, done, err := c.handleEvent(ev, onChunk); done || err != nil {
			return result, err
		}
	}
	if err := scanner.Err(); err != nil {
		return ActionResult{}, fmt.Errorf("reading action stream: %w", err)
	}
	if ctx.Err() != nil {
		return ActionResult{}, ctx.Err()
	}
	return ActionResult{}, ErrStreamTruncated
}

type sseEvent struct {
	name string
	data []string
}

func (e *sseEvent) parseLine(line string) {
	switch {
	case strings.HasPrefix(line, ":"):
		// keep-alive comment
	case strings.HasPrefix(line, "event:"):
		e.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		e.data = append(e.data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
	}
}

func (e sseEvent) empty() bool {
	return e.name == "" && len(e.data) == 0
}

// handleEvent applies one SSE event. done is true once a terminal event was seen.
func (c *Client) handleEvent(ev sseEvent, onChunk func(string)) (result ActionResult, done bool, err error) {
	payload := strings.Join(ev.data, "\n")
	switch ev.name {
	case "chunk", "":
		var chunk chunkData
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return ActionResult{}, true, fmt.Errorf("decoding chunk: %w", err)
		}
		if chunk.Text != "" {
			onChunk(chunk.Text)
		}
		return ActionResult{}, false, nil
	case "complete":
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return ActionResult{}, true, fmt.Errorf("decoding terminal event: %w", err)
		}
		return result, true, nil
	case "error":
		var e errorData
		if err := json.Unmarshal([]byte(payload), &e); err != nil || e.Error == "" {
			return ActionResult{}, true, &RemoteError{Message: payload}
		}
		return ActionResult{}, true, &RemoteError{Message: e.Error}
	default:
		c.logger.Debug("ignoring stream event", zap.String("event", ev.name))
		return ActionResult{}, false, nil
	}
}
