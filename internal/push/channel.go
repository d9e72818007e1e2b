package push

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/duel"
)

// Handler receives each decoded inbound event, in arrival order.
type Handler func(event interface{})

// Channel is a bidirectional push connection. Send methods never block.
type Channel interface {
	duel.Sender
	SendChatMessage(text, messageType string) error
	// Run reads inbound events and writes queued outbound ones until ctx is
	// cancelled or the connection fails.
	Run(ctx context.Context, handle Handler) error
	Close() error
}

// deliver decodes one frame and hands it to handle. Malformed frames and
// unknown types are logged and dropped.
func deliver(data []byte, handle Handler, logger *zap.Logger) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("malformed push frame", zap.Error(err))
		return
	}
	ev, err := Decode(env)
	if err != nil {
		logger.Warn("dropping push event", zap.String("type", env.Type), zap.Error(err))
		return
	}
	handle(ev)
}
