package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocket is a Channel over a gorilla/websocket connection.
type WebSocket struct {
	*outbox
	conn      *websocket.Conn
	logger    *zap.Logger
	closeOnce sync.Once
}

// DialWebSocket connects to rawURL, adding player_id as a query parameter.
//
// Precondition: rawURL must be a ws:// or wss:// URL.
// Postcondition: Returns a connected WebSocket or a non-nil error.
func DialWebSocket(ctx context.Context, rawURL, playerID string, outboundBuffer int, logger *zap.Logger) (*WebSocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing push url: %w", err)
	}
	q := u.Query()
	q.Set("player_id", playerID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing push channel: %w", err)
	}
	return NewWebSocket(conn, outboundBuffer, logger), nil
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn, outboundBuffer int, logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocket{
		outbox: newOutbox(outboundBuffer),
		conn:   conn,
		logger: logger,
	}
}

// Run implements Channel. The connection is closed when Run returns.
func (w *WebSocket) Run(ctx context.Context, handle Handler) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-w.done:
				return errStopped
			case env := <-w.queue:
				if err := w.write(env); err != nil {
					return err
				}
			case <-ticker.C:
				if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		// Unblocks ReadMessage; the channel is single-use.
		_ = w.Close()
		return nil
	})

	g.Go(func() error {
		_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
		w.conn.SetPongHandler(func(string) error {
			return w.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, data, err := w.conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if w.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return errStopped
				}
				return fmt.Errorf("reading push channel: %w", err)
			}
			_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
			deliver(data, handle, w.logger)
		}
	})

	err := g.Wait()
	if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *WebSocket) write(env Envelope) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("writing %s: %w", env.Type, err)
	}
	return nil
}

// Close implements Channel. It is safe to call more than once.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.outbox.close()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = w.conn.Close()
	})
	return err
}
