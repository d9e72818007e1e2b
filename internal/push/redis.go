package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InboundChannel is the Pub/Sub channel the server publishes a player's events on.
func InboundChannel(prefix, playerID string) string {
	return fmt.Sprintf("%s:%s:in", prefix, playerID)
}

// OutboundChannel is the Pub/Sub channel a player's client publishes on.
func OutboundChannel(prefix, playerID string) string {
	return fmt.Sprintf("%s:%s:out", prefix, playerID)
}

// Redis is a Channel over Redis Pub/Sub.
type Redis struct {
	*outbox
	client    *redis.Client
	in, out   string
	owned     bool
	logger    *zap.Logger
	closeOnce sync.Once
}

// DialRedis connects to the Redis server at addr.
//
// Postcondition: Returns a Redis channel whose client is closed by Close, or an error if
// the server does not answer PING.
func DialRedis(ctx context.Context, addr, prefix, playerID string, outboundBuffer int, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	r := NewRedis(client, prefix, playerID, outboundBuffer, logger)
	r.owned = true
	return r, nil
}

// NewRedis wraps an existing client. The caller keeps ownership of client.
func NewRedis(client *redis.Client, prefix, playerID string, outboundBuffer int, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		outbox: newOutbox(outboundBuffer),
		client: client,
		in:     InboundChannel(prefix, playerID),
		out:    OutboundChannel(prefix, playerID),
		logger: logger,
	}
}

// Run implements Channel.
func (r *Redis) Run(ctx context.Context, handle Handler) error {
	sub := r.client.Subscribe(ctx, r.in)
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.in, err)
	}
	messages := sub.Channel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.drain(ctx, r.publish)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-r.done:
				return errStopped
			case msg, ok := <-messages:
				if !ok {
					return errStopped
				}
				deliver([]byte(msg.Payload), handle, r.logger)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Redis) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", env.Type, err)
	}
	if err := r.client.Publish(ctx, r.out, data).Err(); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", env.Type, r.out, err)
	}
	r.logger.Debug("push event published", zap.String("channel", r.out), zap.String("type", env.Type))
	return nil
}

// Close implements Channel. It is safe to call more than once.
func (r *Redis) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.outbox.close()
		if r.owned {
			err = r.client.Close()
		}
	})
	return err
}
