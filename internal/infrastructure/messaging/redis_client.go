package messaging

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	rdb redis.UniversalClient
}

var _ RedisClient = (*GoRedisClient)(nil)

// NewGoRedisClient wraps rdb. The caller keeps ownership of rdb.
func NewGoRedisClient(rdb redis.UniversalClient) *GoRedisClient {
	return &GoRedisClient{rdb: rdb}
}

// Publish implements RedisClient.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, message any) error {
	return c.rdb.Publish(ctx, channel, message).Err()
}

// Subscribe confirms the subscription, then forwards messages until ctx is
// cancelled. The returned channel is closed when forwarding stops.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	ps := c.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the underlying client is shared with the level cache.
func (c *GoRedisClient) Close() error {
	return nil
}
