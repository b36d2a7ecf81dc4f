package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis publishes every event as a JSON Envelope on a Pub/Sub channel so
// other server instances and workers can relay it.
type Redis struct {
	rdb     *redis.Client
	channel string
	*dispatcher
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	r := &Redis{rdb: rdb, channel: channel}
	r.dispatcher = newDispatcher("redis", r.send)
	return r
}

func (r *Redis) Publish(_ context.Context, event string, payload any) {
	r.enqueue(event, payload)
}

func (r *Redis) send(ctx context.Context, m message) error {
	body, err := marshalEnvelope(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.event, err)
	}
	if err := r.rdb.Publish(ctx, r.channel, string(body)).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.channel, err)
	}
	return nil
}
