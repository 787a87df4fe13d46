// Package redisprovider fans a document's Send bytes out across server
// instances over Redis pub/sub, keyed by a per-document channel rather than
// a single hardcoded one.
package redisprovider

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Relay is a thin wrapper over a Redis client used purely for pub/sub
// fan-out; it holds no document state of its own.
type Relay struct {
	client *redis.Client
}

// New constructs a Relay pointed at addr.
func New(addr string) *Relay {
	return &Relay{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping verifies connectivity at startup.
func (r *Relay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish relays payload to every subscriber of channel.
func (r *Relay) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a channel of message payloads delivered on channel and
// a close function the caller must invoke when done listening.
func (r *Relay) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error) {
	pubsub := r.client.Subscribe(ctx, channel)
	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	return out, pubsub.Close
}

// Close closes the underlying Redis client.
func (r *Relay) Close() error {
	return r.client.Close()
}
