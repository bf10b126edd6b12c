package cache

import (
	"context"
)

// Relay is a thin wrapper over redis pub/sub used to fan events out across
// nodes. Payloads are opaque bytes; the hub owns the envelope format.
type Relay struct {
	cache *Cache
}

func NewRelay(cache *Cache) *Relay {
	return &Relay{cache: cache}
}

func (r *Relay) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.cache.client.Publish(ctx, channel, payload).Err()
}

// NextSeq draws the next value from a shared counter so sequence numbers
// stay monotonic across every node publishing into the same channel.
func (r *Relay) NextSeq(ctx context.Context, key string) (uint64, error) {
	n, err := r.cache.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Subscribe delivers every payload published to pattern until ctx is done.
func (r *Relay) Subscribe(ctx context.Context, pattern string, handle func(channel string, payload []byte)) error {
	sub := r.cache.client.PSubscribe(ctx, pattern)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle(msg.Channel, []byte(msg.Payload))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
