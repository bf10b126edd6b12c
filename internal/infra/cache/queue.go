package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a redis-list job queue. Jobs are pushed to the head and popped
// from the tail through a per-worker processing list, so a worker crash
// leaves the job recoverable instead of lost.
type Queue struct {
	cache *Cache
	name  string
}

func NewQueue(cache *Cache, name string) *Queue {
	return &Queue{cache: cache, name: name}
}

func (q *Queue) key() string {
	return fmt.Sprintf("queue:%s", q.name)
}

func (q *Queue) processingKey(worker string) string {
	return fmt.Sprintf("queue:%s:processing:%s", q.name, worker)
}

func (q *Queue) Enqueue(ctx context.Context, job interface{}) error {
	if q.cache == nil {
		return fmt.Errorf("queue %s: redis unavailable", q.name)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.cache.client.LPush(ctx, q.key(), data).Err()
}

// Dequeue blocks up to timeout for a job and moves it to the worker's
// processing list. A nil payload with nil error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, worker string, timeout time.Duration, dest interface{}) (bool, error) {
	data, err := q.cache.client.BLMove(ctx, q.key(), q.processingKey(worker), "RIGHT", "LEFT", timeout).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal job: %w", err)
	}
	return true, nil
}

// Ack removes the worker's in-flight job after successful processing.
func (q *Queue) Ack(ctx context.Context, worker string) error {
	return q.cache.client.LPop(ctx, q.processingKey(worker)).Err()
}

// Requeue returns the worker's in-flight job to the main list.
func (q *Queue) Requeue(ctx context.Context, worker string) error {
	return q.cache.client.LMove(ctx, q.processingKey(worker), q.key(), "LEFT", "LEFT").Err()
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.cache.client.LLen(ctx, q.key()).Result()
}
