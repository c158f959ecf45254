package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"auction-marketplace/internal/domain"
)

// RedisJobQueue is a FIFO list: producers RPUSH, the processor BLPOPs.
type RedisJobQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

func NewRedisJobQueue(client *redis.Client, key string, pollTimeout time.Duration) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: key, pollTimeout: pollTimeout}
}

func (q *RedisJobQueue) Enqueue(ctx context.Context, job domain.Job) error {
	data, err := EncodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %v: %w", job.JobID(), err, domain.ErrQueueUnavailable)
	}
	return nil
}

// Dequeue blocks until a job arrives or ctx is done. A payload that cannot be
// decoded is already removed from the list and comes back as ErrMalformedJob.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (domain.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := q.client.BLPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %v: %w", err, domain.ErrQueueUnavailable)
		}
		// result is [key, value]
		return DecodeJob([]byte(result[1]))
	}
}

// Len reports the queue depth.
func (q *RedisJobQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
