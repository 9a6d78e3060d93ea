package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisQueue = "agent:jobs"

// RedisQueue is a job queue on a Redis list (LPUSH / BRPOP). Failed jobs are
// not re-enqueued.
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue connects to the Redis server at url (redis://...).
func NewRedisQueue(ctx context.Context, url, queue string) (*RedisQueue, error) {
	if url == "" {
		return nil, errors.New("jobs: redis url must not be empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("jobs: parse redis url: %w", err)
	}
	if queue == "" {
		queue = defaultRedisQueue
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("jobs: connect redis: %w", err)
	}
	return &RedisQueue{client: client, queue: queue, wait: 5 * time.Second}, nil
}

// Publish pushes a job onto the list.
func (q *RedisQueue) Publish(ctx context.Context, job string) error {
	if err := q.client.LPush(ctx, q.queue, job).Err(); err != nil {
		return fmt.Errorf("jobs: redis publish: %w", err)
	}
	return nil
}

// Consume pops jobs with BRPOP on workerCount goroutines until ctx ends or
// Redis fails.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					errCh <- fmt.Errorf("jobs: redis pop: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				_ = handler(ctx, values[1])
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
