// Package jobs runs named background jobs through a queue: a scheduler
// publishes them periodically and a worker executes them.
package jobs

import (
	"context"
)

// JobRefreshTokens refreshes the token catalog.
const JobRefreshTokens = "refresh_tokens"

// Handler processes one job taken from the queue.
type Handler func(ctx context.Context, job string) error

// Producer publishes jobs.
type Producer interface {
	Publish(ctx context.Context, job string) error
	Close() error
}

// Consumer takes jobs off the queue until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both ends of a job queue.
type Queue interface {
	Producer
	Consumer
}
