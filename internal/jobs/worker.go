package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/metrics"
)

// DefaultTimeout bounds one job run.
const DefaultTimeout = 60 * time.Second

// Func is the body of a registered job.
type Func func(ctx context.Context) error

// Worker executes queued jobs by name. Each run is bounded by a timeout and
// never retried.
type Worker struct {
	consumer Consumer
	funcs    map[string]Func
	timeout  time.Duration
	log      *logger.Logger
}

// NewWorker creates a Worker reading from consumer.
func NewWorker(consumer Consumer, timeout time.Duration, log *logger.Logger) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Worker{
		consumer: consumer,
		funcs:    make(map[string]Func),
		timeout:  timeout,
		log:      log.Named("worker"),
	}
}

// Register binds a job name to its body. Call before Run.
func (w *Worker) Register(job string, fn Func) {
	w.funcs[job] = fn
}

// Run consumes jobs until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	err := w.consumer.Consume(ctx, 1, w.Handle)
	w.log.Info("worker stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Handle runs a single job. Unknown jobs are dropped.
func (w *Worker) Handle(ctx context.Context, job string) error {
	fn, ok := w.funcs[job]
	if !ok {
		metrics.JobsTotal.WithLabelValues(job, "unknown").Inc()
		w.log.Warn("dropping unknown job", zap.String("job", job))
		return fmt.Errorf("jobs: unknown job %q", job)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		metrics.JobsTotal.WithLabelValues(job, "failed").Inc()
		w.log.Error("job failed",
			zap.String("job", job),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	metrics.JobsTotal.WithLabelValues(job, "success").Inc()
	w.log.Info("job finished", zap.String("job", job), zap.Duration("duration", time.Since(start)))
	return nil
}
