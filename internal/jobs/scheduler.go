package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/pkg/logger"
)

// Scheduler publishes a job every interval.
type Scheduler struct {
	producer Producer
	job      string
	interval time.Duration
	log      *logger.Logger
}

// NewScheduler creates a Scheduler for job.
func NewScheduler(producer Producer, job string, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		producer: producer,
		job:      job,
		interval: interval,
		log:      log.Named("scheduler"),
	}
}

// Run publishes the job on every tick until ctx ends. The first publish
// happens one interval after start.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.String("job", s.job), zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped", zap.String("job", s.job))
			return
		case <-ticker.C:
			if err := s.producer.Publish(ctx, s.job); err != nil {
				s.log.Error("failed to publish job", zap.String("job", s.job), zap.Error(err))
			}
		}
	}
}
