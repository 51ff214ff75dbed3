package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
)

// Scheduler wires the periodic driver with the fetch orchestrator.
type Scheduler struct {
	driver  ports.Scheduler
	fetcher *Fetcher
	bucket  string
	prefix  string
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring fetches of bucket/prefix.
func NewScheduler(driver ports.Scheduler, fetcher *Fetcher, bucket, prefix string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, fetcher: fetcher, bucket: bucket, prefix: prefix, logger: logger}
}

// Start registers the fetch job with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.fetcher == nil {
		return nil
	}
	if s.bucket == "" {
		s.logger.Warn("periodic fetches disabled: no bucket configured")
		return nil
	}
	return s.driver.Start(ctx, s.trigger(ctx))
}

func (s *Scheduler) trigger(ctx context.Context) func(time.Time) {
	return func(at time.Time) {
		res, err := s.fetcher.Start(ctx, s.bucket, s.prefix)
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			s.logger.Info("scheduled fetch skipped", "reason", err)
		case err != nil:
			s.logger.Error("scheduled fetch failed to start", "error", err)
		default:
			s.logger.Info("scheduled fetch started", "run", res.RunID, "trigger", at.UTC())
		}
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
