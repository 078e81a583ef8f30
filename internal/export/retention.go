package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/storage"
)

// Scheduler is the background retention process. One long-lived goroutine
// wakes on a fixed interval and runs a sweep to completion before the next
// tick; ticks never overlap.
type Scheduler struct {
	registry *Registry
	storage  storage.Backend
	policy   RetentionPolicy
	interval time.Duration
	log      *zap.Logger
}

func NewScheduler(registry *Registry, store storage.Backend, policy RetentionPolicy, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		storage:  store,
		policy:   policy,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one retention pass. The registry transition commits first,
// under its lock; the underlying bytes are deleted only afterwards, so no
// concurrent download can resolve a handle to already-deleted data.
func (s *Scheduler) sweep(ctx context.Context) {
	reclaimed := s.registry.Sweep(s.policy)
	for _, rec := range reclaimed {
		for _, handle := range rec.Handles {
			if err := s.storage.Delete(ctx, handle); err != nil {
				// Leaked object, not a correctness problem: the record is
				// already unreachable. Log for operators.
				s.log.Error("retention: release storage",
					zap.String("export_id", rec.ID.String()),
					zap.String("handle", handle),
					zap.Error(err),
				)
			}
		}
		s.log.Info("retention: reclaimed export",
			zap.String("export_id", rec.ID.String()),
			zap.String("reason", rec.Reason),
			zap.Int("handles", len(rec.Handles)),
		)
	}
}
