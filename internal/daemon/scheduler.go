// Package daemon implements the periodic background sync loop.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// SyncEngine is the slice of the engine the scheduler drives.
type SyncEngine interface {
	Sync(ctx context.Context, forced bool) domain.SyncResult
	GrantedPermissions() []string
	ReadinessState() domain.ReadinessState
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// SyncInterval is how often the non-forced sync runs.
	SyncInterval time.Duration
}

// DefaultSchedulerConfig returns the default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{SyncInterval: 15 * time.Minute}
}

// Scheduler invokes a non-forced sync on a fixed interval while at least
// one permission is granted. The loop stops when the context is
// canceled; an in-flight native call is not preempted, only the next
// tick is.
type Scheduler struct {
	config SchedulerConfig
	engine SyncEngine
	logger *zap.Logger
}

// NewScheduler creates a periodic sync scheduler.
func NewScheduler(config SchedulerConfig, engine SyncEngine, logger *zap.Logger) *Scheduler {
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSchedulerConfig().SyncInterval
	}
	return &Scheduler{config: config, engine: engine, logger: logger}
}

// Run starts the scheduler loop. Blocks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("sync scheduler started",
		zap.Duration("interval", s.config.SyncInterval))

	// Run one sync immediately on startup.
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	if len(s.engine.GrantedPermissions()) == 0 {
		s.logger.Debug("skipping scheduled sync, no permissions granted")
		return
	}

	result := s.engine.Sync(ctx, false)
	if result.Err != nil {
		s.logger.Warn("scheduled sync failed",
			zap.String("run_id", result.RunID),
			zap.Error(result.Err))
		return
	}
	if result.FromCache {
		return
	}
	s.logger.Info("scheduled sync completed",
		zap.String("run_id", result.RunID),
		zap.Bool("fallback", result.Fallback),
		zap.String("readiness", string(s.engine.ReadinessState())))
}
