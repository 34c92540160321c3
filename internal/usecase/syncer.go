package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/catalog"
	"github.com/lumohealth/healthsyncd/internal/domain"
)

// DefaultCooldown is the minimum interval between non-forced syncs.
const DefaultCooldown = 15 * time.Minute

// SyncOrchestrator implements domain.Syncer.
//
// Non-forced syncs inside the cooldown window are served from the cached
// previous result so render/poll loops cannot spam the native layer. A
// fresh snapshot that turns out empty never replaces the last known good
// baseline; the baseline is served instead.
type SyncOrchestrator struct {
	adapter  domain.PlatformAdapter
	catalog  *catalog.Catalog
	store    domain.StateStore
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	cached     *domain.SyncResult
	lastSynced time.Time
}

// NewSyncOrchestrator creates a sync orchestrator.
func NewSyncOrchestrator(
	adapter domain.PlatformAdapter,
	cat *catalog.Catalog,
	store domain.StateStore,
	cooldown time.Duration,
	logger *zap.Logger,
) *SyncOrchestrator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &SyncOrchestrator{
		adapter:  adapter,
		catalog:  cat,
		store:    store,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// NewSyncOrchestratorWithClock creates an orchestrator with an
// injectable clock (for testing).
func NewSyncOrchestratorWithClock(
	adapter domain.PlatformAdapter,
	cat *catalog.Catalog,
	store domain.StateStore,
	cooldown time.Duration,
	logger *zap.Logger,
	now func() time.Time,
) *SyncOrchestrator {
	o := NewSyncOrchestrator(adapter, cat, store, cooldown, logger)
	o.now = now
	return o
}

// Sync runs one sync cycle.
func (o *SyncOrchestrator) Sync(ctx context.Context, forced bool) domain.SyncResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()

	if !forced && o.cached != nil && now.Sub(o.lastSynced) < o.cooldown {
		cached := *o.cached
		cached.FromCache = true
		return cached
	}

	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID))

	granted, err := o.store.GrantedIDs()
	if err != nil {
		log.Warn("failed to read granted permissions", zap.Error(err))
		return domain.SyncResult{RunID: runID, Err: fmt.Errorf("reading granted permissions: %w", err)}
	}
	if len(granted) == 0 {
		return domain.SyncResult{
			RunID: runID,
			Err:   fmt.Errorf("no granted permissions: %w", domain.ErrSyncFailed),
		}
	}

	fresh := o.fetchSnapshot(ctx, granted, now, log)

	if !fresh.Meaningful() {
		// Transient empty result: fall back to the persisted baseline
		// rather than destroying known-good data.
		baseline, err := o.store.LatestSnapshot()
		if err != nil {
			log.Warn("failed to load baseline snapshot", zap.Error(err))
		}
		if baseline.Meaningful() {
			log.Info("fresh snapshot empty, serving baseline",
				zap.Time("baseline_captured_at", baseline.CapturedAt))
			result := domain.SyncResult{
				Success:  true,
				RunID:    runID,
				Data:     baseline,
				LastSync: baseline.CapturedAt,
				Fallback: true,
			}
			o.cached = &result
			o.lastSynced = now
			return result
		}

		log.Warn("sync produced no meaningful data and no baseline exists")
		return domain.SyncResult{RunID: runID, Err: domain.ErrSyncFailed}
	}

	if err := o.store.SaveSnapshot(fresh); err != nil {
		log.Error("failed to persist snapshot", zap.Error(err))
	}
	if err := o.store.SetLastSync(now); err != nil {
		log.Warn("failed to persist last-sync timestamp", zap.Error(err))
	}

	log.Info("sync completed",
		zap.Int("metrics", len(fresh.Metrics)),
		zap.Bool("forced", forced))

	result := domain.SyncResult{
		Success:  true,
		RunID:    runID,
		Data:     fresh,
		LastSync: now,
	}
	o.cached = &result
	o.lastSynced = now
	return result
}

// fetchSnapshot reads every granted metric over the current day and
// aggregates per the catalog's rule. Per-metric read failures are
// logged and skipped; a partially failing platform still yields
// whatever it could deliver.
func (o *SyncOrchestrator) fetchSnapshot(ctx context.Context, granted []string, now time.Time, log *zap.Logger) *domain.HealthSnapshot {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	metrics := make(map[string]float64, len(granted))

	for _, id := range granted {
		descriptor, ok := o.catalog.ByID(id)
		if !ok {
			continue
		}
		native, err := o.catalog.NativeType(o.adapter.Platform(), id)
		if err != nil {
			continue
		}

		records, err := o.adapter.ReadRecords(ctx, native, from, now)
		if err != nil {
			log.Warn("metric read failed",
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		if len(records) == 0 {
			continue
		}

		metrics[id] = aggregate(descriptor.Aggregate, records)
	}

	return &domain.HealthSnapshot{Metrics: metrics, CapturedAt: now}
}

func aggregate(kind domain.AggregationKind, records []domain.Record) float64 {
	switch kind {
	case domain.AggregateLatest:
		latest := records[0]
		for _, r := range records[1:] {
			if r.RecordedAt.After(latest.RecordedAt) {
				latest = r
			}
		}
		return latest.Value
	default:
		var sum float64
		for _, r := range records {
			sum += r.Value
		}
		return sum
	}
}

// Ensure SyncOrchestrator implements domain.Syncer.
var _ domain.Syncer = (*SyncOrchestrator)(nil)
