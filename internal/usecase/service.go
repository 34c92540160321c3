package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/catalog"
	"github.com/lumohealth/healthsyncd/internal/domain"
)

// Engine is the one logical instance of the permission and sync engine.
// It is explicitly constructed by the composition root and passed by
// reference to consumers; there is no package-level singleton state.
type Engine struct {
	adapter    domain.PlatformAdapter
	catalog    *catalog.Catalog
	store      domain.StateStore
	settings   domain.SettingsOpener
	reconciler domain.Reconciler
	syncer     domain.Syncer
	logger     *zap.Logger

	mu          sync.Mutex
	initialized bool
	loading     bool
	lastErr     error
	capability  domain.PlatformCapability
	hasBaseline bool
}

// EngineConfig bundles the collaborators and tunables for NewEngine.
type EngineConfig struct {
	Adapter  domain.PlatformAdapter
	Catalog  *catalog.Catalog
	Store    domain.StateStore
	Settings domain.SettingsOpener
	Cooldown time.Duration
	Logger   *zap.Logger
}

// NewEngine wires the reconciler and sync orchestrator around the given
// adapter and store.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		adapter:    cfg.Adapter,
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		settings:   cfg.Settings,
		reconciler: NewReconciler(cfg.Adapter, cfg.Catalog, cfg.Store, cfg.Logger),
		syncer:     NewSyncOrchestrator(cfg.Adapter, cfg.Catalog, cfg.Store, cfg.Cooldown, cfg.Logger),
		logger:     cfg.Logger,
	}
}

// NewEngineWithDeps allows injecting reconciler and syncer (for testing).
func NewEngineWithDeps(cfg EngineConfig, reconciler domain.Reconciler, syncer domain.Syncer) *Engine {
	e := NewEngine(cfg)
	if reconciler != nil {
		e.reconciler = reconciler
	}
	if syncer != nil {
		e.syncer = syncer
	}
	return e
}

// Initialize probes the platform and self-heals stale persisted state.
// Persisted grants pointing at a now-unavailable platform are cleared so
// they cannot linger across sessions.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	e.loading = true
	e.mu.Unlock()

	capability := e.adapter.ProbeCapability(ctx)

	if !capability.Available {
		granted, err := e.store.GrantedIDs()
		if err == nil && len(granted) > 0 {
			e.logger.Info("platform no longer available, clearing stale grants",
				zap.Strings("stale", granted))
			if err := e.store.ClearGranted(); err != nil {
				e.logger.Error("failed to clear stale grants", zap.Error(err))
			}
		}
	}

	baseline, err := e.store.LatestSnapshot()
	if err != nil {
		e.logger.Warn("failed to load baseline snapshot", zap.Error(err))
	}

	e.mu.Lock()
	e.capability = capability
	e.hasBaseline = baseline.Meaningful()
	e.initialized = true
	e.loading = false
	e.mu.Unlock()

	e.logger.Info("engine initialized",
		zap.String("platform", string(e.adapter.Platform())),
		zap.Bool("available", capability.Available),
		zap.Bool("has_baseline", baseline.Meaningful()))
	return nil
}

// RequestPermissions reconciles the requested permission ids.
func (e *Engine) RequestPermissions(ctx context.Context, ids []string) (domain.GrantResult, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return domain.GrantResult{
			Granted: []string{},
			Denied:  append([]string{}, ids...),
		}, domain.ErrNotInitialized
	}
	e.mu.Unlock()

	return e.reconciler.RequestPermissions(ctx, ids)
}

// Sync runs one sync cycle through the orchestrator and folds the
// outcome into the readiness inputs.
func (e *Engine) Sync(ctx context.Context, forced bool) domain.SyncResult {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return domain.SyncResult{Err: domain.ErrNotInitialized}
	}
	e.loading = true
	e.mu.Unlock()

	result := e.syncer.Sync(ctx, forced)

	e.mu.Lock()
	e.loading = false
	e.lastErr = result.Err
	if result.Data.Meaningful() {
		e.hasBaseline = true
	}
	e.mu.Unlock()

	return result
}

// ReadinessState derives the current UI-facing state.
func (e *Engine) ReadinessState() domain.ReadinessState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return DeriveReadiness(ReadinessInputs{
		Initialized:           e.initialized,
		AnyPermissionGranted:  e.anyGrantedLocked(),
		HasMeaningfulSnapshot: e.hasBaseline,
		Loading:               e.loading,
		LastErr:               e.lastErr,
	})
}

// IsPermissionGranted checks the persisted grant set.
func (e *Engine) IsPermissionGranted(id string) bool {
	return e.reconciler.IsPermissionGranted(id)
}

// GrantedPermissions returns the persisted granted ids.
func (e *Engine) GrantedPermissions() []string {
	granted, err := e.store.GrantedIDs()
	if err != nil {
		e.logger.Warn("failed to read granted permissions", zap.Error(err))
		return []string{}
	}
	return granted
}

// LastSync returns the persisted last successful sync time.
func (e *Engine) LastSync() time.Time {
	last, err := e.store.LastSync()
	if err != nil {
		e.logger.Warn("failed to read last-sync timestamp", zap.Error(err))
		return time.Time{}
	}
	return last
}

// OpenPlatformSettings deep-links into the platform's health settings so
// the user can remediate denied permissions.
func (e *Engine) OpenPlatformSettings(ctx context.Context) error {
	return e.settings.OpenSettings(ctx)
}

// Reset clears the persisted grant set and setup flag (explicit
// reset/logout).
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.ClearGranted(); err != nil {
		return err
	}
	if err := e.store.SetSetupCompleted(false); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
	e.logger.Info("permission state reset")
	return nil
}

// Capability returns the capability observed at initialization.
func (e *Engine) Capability() domain.PlatformCapability {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capability
}

// Platform returns which adapter the engine is driving.
func (e *Engine) Platform() domain.Platform {
	return e.adapter.Platform()
}

// Close tears the engine down and releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) anyGrantedLocked() bool {
	granted, err := e.store.GrantedIDs()
	if err != nil {
		return false
	}
	return len(granted) > 0
}
