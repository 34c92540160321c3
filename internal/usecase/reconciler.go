// Package usecase contains application business logic: permission
// reconciliation, sync orchestration, and readiness derivation.
package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lumohealth/healthsyncd/internal/catalog"
	"github.com/lumohealth/healthsyncd/internal/domain"
)

// registrationReadWindow is how far back the best-effort registration
// read looks. Reading any recent window is enough for the platform to
// register the app as an active consumer of the type.
const registrationReadWindow = 24 * time.Hour

// ReconcilerImpl implements domain.Reconciler.
//
// Concurrent callers requesting the same id set share one in-flight
// reconciliation, so at most one native permission dialog is ever shown.
// The in-flight handle is cleared when the call settles - success or
// failure - so a stuck call cannot wedge future requests.
type ReconcilerImpl struct {
	adapter domain.PlatformAdapter
	catalog *catalog.Catalog
	store   domain.StateStore
	logger  *zap.Logger
	flight  singleflight.Group
	sleep   func(time.Duration)
}

// NewReconciler creates a permission reconciler.
func NewReconciler(
	adapter domain.PlatformAdapter,
	cat *catalog.Catalog,
	store domain.StateStore,
	logger *zap.Logger,
) *ReconcilerImpl {
	return &ReconcilerImpl{
		adapter: adapter,
		catalog: cat,
		store:   store,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// NewReconcilerWithSleep creates a reconciler with an injectable settle
// sleep (for testing).
func NewReconcilerWithSleep(
	adapter domain.PlatformAdapter,
	cat *catalog.Catalog,
	store domain.StateStore,
	logger *zap.Logger,
	sleep func(time.Duration),
) *ReconcilerImpl {
	r := NewReconciler(adapter, cat, store, logger)
	r.sleep = sleep
	return r
}

// RequestPermissions reconciles the requested ids against the platform.
// The returned Granted and Denied always partition the requested ids.
func (r *ReconcilerImpl) RequestPermissions(ctx context.Context, ids []string) (domain.GrantResult, error) {
	if len(ids) == 0 {
		return domain.GrantResult{Success: true, Granted: []string{}, Denied: []string{}}, nil
	}

	v, err, _ := r.flight.Do(requestSignature(ids), func() (interface{}, error) {
		return r.reconcile(ctx, ids), nil
	})
	if err != nil {
		// Cannot happen - reconcile never returns an error - but a
		// well-formed result is still owed to the caller.
		return domain.GrantResult{Success: false, Granted: []string{}, Denied: append([]string{}, ids...)}, nil
	}
	return v.(domain.GrantResult), nil
}

// IsPermissionGranted checks the persisted grant set.
func (r *ReconcilerImpl) IsPermissionGranted(id string) bool {
	granted, err := r.store.GrantedIDs()
	if err != nil {
		r.logger.Warn("failed to read granted permissions", zap.Error(err))
		return false
	}
	for _, g := range granted {
		if g == id {
			return true
		}
	}
	return false
}

// reconcile runs the full algorithm. All native failures are absorbed
// into the result; nothing escapes as an error.
func (r *ReconcilerImpl) reconcile(ctx context.Context, ids []string) domain.GrantResult {
	// Pre-capability check: an unavailable platform denies everything
	// without touching native APIs.
	capability := r.adapter.ProbeCapability(ctx)
	if !capability.Available {
		r.logger.Info("permission request denied, platform unavailable",
			zap.Bool("has_provider", capability.HasProvider),
			zap.Bool("enrolled", capability.Enrolled))
		return partition(ids, nil)
	}

	persisted, err := r.store.GrantedIDs()
	if err != nil {
		r.logger.Warn("failed to read persisted grants", zap.Error(err))
		persisted = nil
	}
	persistedSet := toSet(persisted)

	// Short-circuit: everything already granted, no new native dialog.
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := persistedSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return partition(ids, persistedSet)
	}

	// Unknown ids can never be granted; request only what the catalog
	// can map to native types.
	requestable := make([]string, 0, len(missing))
	nativeTypes := make([]string, 0, len(missing))
	for _, id := range missing {
		native, err := r.catalog.NativeType(r.adapter.Platform(), id)
		if err != nil {
			r.logger.Warn("requested permission not in catalog", zap.String("id", id))
			continue
		}
		requestable = append(requestable, id)
		nativeTypes = append(nativeTypes, native)
	}

	newlyGranted := r.requestFromPlatform(ctx, requestable, nativeTypes)

	if len(newlyGranted) > 0 {
		if err := r.store.AddGranted(newlyGranted); err != nil {
			r.logger.Error("failed to persist granted permissions", zap.Error(err))
		}
		r.registrationReads(ctx, newlyGranted)
	}
	if err := r.store.SetSetupCompleted(true); err != nil {
		r.logger.Warn("failed to persist setup flag", zap.Error(err))
	}

	grantedSet := persistedSet
	for _, id := range newlyGranted {
		grantedSet[id] = struct{}{}
	}
	result := partition(ids, grantedSet)
	if len(result.Denied) > 0 {
		r.logger.Info("permissions remain denied after reconciliation",
			zap.Strings("denied", result.Denied))
	}
	return result
}

// requestFromPlatform issues the native request and resolves which ids
// were actually granted, branching on the platform's semantics.
func (r *ReconcilerImpl) requestFromPlatform(ctx context.Context, ids []string, nativeTypes []string) []string {
	if len(ids) == 0 {
		return nil
	}

	semantics := r.adapter.Semantics()

	// Snapshot-before: best effort, empty when unsupported.
	before := r.queryGrantedIDs(ctx)

	_, err := r.adapter.RequestPermissions(ctx, nativeTypes)
	if err != nil {
		// Native call threw: zero newly granted ids, not a fatal error.
		r.logger.Warn("native permission request failed", zap.Error(err))
		return nil
	}

	if !semantics.ReportsPerItemGrants {
		// The platform reports nothing per item. The request completed
		// without error, so the whole requested set is optimistically
		// marked granted. Deliberate product trade-off, not a guarantee.
		return append([]string{}, ids...)
	}

	// The direct return value may be empty even when grants succeeded.
	// Trust the state, not the call: wait for permission state to
	// settle, re-query, and diff against the before snapshot.
	if semantics.SettleDelay > 0 {
		r.sleep(semantics.SettleDelay)
	}
	after := r.queryGrantedIDs(ctx)

	granted := make([]string, 0, len(ids))
	for _, id := range ids {
		_, grantedNow := after[id]
		_, grantedBefore := before[id]
		if grantedNow || grantedBefore {
			granted = append(granted, id)
		}
	}
	return granted
}

// queryGrantedIDs maps the platform's granted native types back to
// catalog ids. Failures and unknown types resolve to an empty set.
func (r *ReconcilerImpl) queryGrantedIDs(ctx context.Context) map[string]struct{} {
	types, err := r.adapter.QueryGrantedTypes(ctx)
	if err != nil {
		r.logger.Warn("grant query failed", zap.Error(err))
		return map[string]struct{}{}
	}

	ids := make(map[string]struct{}, len(types))
	for _, t := range types {
		if id, ok := r.catalog.IDForNativeType(r.adapter.Platform(), t); ok {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// registrationReads performs one best-effort recent read per newly
// granted id so the platform registers the app as an active consumer.
// Read failures are swallowed; this is a registration nicety.
func (r *ReconcilerImpl) registrationReads(ctx context.Context, ids []string) {
	if !r.adapter.Semantics().WantsRegistrationRead {
		return
	}

	to := time.Now()
	from := to.Add(-registrationReadWindow)
	for _, id := range ids {
		native, err := r.catalog.NativeType(r.adapter.Platform(), id)
		if err != nil {
			continue
		}
		if _, err := r.adapter.ReadRecords(ctx, native, from, to); err != nil {
			r.logger.Debug("registration read failed",
				zap.String("id", id),
				zap.Error(err))
		}
	}
}

// partition splits ids into granted/denied against the granted set,
// preserving request order. Granted and denied are always disjoint and
// cover the whole request.
func partition(ids []string, granted map[string]struct{}) domain.GrantResult {
	result := domain.GrantResult{
		Granted: make([]string, 0, len(ids)),
		Denied:  make([]string, 0, len(ids)),
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := granted[id]; ok {
			result.Granted = append(result.Granted, id)
		} else {
			result.Denied = append(result.Denied, id)
		}
	}
	result.Success = len(result.Granted) > 0
	return result
}

// requestSignature keys the single-flight group: the same id set, in any
// order, shares one in-flight reconciliation.
func requestSignature(ids []string) string {
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Ensure ReconcilerImpl implements domain.Reconciler.
var _ domain.Reconciler = (*ReconcilerImpl)(nil)
