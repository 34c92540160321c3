// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Platform identifies the native health platform backing the adapter.
type Platform string

const (
	PlatformHealthKit     Platform = "healthkit"
	PlatformHealthConnect Platform = "healthconnect"
	PlatformNone          Platform = "none"
)

// MetricCategory groups permission descriptors for display and defaults.
type MetricCategory string

const (
	CategoryActivity MetricCategory = "activity"
	CategoryVitals   MetricCategory = "vitals"
	CategorySleep    MetricCategory = "sleep"
	CategoryBody     MetricCategory = "body"
)

// AggregationKind describes how raw records collapse into one snapshot value.
type AggregationKind string

const (
	// AggregateSum totals all records in the window (steps, distance).
	AggregateSum AggregationKind = "sum"
	// AggregateLatest takes the most recent sample (heart rate, weight).
	AggregateLatest AggregationKind = "latest"
)

// PermissionDescriptor is an immutable catalog entry for one requestable
// health metric permission.
type PermissionDescriptor struct {
	ID        string
	Category  MetricCategory
	Required  bool
	Label     string
	Aggregate AggregationKind
}

// PlatformCapability is the result of probing the native platform.
// Probed fresh each session; never persisted as truth - only used to
// validate persisted grants.
type PlatformCapability struct {
	// HasProvider reports whether the platform module/hardware exists at all.
	HasProvider bool
	// Enrolled reports whether the platform is set up for the current user.
	Enrolled bool
	// Available is the combined signal consumers should act on.
	Available bool
}

// GrantResult is the outcome of a permission reconciliation.
// Invariant: Granted and Denied partition the requested set.
type GrantResult struct {
	Success bool
	Granted []string
	Denied  []string
}

// Record is a single raw sample returned by the native platform.
type Record struct {
	Value      float64
	RecordedAt time.Time
}

// HealthSnapshot maps metric id to its aggregated value at a point in time.
type HealthSnapshot struct {
	Metrics    map[string]float64
	CapturedAt time.Time
}

// Meaningful reports whether the snapshot carries at least one known
// non-zero metric. Empty or all-zero snapshots must never replace a
// previously good baseline.
func (s *HealthSnapshot) Meaningful() bool {
	if s == nil {
		return false
	}
	for _, v := range s.Metrics {
		if v != 0 {
			return true
		}
	}
	return false
}

// SyncResult is the outcome of one sync cycle.
type SyncResult struct {
	Success bool
	RunID   string
	Data    *HealthSnapshot
	Err     error
	// LastSync is when the snapshot being served was captured.
	LastSync time.Time
	// FromCache is set when the cooldown gate returned the previous result.
	FromCache bool
	// Fallback is set when a stale baseline was served instead of an
	// empty fresh snapshot.
	Fallback bool
}

// ReadinessState summarizes permission/data/error conditions for the UI.
type ReadinessState string

const (
	ReadinessLoading           ReadinessState = "loading"
	ReadinessWaitingPermission ReadinessState = "waiting-permission"
	ReadinessReady             ReadinessState = "ready"
	ReadinessEmpty             ReadinessState = "empty"
	ReadinessError             ReadinessState = "error"
)

// PlatformSemantics captures the behavioral quirks of a native platform
// that the reconciler must branch on.
type PlatformSemantics struct {
	// ReportsPerItemGrants is true when the platform can be queried for
	// the currently granted types. When false, a request call that
	// completes without error optimistically marks the whole requested
	// set as granted.
	ReportsPerItemGrants bool
	// SettleDelay is how long to wait after a request call before the
	// after-snapshot query, on platforms whose direct return value is
	// not trustworthy.
	SettleDelay time.Duration
	// WantsRegistrationRead is true when newly granted types should get
	// a best-effort recent read so the platform registers the app as an
	// active consumer.
	WantsRegistrationRead bool
}
