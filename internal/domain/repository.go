package domain

import (
	"context"
	"time"
)

// PlatformAdapter is the uniform contract over one native health platform.
// Exactly one concrete implementation is selected by the platform
// discriminator at startup; absence of a capability resolves to the
// null-object adapter, never to presence-checking at call time.
type PlatformAdapter interface {
	// Platform identifies which native platform this adapter drives.
	Platform() Platform

	// Semantics describes the platform's behavioral quirks.
	Semantics() PlatformSemantics

	// ProbeCapability checks hardware/provider presence and enrollment.
	// Never returns an error; an unreachable platform is an unavailable
	// capability, not a failure.
	ProbeCapability(ctx context.Context) PlatformCapability

	// RequestPermissions issues the native permission dialog for the
	// given native types. The returned type list is the platform's
	// direct answer and must not be trusted on platforms whose
	// semantics say otherwise.
	RequestPermissions(ctx context.Context, nativeTypes []string) ([]string, error)

	// QueryGrantedTypes returns the native types currently granted.
	// Platforms that cannot report grants return an empty set, not an
	// error.
	QueryGrantedTypes(ctx context.Context) ([]string, error)

	// ReadRecords fetches raw samples for one native type over a window.
	ReadRecords(ctx context.Context, nativeType string, from, to time.Time) ([]Record, error)
}

// StateStore is the durable key-value state surviving process restarts.
// Written only by its owning components: the reconciler owns the granted
// set and setup flag, the sync orchestrator owns the snapshot baseline
// and last-sync timestamp.
type StateStore interface {
	// GrantedIDs returns the persisted granted permission ids in the
	// order they were first granted.
	GrantedIDs() ([]string, error)

	// AddGranted merges ids into the persisted granted set.
	AddGranted(ids []string) error

	// ClearGranted removes all persisted grants (capability loss,
	// explicit reset).
	ClearGranted() error

	// SetSetupCompleted records that permission setup ran at least once.
	SetSetupCompleted(done bool) error

	// SetupCompleted reports whether setup ever completed.
	SetupCompleted() (bool, error)

	// SaveSnapshot replaces the last-known-good baseline snapshot.
	SaveSnapshot(snap *HealthSnapshot) error

	// LatestSnapshot returns the baseline snapshot, or nil if none.
	LatestSnapshot() (*HealthSnapshot, error)

	// SetLastSync records when the last successful sync completed.
	SetLastSync(t time.Time) error

	// LastSync returns the last successful sync time (zero if never).
	LastSync() (time.Time, error)

	// Close releases the underlying database connection.
	Close() error
}

// KeyProvider abstracts the source of the state store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// SettingsOpener deep-links into the platform's health settings surface
// so a user can remediate denied permissions.
type SettingsOpener interface {
	// OpenSettings tries each targeted deep link in order and falls
	// back to the generic OS settings when none resolve.
	OpenSettings(ctx context.Context) error
}

// Reconciler orchestrates permission requests against the active adapter.
type Reconciler interface {
	// RequestPermissions reconciles the requested ids against the
	// platform and the persisted grant set. The result's Granted and
	// Denied always partition the requested ids.
	RequestPermissions(ctx context.Context, ids []string) (GrantResult, error)

	// IsPermissionGranted checks the persisted grant set.
	IsPermissionGranted(id string) bool
}

// Syncer fetches metric snapshots under cooldown and fallback rules.
type Syncer interface {
	// Sync runs one sync cycle. When forced is false the cooldown gate
	// may serve the cached previous result without touching the
	// platform.
	Sync(ctx context.Context, forced bool) SyncResult
}
