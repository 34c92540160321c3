package domain

import "errors"

// Sentinel errors for the engine's failure taxonomy. Native-layer
// exceptions never cross into application code; adapters convert them
// into these or into typed results.
var (
	// ErrCapabilityUnavailable - platform/hardware absent or not
	// enrolled. Not retried.
	ErrCapabilityUnavailable = errors.New("health platform capability unavailable")

	// ErrSyncFailed - no meaningful fresh snapshot and no usable
	// fallback baseline.
	ErrSyncFailed = errors.New("sync produced no meaningful data")

	// ErrNotInitialized - the engine was used before Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrUnknownPermission - a requested id is not in the catalog.
	ErrUnknownPermission = errors.New("unknown permission id")
)
