package usecase

import "github.com/lumohealth/healthsyncd/internal/domain"

// ReadinessInputs are the asynchronous signals the deriver combines.
type ReadinessInputs struct {
	Initialized           bool
	AnyPermissionGranted  bool
	HasMeaningfulSnapshot bool
	Loading               bool
	LastErr               error
}

// DeriveReadiness computes the UI-facing state from its inputs. Pure
// function; owns nothing, persists nothing.
//
// Evaluation order matters: waiting-permission is checked before error
// and empty so a denied-permission state is never misreported as a
// generic failure, and a meaningful snapshot always beats a stale error.
func DeriveReadiness(in ReadinessInputs) domain.ReadinessState {
	if !in.Initialized {
		return domain.ReadinessLoading
	}
	if in.Loading && !in.AnyPermissionGranted && !in.HasMeaningfulSnapshot {
		return domain.ReadinessLoading
	}
	if !in.AnyPermissionGranted {
		return domain.ReadinessWaitingPermission
	}
	if in.HasMeaningfulSnapshot {
		return domain.ReadinessReady
	}
	if in.LastErr != nil {
		return domain.ReadinessError
	}
	return domain.ReadinessEmpty
}
