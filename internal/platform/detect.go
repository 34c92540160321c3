package platform

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// DetectOptions controls adapter selection.
type DetectOptions struct {
	// Override forces a platform regardless of discovery ("healthkit",
	// "healthconnect", "none"). Empty means auto-detect.
	Override domain.Platform
	// HealthKitBridge and HealthConnectBridge are the bridge binary
	// names or paths. Empty selects the defaults.
	HealthKitBridge     string
	HealthConnectBridge string
	// SettleDelay overrides the Health Connect settle delay.
	SettleDelay time.Duration
	// GOOS overrides the runtime OS (for testing).
	GOOS string
}

// Detect selects exactly one adapter at startup. A platform whose bridge
// binary cannot be resolved yields the null adapter - the engine never
// presence-checks native methods at call time.
func Detect(opts DetectOptions, locator BinaryLocator, logger *zap.Logger) domain.PlatformAdapter {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	hkBridge := opts.HealthKitBridge
	if hkBridge == "" {
		hkBridge = DefaultHealthKitBridge
	}
	hcBridge := opts.HealthConnectBridge
	if hcBridge == "" {
		hcBridge = DefaultHealthConnectBridge
	}

	switch opts.Override {
	case domain.PlatformHealthKit:
		return healthKitOrNull(hkBridge, locator, logger)
	case domain.PlatformHealthConnect:
		return healthConnectOrNull(hcBridge, opts.SettleDelay, locator, logger)
	case domain.PlatformNone:
		return NewNullAdapter()
	}

	if goos == "darwin" {
		return healthKitOrNull(hkBridge, locator, logger)
	}

	// Everything else: Health Connect if its bridge resolves.
	return healthConnectOrNull(hcBridge, opts.SettleDelay, locator, logger)
}

func healthKitOrNull(bridge string, locator BinaryLocator, logger *zap.Logger) domain.PlatformAdapter {
	path, err := locator.LookPath(bridge)
	if err != nil {
		logger.Info("healthkit bridge not found, health platform disabled",
			zap.String("bridge", bridge))
		return NewNullAdapter()
	}
	return NewHealthKitAdapter(path, logger)
}

func healthConnectOrNull(bridge string, settle time.Duration, locator BinaryLocator, logger *zap.Logger) domain.PlatformAdapter {
	path, err := locator.LookPath(bridge)
	if err != nil {
		logger.Info("health connect bridge not found, health platform disabled",
			zap.String("bridge", bridge))
		return NewNullAdapter()
	}
	return NewHealthConnectAdapter(path, settle, logger)
}
