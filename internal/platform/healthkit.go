package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

const (
	// DefaultHealthKitBridge is the bridge binary looked up on PATH.
	DefaultHealthKitBridge = "healthkit-bridge"

	// healthKitBrokerProcess is the system daemon that brokers HealthKit
	// data. Its absence from the process table means the platform is not
	// usable regardless of what the bridge claims.
	healthKitBrokerProcess = "healthd"
)

// HealthKitAdapter drives HealthKit through a native bridge binary.
//
// HealthKit never reports which read permissions were granted - neither
// the request call nor any query exposes per-item grants. The reconciler
// compensates with an optimistic whole-set grant; this adapter only
// reports whether the request call completed.
type HealthKitAdapter struct {
	bridgePath   string
	runner       CommandRunner
	serviceProbe ServiceProbe
	logger       *zap.Logger
}

// NewHealthKitAdapter creates a HealthKit adapter using the real runner.
func NewHealthKitAdapter(bridgePath string, logger *zap.Logger) *HealthKitAdapter {
	return &HealthKitAdapter{
		bridgePath:   bridgePath,
		runner:       &RealCommandRunner{},
		serviceProbe: NewServiceProbe(),
		logger:       logger,
	}
}

// NewHealthKitAdapterWithDeps creates an adapter with injectable
// dependencies (for testing).
func NewHealthKitAdapterWithDeps(bridgePath string, runner CommandRunner, probe ServiceProbe, logger *zap.Logger) *HealthKitAdapter {
	return &HealthKitAdapter{
		bridgePath:   bridgePath,
		runner:       runner,
		serviceProbe: probe,
		logger:       logger,
	}
}

func (a *HealthKitAdapter) Platform() domain.Platform {
	return domain.PlatformHealthKit
}

func (a *HealthKitAdapter) Semantics() domain.PlatformSemantics {
	return domain.PlatformSemantics{
		ReportsPerItemGrants:  false,
		SettleDelay:           0,
		WantsRegistrationRead: false,
	}
}

// ProbeCapability checks bridge reachability and enrollment. Never errors;
// an unreachable bridge degrades to the process-table signal.
func (a *HealthKitAdapter) ProbeCapability(ctx context.Context) domain.PlatformCapability {
	if a.bridgePath == "" {
		return domain.PlatformCapability{}
	}

	capability := domain.PlatformCapability{HasProvider: true}

	out, err := a.runner.Output(ctx, a.bridgePath, "probe")
	if err != nil {
		// Bridge unreachable; the broker process is the last signal left.
		capability.Enrolled = a.serviceProbe.IsServiceRunning(healthKitBrokerProcess)
		a.logger.Warn("healthkit probe failed, using process-table fallback",
			zap.Bool("broker_running", capability.Enrolled),
			zap.Error(err))
	} else {
		var p probePayload
		if jsonErr := json.Unmarshal(out, &p); jsonErr != nil {
			a.logger.Warn("healthkit probe returned malformed payload", zap.Error(jsonErr))
		} else {
			capability.HasProvider = p.HasProvider
			capability.Enrolled = p.Enrolled
		}
	}

	capability.Available = capability.HasProvider && capability.Enrolled
	return capability
}

// RequestPermissions issues the native authorization dialog. HealthKit
// returns no per-item information, so the direct answer is always empty;
// only the error matters to callers.
func (a *HealthKitAdapter) RequestPermissions(ctx context.Context, nativeTypes []string) ([]string, error) {
	if err := a.runner.Run(ctx, a.bridgePath, "request", "--types", strings.Join(nativeTypes, ",")); err != nil {
		return nil, fmt.Errorf("healthkit authorization request failed: %w", err)
	}
	return []string{}, nil
}

// QueryGrantedTypes is unsupported on HealthKit for read permissions.
// Returns an empty set, not an error.
func (a *HealthKitAdapter) QueryGrantedTypes(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

// ReadRecords fetches raw samples for one HealthKit type.
func (a *HealthKitAdapter) ReadRecords(ctx context.Context, nativeType string, from, to time.Time) ([]domain.Record, error) {
	out, err := a.runner.Output(ctx, a.bridgePath, "read",
		"--type", nativeType,
		"--from", from.Format(time.RFC3339),
		"--to", to.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("healthkit read failed for %s: %w", nativeType, err)
	}

	var payload recordsPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("healthkit read returned malformed payload: %w", err)
	}

	records := make([]domain.Record, len(payload.Records))
	for i, r := range payload.Records {
		records[i] = domain.Record{Value: r.Value, RecordedAt: r.RecordedAt}
	}
	return records, nil
}

// Ensure HealthKitAdapter implements domain.PlatformAdapter.
var _ domain.PlatformAdapter = (*HealthKitAdapter)(nil)
