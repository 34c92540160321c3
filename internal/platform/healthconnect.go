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
	// DefaultHealthConnectBridge is the bridge binary looked up on PATH.
	DefaultHealthConnectBridge = "healthconnect-bridge"

	// healthConnectBrokerProcess is the Health Connect provider package.
	healthConnectBrokerProcess = "com.google.android.apps.healthdata"

	// DefaultSettleDelay is how long permission state takes to settle
	// after the request dialog closes before a re-query is trustworthy.
	DefaultSettleDelay = 300 * time.Millisecond
)

// HealthConnectAdapter drives Health Connect through a native bridge
// binary.
//
// Health Connect can be queried for granted permissions, but the request
// call itself may return an empty result even when grants succeeded. The
// reconciler therefore diffs before/after grant snapshots instead of
// trusting the direct answer from RequestPermissions.
type HealthConnectAdapter struct {
	bridgePath   string
	settleDelay  time.Duration
	runner       CommandRunner
	serviceProbe ServiceProbe
	logger       *zap.Logger
}

// NewHealthConnectAdapter creates a Health Connect adapter using the
// real runner.
func NewHealthConnectAdapter(bridgePath string, settleDelay time.Duration, logger *zap.Logger) *HealthConnectAdapter {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &HealthConnectAdapter{
		bridgePath:   bridgePath,
		settleDelay:  settleDelay,
		runner:       &RealCommandRunner{},
		serviceProbe: NewServiceProbe(),
		logger:       logger,
	}
}

// NewHealthConnectAdapterWithDeps creates an adapter with injectable
// dependencies (for testing).
func NewHealthConnectAdapterWithDeps(bridgePath string, settleDelay time.Duration, runner CommandRunner, probe ServiceProbe, logger *zap.Logger) *HealthConnectAdapter {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &HealthConnectAdapter{
		bridgePath:   bridgePath,
		settleDelay:  settleDelay,
		runner:       runner,
		serviceProbe: probe,
		logger:       logger,
	}
}

func (a *HealthConnectAdapter) Platform() domain.Platform {
	return domain.PlatformHealthConnect
}

func (a *HealthConnectAdapter) Semantics() domain.PlatformSemantics {
	return domain.PlatformSemantics{
		ReportsPerItemGrants:  true,
		SettleDelay:           a.settleDelay,
		WantsRegistrationRead: true,
	}
}

// ProbeCapability checks bridge reachability and provider availability.
func (a *HealthConnectAdapter) ProbeCapability(ctx context.Context) domain.PlatformCapability {
	if a.bridgePath == "" {
		return domain.PlatformCapability{}
	}

	capability := domain.PlatformCapability{HasProvider: true}

	out, err := a.runner.Output(ctx, a.bridgePath, "probe")
	if err != nil {
		capability.Enrolled = a.serviceProbe.IsServiceRunning(healthConnectBrokerProcess)
		a.logger.Warn("health connect probe failed, using process-table fallback",
			zap.Bool("provider_running", capability.Enrolled),
			zap.Error(err))
	} else {
		var p probePayload
		if jsonErr := json.Unmarshal(out, &p); jsonErr != nil {
			a.logger.Warn("health connect probe returned malformed payload", zap.Error(jsonErr))
		} else {
			capability.HasProvider = p.HasProvider
			capability.Enrolled = p.Enrolled
		}
	}

	capability.Available = capability.HasProvider && capability.Enrolled
	return capability
}

// RequestPermissions launches the Health Connect permission flow. The
// returned list is whatever the bridge reports as directly granted and
// may be empty even when grants succeeded.
func (a *HealthConnectAdapter) RequestPermissions(ctx context.Context, nativeTypes []string) ([]string, error) {
	out, err := a.runner.Output(ctx, a.bridgePath, "request", "--types", strings.Join(nativeTypes, ","))
	if err != nil {
		return nil, fmt.Errorf("health connect permission request failed: %w", err)
	}

	var payload typesPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		// An unparseable direct answer is treated like an empty one;
		// the after-snapshot diff is authoritative anyway.
		a.logger.Warn("health connect request returned malformed payload", zap.Error(err))
		return []string{}, nil
	}
	return payload.Types, nil
}

// QueryGrantedTypes returns all currently granted Health Connect
// permissions.
func (a *HealthConnectAdapter) QueryGrantedTypes(ctx context.Context) ([]string, error) {
	out, err := a.runner.Output(ctx, a.bridgePath, "granted")
	if err != nil {
		return nil, fmt.Errorf("health connect grant query failed: %w", err)
	}

	var payload typesPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("health connect grant query returned malformed payload: %w", err)
	}
	return payload.Types, nil
}

// ReadRecords fetches raw samples for one Health Connect record type.
func (a *HealthConnectAdapter) ReadRecords(ctx context.Context, nativeType string, from, to time.Time) ([]domain.Record, error) {
	out, err := a.runner.Output(ctx, a.bridgePath, "read",
		"--type", nativeType,
		"--from", from.Format(time.RFC3339),
		"--to", to.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("health connect read failed for %s: %w", nativeType, err)
	}

	var payload recordsPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("health connect read returned malformed payload: %w", err)
	}

	records := make([]domain.Record, len(payload.Records))
	for i, r := range payload.Records {
		records[i] = domain.Record{Value: r.Value, RecordedAt: r.RecordedAt}
	}
	return records, nil
}

// Ensure HealthConnectAdapter implements domain.PlatformAdapter.
var _ domain.PlatformAdapter = (*HealthConnectAdapter)(nil)
