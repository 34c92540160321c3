package platform

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// fakeRunner implements CommandRunner with canned per-subcommand output.
type fakeRunner struct {
	outputs map[string][]byte // keyed by first arg (subcommand)
	errs    map[string]error
	runErrs map[string]error
	calls   []string
}

func (f *fakeRunner) key(name string, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return name
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	k := f.key(name, args)
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if err, ok := f.runErrs[k]; ok {
		return err
	}
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	k := f.key(name, args)
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if err, ok := f.errs[k]; ok {
		return nil, err
	}
	return f.outputs[k], nil
}

// fakeProbe implements ServiceProbe.
type fakeProbe struct {
	running bool
}

func (f *fakeProbe) IsServiceRunning(pattern string) bool {
	return f.running
}

// fakeLocator implements BinaryLocator.
type fakeLocator struct {
	known map[string]string
}

func (f *fakeLocator) LookPath(name string) (string, error) {
	if path, ok := f.known[name]; ok {
		return path, nil
	}
	return "", errors.New("executable file not found")
}

func TestHealthKitProbeAvailable(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{
		"probe": []byte(`{"hasProvider":true,"enrolled":true}`),
	}}
	a := NewHealthKitAdapterWithDeps("/usr/local/bin/healthkit-bridge", runner, &fakeProbe{}, zap.NewNop())

	capability := a.ProbeCapability(context.Background())
	assert.True(t, capability.HasProvider)
	assert.True(t, capability.Enrolled)
	assert.True(t, capability.Available)
}

func TestHealthKitProbeFallsBackToProcessTable(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"probe": errors.New("bridge crashed")}}
	a := NewHealthKitAdapterWithDeps("/usr/local/bin/healthkit-bridge", runner, &fakeProbe{running: true}, zap.NewNop())

	capability := a.ProbeCapability(context.Background())
	assert.True(t, capability.Available)

	a = NewHealthKitAdapterWithDeps("/usr/local/bin/healthkit-bridge", runner, &fakeProbe{running: false}, zap.NewNop())
	capability = a.ProbeCapability(context.Background())
	assert.False(t, capability.Available)
}

func TestHealthKitEmptyBridgePathUnavailable(t *testing.T) {
	a := NewHealthKitAdapterWithDeps("", &fakeRunner{}, &fakeProbe{running: true}, zap.NewNop())

	capability := a.ProbeCapability(context.Background())
	assert.False(t, capability.HasProvider)
	assert.False(t, capability.Available)
}

func TestHealthKitGrantQueryUnsupported(t *testing.T) {
	a := NewHealthKitAdapterWithDeps("/bin/hk", &fakeRunner{}, &fakeProbe{}, zap.NewNop())

	types, err := a.QueryGrantedTypes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestHealthKitRequestReportsOnlyErrors(t *testing.T) {
	runner := &fakeRunner{}
	a := NewHealthKitAdapterWithDeps("/bin/hk", runner, &fakeProbe{}, zap.NewNop())

	direct, err := a.RequestPermissions(context.Background(), []string{"HKQuantityTypeIdentifierStepCount"})
	require.NoError(t, err)
	assert.Empty(t, direct)

	runner.runErrs = map[string]error{"request": errors.New("dialog dismissed")}
	_, err = a.RequestPermissions(context.Background(), []string{"HKQuantityTypeIdentifierStepCount"})
	assert.Error(t, err)
}

func TestHealthConnectRequestToleratesMalformedPayload(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{"request": []byte("not json")}}
	a := NewHealthConnectAdapterWithDeps("/bin/hc", 0, runner, &fakeProbe{}, zap.NewNop())

	direct, err := a.RequestPermissions(context.Background(), []string{"android.permission.health.READ_STEPS"})
	require.NoError(t, err)
	assert.Empty(t, direct)
}

func TestHealthConnectGrantQuery(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{
		"granted": []byte(`{"types":["android.permission.health.READ_STEPS","android.permission.health.READ_SLEEP"]}`),
	}}
	a := NewHealthConnectAdapterWithDeps("/bin/hc", 0, runner, &fakeProbe{}, zap.NewNop())

	types, err := a.QueryGrantedTypes(context.Background())
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

func TestHealthConnectReadRecords(t *testing.T) {
	runner := &fakeRunner{outputs: map[string][]byte{
		"read": []byte(`{"records":[{"value":4211,"recordedAt":"2026-08-30T09:00:00Z"}]}`),
	}}
	a := NewHealthConnectAdapterWithDeps("/bin/hc", 0, runner, &fakeProbe{}, zap.NewNop())

	records, err := a.ReadRecords(context.Background(), "android.permission.health.READ_STEPS",
		time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(4211), records[0].Value)
}

func TestHealthConnectSemantics(t *testing.T) {
	a := NewHealthConnectAdapterWithDeps("/bin/hc", 0, &fakeRunner{}, &fakeProbe{}, zap.NewNop())

	sem := a.Semantics()
	assert.True(t, sem.ReportsPerItemGrants)
	assert.True(t, sem.WantsRegistrationRead)
	assert.Equal(t, DefaultSettleDelay, sem.SettleDelay)
}

func TestNullAdapterNeverErrors(t *testing.T) {
	a := NewNullAdapter()
	ctx := context.Background()

	capability := a.ProbeCapability(ctx)
	assert.False(t, capability.Available)

	direct, err := a.RequestPermissions(ctx, []string{"anything"})
	require.NoError(t, err)
	assert.Empty(t, direct)

	types, err := a.QueryGrantedTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, types)

	records, err := a.ReadRecords(ctx, "anything", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDetectFallsBackToNull(t *testing.T) {
	a := Detect(DetectOptions{GOOS: "darwin"}, &fakeLocator{}, zap.NewNop())
	assert.Equal(t, domain.PlatformNone, a.Platform())
}

func TestDetectDarwinPicksHealthKit(t *testing.T) {
	locator := &fakeLocator{known: map[string]string{
		DefaultHealthKitBridge: "/usr/local/bin/healthkit-bridge",
	}}
	a := Detect(DetectOptions{GOOS: "darwin"}, locator, zap.NewNop())
	assert.Equal(t, domain.PlatformHealthKit, a.Platform())
}

func TestDetectOverrideWins(t *testing.T) {
	locator := &fakeLocator{known: map[string]string{
		DefaultHealthKitBridge:     "/usr/local/bin/healthkit-bridge",
		DefaultHealthConnectBridge: "/usr/bin/healthconnect-bridge",
	}}
	a := Detect(DetectOptions{GOOS: "darwin", Override: domain.PlatformHealthConnect}, locator, zap.NewNop())
	assert.Equal(t, domain.PlatformHealthConnect, a.Platform())

	a = Detect(DetectOptions{GOOS: "darwin", Override: domain.PlatformNone}, locator, zap.NewNop())
	assert.Equal(t, domain.PlatformNone, a.Platform())
}

func TestSettingsChainStopsAtFirstSuccess(t *testing.T) {
	runner := &fakeRunner{}
	l := NewSettingsLauncherWithRunner(domain.PlatformHealthKit, runner, zap.NewNop())

	require.NoError(t, l.OpenSettings(context.Background()))
	assert.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "x-apple-health://")
}

func TestSettingsChainFallsThrough(t *testing.T) {
	runner := &fakeRunner{runErrs: map[string]error{
		"x-apple-health://": errors.New("no handler"),
	}}
	l := NewSettingsLauncherWithRunner(domain.PlatformHealthKit, runner, zap.NewNop())

	require.NoError(t, l.OpenSettings(context.Background()))
	assert.Len(t, runner.calls, 2)
}

func TestSettingsChainExhausted(t *testing.T) {
	runner := &fakeRunner{runErrs: map[string]error{
		"x-apple-health://": errors.New("no handler"),
		"-b":                errors.New("no handler"),
	}}
	l := NewSettingsLauncherWithRunner(domain.PlatformHealthKit, runner, zap.NewNop())

	assert.Error(t, l.OpenSettings(context.Background()))
}
