package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// mockEngine implements SyncEngine with call counting.
type mockEngine struct {
	mu      sync.Mutex
	granted []string
	syncs   int
	forced  []bool
}

func (m *mockEngine) Sync(ctx context.Context, forced bool) domain.SyncResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	m.forced = append(m.forced, forced)
	return domain.SyncResult{Success: true, Data: &domain.HealthSnapshot{
		Metrics: map[string]float64{"steps": 100},
	}}
}

func (m *mockEngine) GrantedPermissions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

func (m *mockEngine) ReadinessState() domain.ReadinessState {
	return domain.ReadinessReady
}

func (m *mockEngine) syncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	engine := &mockEngine{granted: []string{"steps"}}
	s := NewScheduler(SchedulerConfig{SyncInterval: 20 * time.Millisecond}, engine, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(75 * time.Millisecond)
	cancel()
	err := <-done

	assert.ErrorIs(t, err, context.Canceled)
	// Startup sync plus at least two ticks.
	assert.GreaterOrEqual(t, engine.syncCount(), 3)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	for _, forced := range engine.forced {
		assert.False(t, forced, "scheduled syncs are never forced")
	}
}

func TestSchedulerSkipsWithoutPermissions(t *testing.T) {
	engine := &mockEngine{}
	s := NewScheduler(SchedulerConfig{SyncInterval: 10 * time.Millisecond}, engine, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(45 * time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, engine.syncCount(), "no native work without granted permissions")
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	engine := &mockEngine{granted: []string{"steps"}}
	s := NewScheduler(SchedulerConfig{SyncInterval: time.Hour}, engine, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
