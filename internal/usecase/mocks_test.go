package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// mockAdapter implements domain.PlatformAdapter with call counting.
type mockAdapter struct {
	mu sync.Mutex

	platform   domain.Platform
	semantics  domain.PlatformSemantics
	capability domain.PlatformCapability

	// grantedSequence holds the native type sets returned by successive
	// QueryGrantedTypes calls (before-snapshot, after-snapshot, ...).
	// The last entry repeats once exhausted.
	grantedSequence [][]string
	queryCalls      int

	requestErr   error
	requestDelay time.Duration
	requestCalls int

	records   map[string][]domain.Record
	readErr   error
	readCalls int

	probeCalls int
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		platform:   domain.PlatformHealthConnect,
		capability: domain.PlatformCapability{HasProvider: true, Enrolled: true, Available: true},
		semantics: domain.PlatformSemantics{
			ReportsPerItemGrants:  true,
			SettleDelay:           0,
			WantsRegistrationRead: false,
		},
	}
}

func (m *mockAdapter) Platform() domain.Platform {
	return m.platform
}

func (m *mockAdapter) Semantics() domain.PlatformSemantics {
	return m.semantics
}

func (m *mockAdapter) ProbeCapability(ctx context.Context) domain.PlatformCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeCalls++
	return m.capability
}

func (m *mockAdapter) RequestPermissions(ctx context.Context, nativeTypes []string) ([]string, error) {
	m.mu.Lock()
	m.requestCalls++
	delay := m.requestDelay
	err := m.requestErr
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return []string{}, nil
}

func (m *mockAdapter) QueryGrantedTypes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.grantedSequence) == 0 {
		m.queryCalls++
		return []string{}, nil
	}
	idx := m.queryCalls
	if idx >= len(m.grantedSequence) {
		idx = len(m.grantedSequence) - 1
	}
	m.queryCalls++
	return m.grantedSequence[idx], nil
}

func (m *mockAdapter) ReadRecords(ctx context.Context, nativeType string, from, to time.Time) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.records[nativeType], nil
}

func (m *mockAdapter) counts() (probe, request, query, read int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCalls, m.requestCalls, m.queryCalls, m.readCalls
}

// mockStore implements domain.StateStore in memory.
type mockStore struct {
	mu       sync.Mutex
	granted  []string
	setup    bool
	snapshot *domain.HealthSnapshot
	lastSync time.Time

	grantedErr error
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) GrantedIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grantedErr != nil {
		return nil, m.grantedErr
	}
	return append([]string{}, m.granted...), nil
}

func (m *mockStore) AddGranted(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]struct{}, len(m.granted))
	for _, id := range m.granted {
		existing[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			m.granted = append(m.granted, id)
			existing[id] = struct{}{}
		}
	}
	return nil
}

func (m *mockStore) ClearGranted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = nil
	return nil
}

func (m *mockStore) SetSetupCompleted(done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setup = done
	return nil
}

func (m *mockStore) SetupCompleted() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setup, nil
}

func (m *mockStore) SaveSnapshot(snap *domain.HealthSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snap
	return nil
}

func (m *mockStore) LatestSnapshot() (*domain.HealthSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *mockStore) SetLastSync(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = t
	return nil
}

func (m *mockStore) LastSync() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync, nil
}

func (m *mockStore) Close() error {
	return nil
}

// Interface guards for the mocks.
var (
	_ domain.PlatformAdapter = (*mockAdapter)(nil)
	_ domain.StateStore      = (*mockStore)(nil)
)
