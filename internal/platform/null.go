package platform

import (
	"context"
	"time"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// NullAdapter is the adapter for "capability absent". Every probe reports
// unavailable and every query returns an empty set; nothing ever errors.
// Callers never need to check which platform they are on before calling.
type NullAdapter struct{}

// NewNullAdapter creates the null-object adapter.
func NewNullAdapter() *NullAdapter {
	return &NullAdapter{}
}

func (a *NullAdapter) Platform() domain.Platform {
	return domain.PlatformNone
}

func (a *NullAdapter) Semantics() domain.PlatformSemantics {
	return domain.PlatformSemantics{}
}

func (a *NullAdapter) ProbeCapability(ctx context.Context) domain.PlatformCapability {
	return domain.PlatformCapability{}
}

func (a *NullAdapter) RequestPermissions(ctx context.Context, nativeTypes []string) ([]string, error) {
	return []string{}, nil
}

func (a *NullAdapter) QueryGrantedTypes(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

func (a *NullAdapter) ReadRecords(ctx context.Context, nativeType string, from, to time.Time) ([]domain.Record, error) {
	return []domain.Record{}, nil
}

// Ensure NullAdapter implements domain.PlatformAdapter.
var _ domain.PlatformAdapter = (*NullAdapter)(nil)
