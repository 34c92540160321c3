//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/catalog"
	"github.com/lumohealth/healthsyncd/internal/domain"
	"github.com/lumohealth/healthsyncd/internal/infra"
	"github.com/lumohealth/healthsyncd/internal/usecase"
)

// scriptedAdapter is a Health Connect-like adapter whose grant state and
// records are set by the test.
type scriptedAdapter struct {
	available    bool
	grantedTypes []string
	// typesAfterRequest becomes the granted set once a request ran.
	typesAfterRequest []string
	records           map[string][]domain.Record
}

func (a *scriptedAdapter) Platform() domain.Platform {
	return domain.PlatformHealthConnect
}

func (a *scriptedAdapter) Semantics() domain.PlatformSemantics {
	return domain.PlatformSemantics{ReportsPerItemGrants: true, WantsRegistrationRead: true}
}

func (a *scriptedAdapter) ProbeCapability(ctx context.Context) domain.PlatformCapability {
	return domain.PlatformCapability{
		HasProvider: a.available,
		Enrolled:    a.available,
		Available:   a.available,
	}
}

func (a *scriptedAdapter) RequestPermissions(ctx context.Context, nativeTypes []string) ([]string, error) {
	// Health Connect may answer with an empty direct result even when
	// the grants went through.
	a.grantedTypes = a.typesAfterRequest
	return []string{}, nil
}

func (a *scriptedAdapter) QueryGrantedTypes(ctx context.Context) ([]string, error) {
	return a.grantedTypes, nil
}

func (a *scriptedAdapter) ReadRecords(ctx context.Context, nativeType string, from, to time.Time) ([]domain.Record, error) {
	return a.records[nativeType], nil
}

type noopSettings struct{}

func (noopSettings) OpenSettings(ctx context.Context) error { return nil }

var _ = Describe("Permission and Sync Engine", func() {
	const stepsNative = "android.permission.health.READ_STEPS"

	var (
		dataDir string
		key     []byte
		adapter *scriptedAdapter
		store   *infra.EncryptedStateStore
		engine  *usecase.Engine
		ctx     context.Context
	)

	newEngine := func() *usecase.Engine {
		var err error
		store, err = infra.NewEncryptedStateStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())
		return usecase.NewEngine(usecase.EngineConfig{
			Adapter:  adapter,
			Catalog:  catalog.New(),
			Store:    store,
			Settings: noopSettings{},
			Cooldown: 15 * time.Minute,
			Logger:   zap.NewNop(),
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		dataDir = GinkgoT().TempDir()

		var err error
		key, err = infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())

		adapter = &scriptedAdapter{available: true}
		engine = newEngine()
	})

	AfterEach(func() {
		Expect(engine.Close()).To(Succeed())
	})

	Describe("full grant and sync flow", func() {
		It("goes from waiting-permission to ready", func() {
			Expect(engine.Initialize(ctx)).To(Succeed())
			Expect(engine.ReadinessState()).To(Equal(domain.ReadinessWaitingPermission))

			adapter.typesAfterRequest = []string{stepsNative}
			adapter.records = map[string][]domain.Record{
				stepsNative: {{Value: 5400, RecordedAt: time.Now()}},
			}

			result, err := engine.RequestPermissions(ctx, []string{catalog.Steps, catalog.HeartRate})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Granted).To(Equal([]string{catalog.Steps}))
			Expect(result.Denied).To(Equal([]string{catalog.HeartRate}))

			syncResult := engine.Sync(ctx, true)
			Expect(syncResult.Success).To(BeTrue())
			Expect(syncResult.Data.Metrics).To(HaveKeyWithValue(catalog.Steps, 5400.0))

			Expect(engine.ReadinessState()).To(Equal(domain.ReadinessReady))
		})
	})

	Describe("state across sessions", func() {
		It("remembers grants and baseline after a restart", func() {
			Expect(engine.Initialize(ctx)).To(Succeed())

			adapter.typesAfterRequest = []string{stepsNative}
			adapter.records = map[string][]domain.Record{
				stepsNative: {{Value: 7000, RecordedAt: time.Now()}},
			}
			_, err := engine.RequestPermissions(ctx, []string{catalog.Steps})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Sync(ctx, true).Success).To(BeTrue())
			Expect(engine.Close()).To(Succeed())

			engine = newEngine()
			Expect(engine.Initialize(ctx)).To(Succeed())

			Expect(engine.IsPermissionGranted(catalog.Steps)).To(BeTrue())
			Expect(engine.ReadinessState()).To(Equal(domain.ReadinessReady))
		})

		It("clears stale grants when the platform disappears between sessions", func() {
			Expect(engine.Initialize(ctx)).To(Succeed())

			adapter.typesAfterRequest = []string{stepsNative}
			_, err := engine.RequestPermissions(ctx, []string{catalog.Steps})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.IsPermissionGranted(catalog.Steps)).To(BeTrue())
			Expect(engine.Close()).To(Succeed())

			adapter.available = false
			engine = newEngine()
			Expect(engine.Initialize(ctx)).To(Succeed())

			Expect(engine.GrantedPermissions()).To(BeEmpty())
			Expect(engine.ReadinessState()).To(Equal(domain.ReadinessWaitingPermission))
		})
	})

	Describe("empty platform responses", func() {
		It("serves the baseline instead of an empty fresh snapshot", func() {
			Expect(engine.Initialize(ctx)).To(Succeed())

			adapter.typesAfterRequest = []string{stepsNative}
			adapter.records = map[string][]domain.Record{
				stepsNative: {{Value: 9000, RecordedAt: time.Now()}},
			}
			_, err := engine.RequestPermissions(ctx, []string{catalog.Steps})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Sync(ctx, true).Success).To(BeTrue())

			// The platform goes quiet.
			adapter.records = nil

			result := engine.Sync(ctx, true)
			Expect(result.Success).To(BeTrue())
			Expect(result.Fallback).To(BeTrue())
			Expect(result.Data.Metrics).To(HaveKeyWithValue(catalog.Steps, 9000.0))
			Expect(engine.ReadinessState()).To(Equal(domain.ReadinessReady))
		})
	})
})
