// Package catalog holds the static registry of requestable health-metric
// permissions and their native type mappings.
// This is the in-memory catalog; descriptors are compiled in and immutable.
package catalog

import (
	"fmt"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// Well-known permission ids. These are the ids the rest of the engine
// and the persisted state speak; native type identifiers never leak
// past the catalog.
const (
	Steps         = "steps"
	HeartRate     = "heart_rate"
	RestingHR     = "resting_heart_rate"
	HRV           = "heart_rate_variability"
	Sleep         = "sleep"
	ActiveEnergy  = "active_energy"
	Distance      = "distance"
	Weight        = "weight"
	RespiratoryRt = "respiratory_rate"
)

// Catalog indexes permission descriptors and their per-platform native
// type mappings.
type Catalog struct {
	descriptors []domain.PermissionDescriptor
	byID        map[string]domain.PermissionDescriptor
	toNative    map[domain.Platform]map[string]string
	fromNative  map[domain.Platform]map[string]string
}

// New creates the catalog with all default descriptors.
func New() *Catalog {
	return NewWithDescriptors(defaultDescriptors(), defaultNativeTypes())
}

// NewWithDescriptors creates a catalog with custom entries (for testing).
func NewWithDescriptors(
	descriptors []domain.PermissionDescriptor,
	nativeTypes map[domain.Platform]map[string]string,
) *Catalog {
	c := &Catalog{
		descriptors: descriptors,
		byID:        make(map[string]domain.PermissionDescriptor, len(descriptors)),
		toNative:    nativeTypes,
		fromNative:  make(map[domain.Platform]map[string]string, len(nativeTypes)),
	}
	for _, d := range descriptors {
		c.byID[d.ID] = d
	}
	for platform, mapping := range nativeTypes {
		reverse := make(map[string]string, len(mapping))
		for id, native := range mapping {
			reverse[native] = id
		}
		c.fromNative[platform] = reverse
	}
	return c
}

// All returns every descriptor in registration order.
func (c *Catalog) All() []domain.PermissionDescriptor {
	out := make([]domain.PermissionDescriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// ByID returns the descriptor for an id.
func (c *Catalog) ByID(id string) (domain.PermissionDescriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Required returns ids of all descriptors marked required.
func (c *Catalog) Required() []string {
	ids := make([]string, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		if d.Required {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// IDs returns all catalog ids in registration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.descriptors))
	for i, d := range c.descriptors {
		ids[i] = d.ID
	}
	return ids
}

// NativeType maps a permission id to the platform's type identifier.
func (c *Catalog) NativeType(platform domain.Platform, id string) (string, error) {
	mapping, ok := c.toNative[platform]
	if !ok {
		return "", fmt.Errorf("no native mapping for platform %s", platform)
	}
	native, ok := mapping[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownPermission, id)
	}
	return native, nil
}

// IDForNativeType maps a platform type identifier back to a permission id.
// Unknown native types (the platform may report types we never asked for)
// resolve to ok=false, not an error.
func (c *Catalog) IDForNativeType(platform domain.Platform, nativeType string) (string, bool) {
	reverse, ok := c.fromNative[platform]
	if !ok {
		return "", false
	}
	id, ok := reverse[nativeType]
	return id, ok
}

func defaultDescriptors() []domain.PermissionDescriptor {
	return []domain.PermissionDescriptor{
		{ID: Steps, Category: domain.CategoryActivity, Required: true, Label: "Steps", Aggregate: domain.AggregateSum},
		{ID: HeartRate, Category: domain.CategoryVitals, Required: true, Label: "Heart Rate", Aggregate: domain.AggregateLatest},
		{ID: RestingHR, Category: domain.CategoryVitals, Required: false, Label: "Resting Heart Rate", Aggregate: domain.AggregateLatest},
		{ID: HRV, Category: domain.CategoryVitals, Required: false, Label: "Heart Rate Variability", Aggregate: domain.AggregateLatest},
		{ID: Sleep, Category: domain.CategorySleep, Required: true, Label: "Sleep", Aggregate: domain.AggregateSum},
		{ID: ActiveEnergy, Category: domain.CategoryActivity, Required: false, Label: "Active Energy", Aggregate: domain.AggregateSum},
		{ID: Distance, Category: domain.CategoryActivity, Required: false, Label: "Walking Distance", Aggregate: domain.AggregateSum},
		{ID: Weight, Category: domain.CategoryBody, Required: false, Label: "Weight", Aggregate: domain.AggregateLatest},
		{ID: RespiratoryRt, Category: domain.CategoryVitals, Required: false, Label: "Respiratory Rate", Aggregate: domain.AggregateLatest},
	}
}

func defaultNativeTypes() map[domain.Platform]map[string]string {
	return map[domain.Platform]map[string]string{
		domain.PlatformHealthKit: {
			Steps:         "HKQuantityTypeIdentifierStepCount",
			HeartRate:     "HKQuantityTypeIdentifierHeartRate",
			RestingHR:     "HKQuantityTypeIdentifierRestingHeartRate",
			HRV:           "HKQuantityTypeIdentifierHeartRateVariabilitySDNN",
			Sleep:         "HKCategoryTypeIdentifierSleepAnalysis",
			ActiveEnergy:  "HKQuantityTypeIdentifierActiveEnergyBurned",
			Distance:      "HKQuantityTypeIdentifierDistanceWalkingRunning",
			Weight:        "HKQuantityTypeIdentifierBodyMass",
			RespiratoryRt: "HKQuantityTypeIdentifierRespiratoryRate",
		},
		domain.PlatformHealthConnect: {
			Steps:         "android.permission.health.READ_STEPS",
			HeartRate:     "android.permission.health.READ_HEART_RATE",
			RestingHR:     "android.permission.health.READ_RESTING_HEART_RATE",
			HRV:           "android.permission.health.READ_HEART_RATE_VARIABILITY",
			Sleep:         "android.permission.health.READ_SLEEP",
			ActiveEnergy:  "android.permission.health.READ_ACTIVE_CALORIES_BURNED",
			Distance:      "android.permission.health.READ_DISTANCE",
			Weight:        "android.permission.health.READ_WEIGHT",
			RespiratoryRt: "android.permission.health.READ_RESPIRATORY_RATE",
		},
	}
}
