package guard

import "time"

// Coordinate is a single position fix produced by a locator.
// It is an ephemeral value; the persisted copy is a LocationSample.
type Coordinate struct {
	// Latitude in decimal degrees, positive north.
	Latitude float64
	// Longitude in decimal degrees, positive east.
	Longitude float64
	// Accuracy is the estimated fix error radius in meters.
	Accuracy float64
	// CapturedAt is when the fix was taken.
	CapturedAt time.Time
}

// LocationSample is a persisted coordinate attributed to a member.
// Samples are append-only; retention is an external concern.
type LocationSample struct {
	// ID is the sample identifier, assigned at insert.
	ID string `gorm:"primaryKey"`
	// FamilyID identifies the family the sample belongs to.
	FamilyID string `gorm:"index"`
	// MemberID identifies whose position this is.
	MemberID string `gorm:"index"`
	// Coordinate is the recorded position fix.
	Coordinate Coordinate `gorm:"embedded"`
	// IsAutomatic is true for sampler-produced fixes, false for manual check-ins.
	IsAutomatic bool
	// BatteryLevel is the device battery percentage at capture time, if known.
	BatteryLevel *int
	// CreatedAt is when the sample row was written.
	CreatedAt time.Time
}
