package guard

import "time"

// BatteryAlert is the append-only record of one low-battery notification.
// Creation is throttled by the battery guard, not by the store.
type BatteryAlert struct {
	// ID is the alert identifier, assigned at insert.
	ID string `gorm:"primaryKey"`
	// FamilyID identifies the family, used to scope fanout delivery.
	FamilyID string `gorm:"index"`
	// MemberID identifies whose device ran low.
	MemberID string `gorm:"index"`
	// MemberName snapshots the display name for alert text.
	MemberName string
	// BatteryLevel is the percentage that triggered the alert.
	BatteryLevel int
	// CreatedAt is when the alert row was written.
	CreatedAt time.Time
}
