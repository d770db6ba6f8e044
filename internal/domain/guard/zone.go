package guard

import "time"

// SafeZone is a named circular geofence owned by a family.
// Zones are soft-deleted: Active flips to false, rows are never removed,
// so historical zone events keep resolving to a name.
type SafeZone struct {
	// ID is the zone identifier, assigned at insert.
	ID string `gorm:"primaryKey"`
	// FamilyID identifies the owning family.
	FamilyID string `gorm:"index"`
	// Name is the display label (Home, School, ...).
	Name string
	// Type is a free-form category used by the UI for iconography.
	Type string
	// Latitude of the zone center in decimal degrees.
	Latitude float64
	// Longitude of the zone center in decimal degrees.
	Longitude float64
	// RadiusMeters is the zone radius.
	RadiusMeters float64
	// Active is false once the zone has been soft-deleted.
	Active bool
	// CreatedAt is when the zone row was written.
	CreatedAt time.Time
}

// Clone returns a copy of the zone.
func (z *SafeZone) Clone() *SafeZone {
	if z == nil {
		return nil
	}

	cloned := *z

	return &cloned
}

// ZoneEventType tells whether a member entered or exited a zone.
type ZoneEventType string

const (
	// ZoneEntered marks a transition from outside to inside a zone.
	ZoneEntered ZoneEventType = "entered"
	// ZoneExited marks a transition from inside to outside a zone.
	ZoneExited ZoneEventType = "exited"
)

// ZoneEvent is the append-only audit record of one genuine zone transition.
// Events for a (member, zone) pair strictly alternate entered/exited.
type ZoneEvent struct {
	// ID is the event identifier, assigned at insert.
	ID string `gorm:"primaryKey"`
	// FamilyID identifies the family, used to scope fanout delivery.
	FamilyID string `gorm:"index"`
	// MemberID identifies who transitioned.
	MemberID string `gorm:"index"`
	// ZoneID identifies the zone crossed.
	ZoneID string `gorm:"index"`
	// ZoneName snapshots the zone label at event time for alert text.
	ZoneName string
	// Type is entered or exited.
	Type ZoneEventType
	// Latitude snapshots the triggering coordinate.
	Latitude float64
	// Longitude snapshots the triggering coordinate.
	Longitude float64
	// Accuracy snapshots the triggering fix accuracy in meters.
	Accuracy float64
	// At is when the transition was observed.
	At time.Time
}
