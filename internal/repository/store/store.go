package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oshokin/family-guard/internal/domain/guard"
)

// Table names used in change events and subscription filters.
const (
	TableMembers         = "members"
	TableSafeZones       = "safe_zones"
	TableLocationSamples = "location_samples"
	TableZoneEvents      = "zone_events"
	TableSafetyChecks    = "safety_checks"
	TableBatteryAlerts   = "battery_alerts"
)

var (
	// ErrNotFound is returned when a queried record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoRowsMatched is returned when a guarded update matches no rows,
	// e.g. the guard filter lost a race with another writer.
	ErrNoRowsMatched = errors.New("no rows matched")
	// errUnknownRecord is returned for record types the store does not manage.
	errUnknownRecord = errors.New("unknown record type")
)

// Store is the durable source of truth plus its in-process change feed.
// All components read and write through it; in-memory caches elsewhere are
// process-local optimizations only.
type Store struct {
	db  *gorm.DB
	bus *bus
}

// Open opens (or creates) the SQLite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.AutoMigrate(
		&guard.Member{},
		&guard.SafeZone{},
		&guard.LocationSample{},
		&guard.ZoneEvent{},
		&guard.SafetyCheck{},
		&guard.BatteryAlert{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{
		db:  db,
		bus: newBus(),
	}, nil
}

// Close tears down the change feed and the underlying database handle.
func (s *Store) Close() error {
	s.bus.closeAll()

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("unwrap database: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

// Insert persists the record, assigning an id and creation time when empty,
// and publishes an insert change event to the owning family's subscribers.
func (s *Store) Insert(ctx context.Context, record any) error {
	table, familyID, err := prepare(record)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}

	s.bus.publish(familyID, ChangeEvent{
		Table:  table,
		Op:     OpInsert,
		Record: record,
	})

	return nil
}

// Member returns the member with the given id.
func (s *Store) Member(ctx context.Context, id string) (*guard.Member, error) {
	var member guard.Member

	err := s.db.WithContext(ctx).First(&member, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("query member: %w", err)
	}

	return &member, nil
}

// ActiveZones returns the family's zones that have not been soft-deleted.
func (s *Store) ActiveZones(ctx context.Context, familyID string) ([]*guard.SafeZone, error) {
	var zones []*guard.SafeZone

	err := s.db.WithContext(ctx).
		Where("family_id = ? AND active = ?", familyID, true).
		Order("created_at").
		Find(&zones).Error
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}

	return zones, nil
}

// Zone returns the zone with the given id, soft-deleted ones included.
func (s *Store) Zone(ctx context.Context, id string) (*guard.SafeZone, error) {
	var zone guard.SafeZone

	err := s.db.WithContext(ctx).First(&zone, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("query zone: %w", err)
	}

	return &zone, nil
}

// SafetyCheck returns the check with the given id.
func (s *Store) SafetyCheck(ctx context.Context, id string) (*guard.SafetyCheck, error) {
	var check guard.SafetyCheck

	err := s.db.WithContext(ctx).First(&check, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("query safety check: %w", err)
	}

	return &check, nil
}

// LatestZoneEvents returns the most recent zone event per zone for a member,
// used to reconstruct zone membership after a restart.
func (s *Store) LatestZoneEvents(ctx context.Context, memberID string) (map[string]*guard.ZoneEvent, error) {
	var events []*guard.ZoneEvent

	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("at").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("query zone events: %w", err)
	}

	// Later events overwrite earlier ones, leaving the latest per zone.
	latest := make(map[string]*guard.ZoneEvent, len(events))
	for _, event := range events {
		latest[event.ZoneID] = event
	}

	return latest, nil
}

// ZoneEvents returns all zone events for a member in observation order.
func (s *Store) ZoneEvents(ctx context.Context, memberID string) ([]*guard.ZoneEvent, error) {
	var events []*guard.ZoneEvent

	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("at").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("query zone events: %w", err)
	}

	return events, nil
}

// BatteryAlerts returns all battery alerts for a member, oldest first.
func (s *Store) BatteryAlerts(ctx context.Context, memberID string) ([]*guard.BatteryAlert, error) {
	var alerts []*guard.BatteryAlert

	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("query battery alerts: %w", err)
	}

	return alerts, nil
}

// UpdateSafetyCheck applies the patch to the check with the given id, but
// only when every guard condition still holds (column name to expected
// value). Returns the updated record, or ErrNoRowsMatched when the guard
// missed, which is how a losing double-resolve is detected.
func (s *Store) UpdateSafetyCheck(
	ctx context.Context,
	id string,
	patch map[string]any,
	guardFilter map[string]any,
) (*guard.SafetyCheck, error) {
	tx := s.db.WithContext(ctx).Model(&guard.SafetyCheck{}).Where("id = ?", id)
	for column, expected := range guardFilter {
		tx = tx.Where(column+" = ?", expected)
	}

	result := tx.Updates(patch)
	if result.Error != nil {
		return nil, fmt.Errorf("update safety check: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return nil, ErrNoRowsMatched
	}

	check, err := s.SafetyCheck(ctx, id)
	if err != nil {
		return nil, err
	}

	s.bus.publish(check.FamilyID, ChangeEvent{
		Table:  TableSafetyChecks,
		Op:     OpUpdate,
		Record: check,
	})

	return check, nil
}

// UpdateSafeZone applies the patch to the zone with the given id and
// publishes an update change event. Soft deletion is a patch of active=false.
func (s *Store) UpdateSafeZone(ctx context.Context, id string, patch map[string]any) (*guard.SafeZone, error) {
	result := s.db.WithContext(ctx).
		Model(&guard.SafeZone{}).
		Where("id = ?", id).
		Updates(patch)
	if result.Error != nil {
		return nil, fmt.Errorf("update zone: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	zone, err := s.Zone(ctx, id)
	if err != nil {
		return nil, err
	}

	s.bus.publish(zone.FamilyID, ChangeEvent{
		Table:  TableSafeZones,
		Op:     OpUpdate,
		Record: zone,
	})

	return zone, nil
}

// Subscribe registers a handler for change events of the given family.
// A nil or empty tables slice subscribes to every table. Delivery is
// synchronous with the triggering write, so events for one member arrive in
// write order. Close the returned subscription to stop delivery; no handler
// invocation happens after Close returns.
func (s *Store) Subscribe(familyID string, tables []string, handler Handler) *Subscription {
	return s.bus.subscribe(familyID, tables, handler)
}

// prepare assigns identity and timestamps and reports the record's table and
// owning family. It is the single validation point at the store boundary.
func prepare(record any) (table, familyID string, err error) {
	now := time.Now()

	switch rec := record.(type) {
	case *guard.Member:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		return TableMembers, rec.FamilyID, nil
	case *guard.SafeZone:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		return TableSafeZones, rec.FamilyID, nil
	case *guard.LocationSample:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		return TableLocationSamples, rec.FamilyID, nil
	case *guard.ZoneEvent:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		if rec.At.IsZero() {
			rec.At = now
		}

		return TableZoneEvents, rec.FamilyID, nil
	case *guard.SafetyCheck:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		if rec.RequestedAt.IsZero() {
			rec.RequestedAt = now
		}

		return TableSafetyChecks, rec.FamilyID, nil
	case *guard.BatteryAlert:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		return TableBatteryAlerts, rec.FamilyID, nil
	default:
		return "", "", fmt.Errorf("%w: %T", errUnknownRecord, record)
	}
}
