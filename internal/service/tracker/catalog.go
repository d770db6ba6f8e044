package tracker

import (
	"context"
	"fmt"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/repository/store"
)

// Catalog exposes a family's safe zones and their management operations.
// Snapshot reads go to the store every time; zones change rarely and the
// tracker needs the freshest set it can get.
type Catalog struct {
	// store is the durable zone storage.
	store *store.Store
	// familyID scopes every operation to one family.
	familyID string
}

// NewCatalog creates a catalog for the provided family.
func NewCatalog(st *store.Store, familyID string) *Catalog {
	return &Catalog{
		store:    st,
		familyID: familyID,
	}
}

// Snapshot returns the family's active zones.
func (c *Catalog) Snapshot(ctx context.Context) ([]*guard.SafeZone, error) {
	zones, err := c.store.ActiveZones(ctx, c.familyID)
	if err != nil {
		return nil, fmt.Errorf("load zone catalog: %w", err)
	}

	return zones, nil
}

// AddZone persists a new active zone for the family.
func (c *Catalog) AddZone(ctx context.Context, zone *guard.SafeZone) error {
	zone.FamilyID = c.familyID
	zone.Active = true

	if err := c.store.Insert(ctx, zone); err != nil {
		return fmt.Errorf("add zone: %w", err)
	}

	return nil
}

// UpdateZone patches an existing zone (name, center, radius, type).
func (c *Catalog) UpdateZone(ctx context.Context, zoneID string, patch map[string]any) (*guard.SafeZone, error) {
	zone, err := c.store.UpdateSafeZone(ctx, zoneID, patch)
	if err != nil {
		return nil, fmt.Errorf("update zone: %w", err)
	}

	return zone, nil
}

// RemoveZone soft-deletes a zone. The row stays so historical events keep
// their labels; the zone just stops appearing in snapshots.
func (c *Catalog) RemoveZone(ctx context.Context, zoneID string) error {
	if _, err := c.store.UpdateSafeZone(ctx, zoneID, map[string]any{"active": false}); err != nil {
		return fmt.Errorf("remove zone: %w", err)
	}

	return nil
}
