package tracker

import (
	"context"
	"sync"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/geo"
	"github.com/oshokin/family-guard/internal/logger"
	"github.com/oshokin/family-guard/internal/metrics"
	"github.com/oshokin/family-guard/internal/repository/store"
)

// Options controls tracker behavior.
type Options struct {
	// SeedFromHistory reconstructs each member's occupied-zone set from the
	// latest persisted zone event per zone on their first observation in
	// this process. When false, membership starts empty and the first sample
	// re-reports zones the member never left.
	SeedFromHistory bool
	// Metrics receives transition and failure counts. May be nil.
	Metrics *metrics.Metrics
}

// Transition is the outcome of one observation: the zones the member just
// entered and the zones they just left.
type Transition struct {
	Entered []*guard.SafeZone
	Exited  []*guard.SafeZone
}

// Empty reports whether the observation changed nothing.
func (tr Transition) Empty() bool {
	return len(tr.Entered) == 0 && len(tr.Exited) == 0
}

// memberState is one member's occupied-zone set. Its mutex serializes
// observations for that member while other members progress independently.
type memberState struct {
	mu       sync.Mutex
	seeded   bool
	occupied map[string]struct{}
}

// Tracker detects zone transitions by diffing successive containment sets.
// The per-member state is a process-local cache; a second process tracking
// the same member keeps its own and may re-emit transitions, which the
// fanout dedup absorbs.
type Tracker struct {
	store   *store.Store
	opts    Options
	mu      sync.Mutex
	members map[string]*memberState
}

// NewTracker creates a tracker persisting transitions to the provided store.
func NewTracker(st *store.Store, opts Options) *Tracker {
	return &Tracker{
		store:   st,
		opts:    opts,
		members: make(map[string]*memberState),
	}
}

// Observe evaluates the coordinate against the zone snapshot, returns the
// entered/exited diff, and appends one zone event per genuine transition.
// Persistence failures are logged and do not roll back the membership cache:
// live behavior wins over audit-log completeness.
func (t *Tracker) Observe(
	ctx context.Context,
	member *guard.Member,
	coordinate guard.Coordinate,
	zones []*guard.SafeZone,
) Transition {
	state := t.memberState(member.ID)

	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.seeded {
		t.seed(ctx, member.ID, state)
	}

	current := make(map[string]struct{}, len(zones))

	var transition Transition

	for _, zone := range zones {
		if !geo.Inside(coordinate, zone) {
			continue
		}

		current[zone.ID] = struct{}{}

		if _, wasInside := state.occupied[zone.ID]; !wasInside {
			transition.Entered = append(transition.Entered, zone)
		}
	}

	for zoneID := range state.occupied {
		if _, stillInside := current[zoneID]; stillInside {
			continue
		}

		zone := findZone(zones, zoneID)
		if zone == nil {
			// The zone left the snapshot (soft-deleted mid-flight); its row
			// is still in the store, so the exit event keeps its label.
			var err error
			if zone, err = t.store.Zone(ctx, zoneID); err != nil {
				logger.WarnKV(ctx, "Exited zone no longer resolvable, skipping event",
					"member_id", member.ID, "zone_id", zoneID, "error", err)

				continue
			}
		}

		transition.Exited = append(transition.Exited, zone)
	}

	// Advance the cache before persisting so a store outage cannot make the
	// next observation repeat this transition.
	state.occupied = current

	for _, zone := range transition.Entered {
		t.persistEvent(ctx, member, zone, guard.ZoneEntered, coordinate)
	}

	for _, zone := range transition.Exited {
		t.persistEvent(ctx, member, zone, guard.ZoneExited, coordinate)
	}

	return transition
}

// Occupied returns the member's currently cached zone ids.
func (t *Tracker) Occupied(memberID string) []string {
	state := t.memberState(memberID)

	state.mu.Lock()
	defer state.mu.Unlock()

	ids := make([]string, 0, len(state.occupied))
	for zoneID := range state.occupied {
		ids = append(ids, zoneID)
	}

	return ids
}

// memberState returns the state entry for the member, creating it when absent.
func (t *Tracker) memberState(memberID string) *memberState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.members[memberID]
	if !ok {
		state = &memberState{
			occupied: make(map[string]struct{}),
		}
		t.members[memberID] = state
	}

	return state
}

// seed reconstructs the occupied set from the latest event per zone.
// Called with the member's state lock held. A load failure degrades to the
// empty-set cold start and is only logged.
func (t *Tracker) seed(ctx context.Context, memberID string, state *memberState) {
	state.seeded = true

	if !t.opts.SeedFromHistory {
		return
	}

	latest, err := t.store.LatestZoneEvents(ctx, memberID)
	if err != nil {
		logger.WarnKV(ctx, "Zone membership seed failed, starting empty",
			"member_id", memberID, "error", err)

		return
	}

	for zoneID, event := range latest {
		if event.Type == guard.ZoneEntered {
			state.occupied[zoneID] = struct{}{}
		}
	}
}

// persistEvent appends one zone event with a coordinate snapshot.
func (t *Tracker) persistEvent(
	ctx context.Context,
	member *guard.Member,
	zone *guard.SafeZone,
	eventType guard.ZoneEventType,
	coordinate guard.Coordinate,
) {
	event := &guard.ZoneEvent{
		FamilyID:  member.FamilyID,
		MemberID:  member.ID,
		ZoneID:    zone.ID,
		ZoneName:  zone.Name,
		Type:      eventType,
		Latitude:  coordinate.Latitude,
		Longitude: coordinate.Longitude,
		Accuracy:  coordinate.Accuracy,
		At:        coordinate.CapturedAt,
	}

	if err := t.store.Insert(ctx, event); err != nil {
		t.opts.Metrics.PersistenceFailure()
		logger.ErrorKV(ctx, "Failed to persist zone event",
			"member_id", member.ID, "zone_id", zone.ID, "type", eventType, "error", err)

		return
	}

	t.opts.Metrics.ZoneTransition(string(eventType))
	logger.InfoKV(ctx, "Zone transition",
		"member_id", member.ID, "zone", zone.Name, "type", eventType)
}

// findZone locates a zone by id in the snapshot.
func findZone(zones []*guard.SafeZone, zoneID string) *guard.SafeZone {
	for _, zone := range zones {
		if zone.ID == zoneID {
			return zone
		}
	}

	return nil
}
