package guard

import (
	"context"
	"fmt"
	"time"

	domain "github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/locator"
	"github.com/oshokin/family-guard/internal/metrics"
	"github.com/oshokin/family-guard/internal/repository/store"
	"github.com/oshokin/family-guard/internal/service/battery"
	"github.com/oshokin/family-guard/internal/service/fanout"
	"github.com/oshokin/family-guard/internal/service/safety"
	"github.com/oshokin/family-guard/internal/service/sampler"
	"github.com/oshokin/family-guard/internal/service/tracker"
)

// Options wires a Service for one family.
type Options struct {
	// FamilyID identifies the family this service instance guards.
	FamilyID string
	// Sampler tunes the acquisition loops. Zero values use the defaults.
	Sampler sampler.Config
	// BatteryThreshold is the percentage at or below which alerts fire.
	// Zero uses the default.
	BatteryThreshold int
	// BatteryCooldown is the minimum gap between battery alerts per member.
	// Zero uses the default.
	BatteryCooldown time.Duration
	// AlertDedupWindow is the span in which near-identical zone alerts
	// merge. Zero uses the default.
	AlertDedupWindow time.Duration
	// SeedFromHistory reconstructs zone membership from persisted events on
	// a member's first observation instead of starting empty.
	SeedFromHistory bool
	// Metrics receives operational counters. May be nil.
	Metrics *metrics.Metrics
}

const (
	defaultBatteryThreshold = 20
	defaultBatteryCooldown  = 30 * time.Minute
	defaultDedupWindow      = 10 * time.Second
)

// Service is the family-guard facade: it owns the zone catalog, the
// transition tracker, the sampling loops, the battery guard, the safety-check
// protocol, and the alert fanout for a single family, all backed by one
// store.
type Service struct {
	familyID string
	store    *store.Store
	catalog  *tracker.Catalog
	tracker  *tracker.Tracker
	sampler  *sampler.Sampler
	protocol *safety.Protocol
	fanout   *fanout.Fanout
}

// NewService assembles the facade on the provided store and locator.
func NewService(st *store.Store, loc locator.Locator, opts Options) *Service {
	if opts.BatteryThreshold <= 0 {
		opts.BatteryThreshold = defaultBatteryThreshold
	}

	if opts.BatteryCooldown <= 0 {
		opts.BatteryCooldown = defaultBatteryCooldown
	}

	if opts.AlertDedupWindow <= 0 {
		opts.AlertDedupWindow = defaultDedupWindow
	}

	catalog := tracker.NewCatalog(st, opts.FamilyID)
	tr := tracker.NewTracker(st, tracker.Options{
		SeedFromHistory: opts.SeedFromHistory,
		Metrics:         opts.Metrics,
	})
	batteryGuard := battery.NewGuard(st, opts.BatteryThreshold, opts.BatteryCooldown, opts.Metrics)

	return &Service{
		familyID: opts.FamilyID,
		store:    st,
		catalog:  catalog,
		tracker:  tr,
		sampler:  sampler.New(st, catalog, tr, batteryGuard, loc, opts.Metrics, opts.Sampler),
		protocol: safety.NewProtocol(st),
		fanout:   fanout.New(st, opts.Metrics, opts.AlertDedupWindow),
	}
}

// FamilyID returns the family this service instance guards.
func (s *Service) FamilyID() string {
	return s.familyID
}

// StartTracking begins the sampling loops for the member. Starting an
// already-tracked member is a no-op.
func (s *Service) StartTracking(ctx context.Context, memberID string, opts sampler.StartOptions) error {
	member, err := s.store.Member(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}

	return s.sampler.Start(ctx, member, opts)
}

// StopTracking ends the member's sampling session. No location callback for
// the member fires after it returns.
func (s *Service) StopTracking(memberID string) {
	s.sampler.Stop(memberID)
}

// Tracking reports whether the member has a running sampling session.
func (s *Service) Tracking(memberID string) bool {
	return s.sampler.Tracking(memberID)
}

// Occupied returns the ids of the zones the member is currently inside,
// per this process's transition cache.
func (s *Service) Occupied(memberID string) []string {
	return s.tracker.Occupied(memberID)
}

// Zones returns the family's active safe zones.
func (s *Service) Zones(ctx context.Context) ([]*domain.SafeZone, error) {
	return s.catalog.Snapshot(ctx)
}

// AddZone registers a safe zone for the family.
func (s *Service) AddZone(ctx context.Context, zone *domain.SafeZone) error {
	return s.catalog.AddZone(ctx, zone)
}

// UpdateZone applies the patch to the zone and returns the updated row.
func (s *Service) UpdateZone(ctx context.Context, zoneID string, patch map[string]any) (*domain.SafeZone, error) {
	return s.catalog.UpdateZone(ctx, zoneID, patch)
}

// RemoveZone retires the zone. Members currently inside it emit an exit
// event on their next sample.
func (s *Service) RemoveZone(ctx context.Context, zoneID string) error {
	return s.catalog.RemoveZone(ctx, zoneID)
}

// RequestSafetyCheck opens a pending check asking the target to confirm
// they are safe.
func (s *Service) RequestSafetyCheck(ctx context.Context, requesterID, targetID string) (*domain.SafetyCheck, error) {
	return s.protocol.RequestCheck(ctx, requesterID, targetID, s.familyID)
}

// ResolveSafetyCheck processes the target's PIN entry for a pending check.
func (s *Service) ResolveSafetyCheck(ctx context.Context, checkID, targetID, enteredPIN string) (*domain.SafetyCheck, error) {
	return s.protocol.Resolve(ctx, checkID, targetID, enteredPIN)
}

// ActivateExplicitEmergency self-reports an emergency for the member,
// bypassing any pending check.
func (s *Service) ActivateExplicitEmergency(ctx context.Context, memberID string) (*domain.SafetyCheck, error) {
	return s.protocol.ActivateExplicitEmergency(ctx, memberID, s.familyID)
}

// SubscribeFamilyAlerts attaches the member to the family's alert stream.
// Close the returned session to detach.
func (s *Service) SubscribeFamilyAlerts(ctx context.Context, memberID string, callbacks fanout.Callbacks) *fanout.Session {
	return s.fanout.Subscribe(ctx, s.familyID, memberID, callbacks)
}

// Shutdown stops every sampling session. The store stays open; its owner
// closes it.
func (s *Service) Shutdown() {
	s.sampler.StopAll()
}
