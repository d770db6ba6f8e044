package fanout

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/logger"
	"github.com/oshokin/family-guard/internal/metrics"
	"github.com/oshokin/family-guard/internal/repository/store"
)

// AlertKind classifies a delivered alert.
type AlertKind string

const (
	// KindZoneEntered means a member entered a safe zone.
	KindZoneEntered AlertKind = "zone_entered"
	// KindZoneExited means a member left a safe zone.
	KindZoneExited AlertKind = "zone_exited"
	// KindCheckReceived means someone asked this session's member to check in.
	KindCheckReceived AlertKind = "check_received"
	// KindCheckResponded means a check this session's member requested
	// resolved without an emergency.
	KindCheckResponded AlertKind = "check_responded"
	// KindSilentEmergency means another member resolved a check with the
	// duress PIN.
	KindSilentEmergency AlertKind = "silent_emergency"
	// KindExplicitEmergency means another member self-reported an emergency.
	KindExplicitEmergency AlertKind = "explicit_emergency"
	// KindLowBattery means a member's device is running low.
	KindLowBattery AlertKind = "low_battery"
)

const (
	// zoneFeedLimit is how many recent zone alerts a session retains.
	zoneFeedLimit = 5
	// emergencyFeedLimit is how many recent alerts per emergency kind a
	// session retains.
	emergencyFeedLimit = 3
	// nameCacheTTL bounds staleness of the member display-name lookup.
	nameCacheTTL = 5 * time.Minute
)

// Alert is one normalized entry in a session's alert feed.
type Alert struct {
	// Kind classifies the alert.
	Kind AlertKind
	// MemberID is the acting member.
	MemberID string
	// MemberName is the acting member's display name.
	MemberName string
	// ZoneID and ZoneName are set for zone alerts.
	ZoneID   string
	ZoneName string
	// CheckID is set for safety-check alerts.
	CheckID string
	// BatteryLevel is set for low-battery alerts.
	BatteryLevel int
	// Message is the human-readable alert text.
	Message string
	// At is when the underlying event happened.
	At time.Time
}

// Callbacks are the per-classification delivery hooks a session registers.
// Unset hooks drop their alerts. Hooks run synchronously with the
// triggering store write and must hand long work off.
type Callbacks struct {
	OnZoneAlert         func(Alert)
	OnCheckReceived     func(Alert)
	OnCheckResponse     func(Alert)
	OnSilentEmergency   func(Alert)
	OnExplicitEmergency func(Alert)
	OnLowBattery        func(Alert)
}

// Fanout turns the store's change feed into per-session alert streams.
type Fanout struct {
	store       *store.Store
	metrics     *metrics.Metrics
	dedupWindow time.Duration
	// names caches member display names so a burst of events does not hit
	// the store once per alert.
	names *gocache.Cache
}

// New creates a fanout with the provided dedup window.
func New(st *store.Store, m *metrics.Metrics, dedupWindow time.Duration) *Fanout {
	return &Fanout{
		store:       st,
		metrics:     m,
		dedupWindow: dedupWindow,
		names:       gocache.New(nameCacheTTL, nameCacheTTL),
	}
}

// Subscribe attaches a member's live session to the family's alert stream.
// Delivery is at-least-once from the session's point of view; the dedup
// window absorbs repeats. Close the session to detach; no callback runs
// after Close returns.
func (f *Fanout) Subscribe(ctx context.Context, familyID, memberID string, callbacks Callbacks) *Session {
	session := &Session{
		fanout:    f,
		memberID:  memberID,
		callbacks: callbacks,
		recent:    gocache.New(f.dedupWindow, f.dedupWindow),
		emergency: make(map[AlertKind][]Alert),
	}

	tables := []string{
		store.TableZoneEvents,
		store.TableSafetyChecks,
		store.TableBatteryAlerts,
	}

	session.sub = f.store.Subscribe(familyID, tables, func(event store.ChangeEvent) {
		session.handle(ctx, event)
	})

	logger.InfoKV(ctx, "Alert session attached",
		"family_id", familyID, "member_id", memberID)

	return session
}

// memberName resolves a member's display name with a short-lived cache.
// Unknown members keep their id as the label rather than blocking delivery.
func (f *Fanout) memberName(ctx context.Context, memberID string) string {
	if cached, ok := f.names.Get(memberID); ok {
		if name, ok := cached.(string); ok {
			return name
		}
	}

	member, err := f.store.Member(ctx, memberID)
	if err != nil {
		logger.WarnKV(ctx, "Member name lookup failed",
			"member_id", memberID, "error", err)

		return memberID
	}

	f.names.SetDefault(memberID, member.Name)

	return member.Name
}

// zoneMessage renders the human-readable text for a zone alert.
func zoneMessage(name, zoneName string, eventType guard.ZoneEventType) string {
	if eventType == guard.ZoneEntered {
		return fmt.Sprintf("%s arrived at %s", name, zoneName)
	}

	return fmt.Sprintf("%s left %s", name, zoneName)
}
