package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/repository/store"
)

// Session is one member's live view of the family alert stream.
type Session struct {
	fanout    *Fanout
	memberID  string
	callbacks Callbacks
	sub       *store.Subscription

	// recent holds dedup signatures for the dedup window.
	recent *gocache.Cache

	// mu guards the visible feeds.
	mu        sync.Mutex
	zone      []Alert
	emergency map[AlertKind][]Alert
}

// Close detaches the session from the stream. No callback fires after it
// returns. Safe to call from any goroutine and idempotent.
func (s *Session) Close() {
	s.sub.Close()
}

// ZoneAlerts returns the retained zone alerts, most recent last.
func (s *Session) ZoneAlerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.zone))
	copy(out, s.zone)

	return out
}

// EmergencyAlerts returns the retained alerts of the given emergency kind,
// most recent last.
func (s *Session) EmergencyAlerts(kind AlertKind) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed := s.emergency[kind]
	out := make([]Alert, len(feed))
	copy(out, feed)

	return out
}

// handle classifies one change event for this session and delivers it.
// Events from other families never reach here; the store bus scopes by
// family already.
func (s *Session) handle(ctx context.Context, event store.ChangeEvent) {
	switch record := event.Record.(type) {
	case *guard.ZoneEvent:
		if event.Op == store.OpInsert {
			s.handleZoneEvent(ctx, record)
		}
	case *guard.SafetyCheck:
		s.handleSafetyCheck(ctx, event.Op, record)
	case *guard.BatteryAlert:
		if event.Op == store.OpInsert {
			s.handleBatteryAlert(record)
		}
	}
}

func (s *Session) handleZoneEvent(ctx context.Context, event *guard.ZoneEvent) {
	name := s.fanout.memberName(ctx, event.MemberID)

	kind := KindZoneEntered
	if event.Type == guard.ZoneExited {
		kind = KindZoneExited
	}

	// Near-identical alerts inside the window collapse into the first one.
	// The signature matches on display identity, zone and direction, which
	// also absorbs duplicate transitions from a second tracking process.
	signature := fmt.Sprintf("%s|%s|%s", name, event.ZoneName, kind)
	if _, seen := s.recent.Get(signature); seen {
		s.fanout.metrics.AlertDeduplicated()

		return
	}

	s.recent.SetDefault(signature, struct{}{})

	alert := Alert{
		Kind:       kind,
		MemberID:   event.MemberID,
		MemberName: name,
		ZoneID:     event.ZoneID,
		ZoneName:   event.ZoneName,
		Message:    zoneMessage(name, event.ZoneName, event.Type),
		At:         event.At,
	}

	s.mu.Lock()
	s.zone = appendBounded(s.zone, alert, zoneFeedLimit)
	s.mu.Unlock()

	s.fanout.metrics.AlertDelivered(string(kind))

	if s.callbacks.OnZoneAlert != nil {
		s.callbacks.OnZoneAlert(alert)
	}
}

//nolint:cyclop // The classification table reads best as one switch-like flow.
func (s *Session) handleSafetyCheck(ctx context.Context, op store.Op, check *guard.SafetyCheck) {
	switch {
	case op == store.OpInsert && check.Status == guard.CheckPending && check.TargetID == s.memberID:
		// Someone asks this member to confirm they are safe.
		name := s.fanout.memberName(ctx, check.RequesterID)
		s.deliverCheck(Alert{
			Kind:       KindCheckReceived,
			MemberID:   check.RequesterID,
			MemberName: name,
			CheckID:    check.ID,
			Message:    fmt.Sprintf("%s asks if you are okay", name),
			At:         check.RequestedAt,
		}, s.callbacks.OnCheckReceived)

	case check.EmergencyType == guard.EmergencySilent && check.TargetID != s.memberID:
		// The duress PIN was used. The target's own session must never see
		// this branch; everyone else gets the silent alarm.
		name := s.fanout.memberName(ctx, check.TargetID)
		s.deliverCheck(Alert{
			Kind:       KindSilentEmergency,
			MemberID:   check.TargetID,
			MemberName: name,
			CheckID:    check.ID,
			Message:    fmt.Sprintf("%s may be in danger: silent alarm raised", name),
			At:         respondedAt(check),
		}, s.callbacks.OnSilentEmergency)

	case check.EmergencyType == guard.EmergencyExplicit && check.RequesterID != s.memberID && op == store.OpInsert:
		name := s.fanout.memberName(ctx, check.RequesterID)
		s.deliverCheck(Alert{
			Kind:       KindExplicitEmergency,
			MemberID:   check.RequesterID,
			MemberName: name,
			CheckID:    check.ID,
			Message:    fmt.Sprintf("%s reported an emergency", name),
			At:         respondedAt(check),
		}, s.callbacks.OnExplicitEmergency)

	case op == store.OpUpdate && check.Resolved() &&
		check.EmergencyType == guard.EmergencyNone && check.RequesterID == s.memberID:
		// The requester learns their check resolved fine. Duress resolves
		// are excluded: the requester receives the silent emergency instead.
		name := s.fanout.memberName(ctx, check.TargetID)
		s.deliverCheck(Alert{
			Kind:       KindCheckResponded,
			MemberID:   check.TargetID,
			MemberName: name,
			CheckID:    check.ID,
			Message:    fmt.Sprintf("%s confirmed they are okay", name),
			At:         respondedAt(check),
		}, s.callbacks.OnCheckResponse)
	}
}

func (s *Session) handleBatteryAlert(alert *guard.BatteryAlert) {
	// A member does not need to be told about their own battery.
	if alert.MemberID == s.memberID {
		return
	}

	out := Alert{
		Kind:         KindLowBattery,
		MemberID:     alert.MemberID,
		MemberName:   alert.MemberName,
		BatteryLevel: alert.BatteryLevel,
		Message:      fmt.Sprintf("%s's phone is at %d%% battery", alert.MemberName, alert.BatteryLevel),
		At:           alert.CreatedAt,
	}

	s.fanout.metrics.AlertDelivered(string(KindLowBattery))

	if s.callbacks.OnLowBattery != nil {
		s.callbacks.OnLowBattery(out)
	}
}

// deliverCheck records the alert in its emergency feed and fires the hook.
func (s *Session) deliverCheck(alert Alert, hook func(Alert)) {
	s.mu.Lock()
	s.emergency[alert.Kind] = appendBounded(s.emergency[alert.Kind], alert, emergencyFeedLimit)
	s.mu.Unlock()

	s.fanout.metrics.AlertDelivered(string(alert.Kind))

	if hook != nil {
		hook(alert)
	}
}

// appendBounded appends keeping only the most recent limit entries.
func appendBounded(feed []Alert, alert Alert, limit int) []Alert {
	feed = append(feed, alert)
	if len(feed) > limit {
		feed = feed[len(feed)-limit:]
	}

	return feed
}

// respondedAt picks the resolution time, falling back to the request time.
func respondedAt(check *guard.SafetyCheck) time.Time {
	if check.RespondedAt != nil {
		return *check.RespondedAt
	}

	return check.RequestedAt
}
