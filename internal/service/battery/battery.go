package battery

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

// Guard raises low-battery alerts with a per-member cooldown.
// The cooldown map is process-local; a restart may re-alert early, which is
// acceptable for a best-effort nudge.
type Guard struct {
	store     *store.Store
	threshold int
	cooldown  time.Duration
	// recent holds one entry per member for the cooldown span. Entry expiry
	// is exactly the rate limit, so existence means "alerted recently".
	recent  *gocache.Cache
	metrics *metrics.Metrics
}

// NewGuard creates a battery guard with the provided threshold (percent)
// and cooldown between alerts for the same member.
func NewGuard(st *store.Store, threshold int, cooldown time.Duration, m *metrics.Metrics) *Guard {
	return &Guard{
		store:     st,
		threshold: threshold,
		cooldown:  cooldown,
		recent:    gocache.New(cooldown, cooldown),
		metrics:   m,
	}
}

// CheckAndAlert persists a battery alert when the level is at or below the
// threshold and no alert fired for this member within the cooldown.
// Returns whether an alert was raised. A persist failure is reported without
// arming the cooldown, so the next sample can retry.
func (g *Guard) CheckAndAlert(ctx context.Context, member *guard.Member, batteryLevel int) (bool, error) {
	if batteryLevel > g.threshold {
		return false, nil
	}

	if _, alreadyAlerted := g.recent.Get(member.ID); alreadyAlerted {
		return false, nil
	}

	alert := &guard.BatteryAlert{
		FamilyID:     member.FamilyID,
		MemberID:     member.ID,
		MemberName:   member.Name,
		BatteryLevel: batteryLevel,
	}

	if err := g.store.Insert(ctx, alert); err != nil {
		g.metrics.PersistenceFailure()

		return false, fmt.Errorf("persist battery alert: %w", err)
	}

	g.recent.SetDefault(member.ID, time.Now())

	logger.InfoKV(ctx, "Low battery alert",
		"member_id", member.ID, "battery_level", batteryLevel)

	return true, nil
}
