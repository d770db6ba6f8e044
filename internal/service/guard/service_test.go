package guard

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/locator"
	"github.com/oshokin/family-guard/internal/repository/store"
	"github.com/oshokin/family-guard/internal/service/fanout"
	"github.com/oshokin/family-guard/internal/service/safety"
	"github.com/oshokin/family-guard/internal/service/sampler"
)

// fixture assembles a service over a throwaway store with a two-member
// family and a locator parked at (50, 10).
type fixture struct {
	store   *store.Store
	service *Service
	parent  *domain.Member
	child   *domain.Member
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	ctx := context.Background()

	parent := &domain.Member{FamilyID: "smith", Name: "Dana", Role: "parent", PIN: "2468"}
	child := &domain.Member{FamilyID: "smith", Name: "Robin", Role: "child", PIN: "1379"}
	require.NoError(t, s.Insert(ctx, parent))
	require.NoError(t, s.Insert(ctx, child))

	loc := locator.NewReplay([]locator.RoutePoint{
		{Latitude: 50, Longitude: 10, Accuracy: 15},
	}, time.Hour)

	service := NewService(s, loc, Options{
		FamilyID: "smith",
		Sampler: sampler.Config{
			Interval:       20 * time.Millisecond,
			LocatorTimeout: time.Second,
			PersistTimeout: time.Second,
		},
		AlertDedupWindow: 10 * time.Millisecond,
	})
	t.Cleanup(service.Shutdown)

	return &fixture{store: s, service: service, parent: parent, child: child}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for !condition() {
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTrackingDeliversZoneAlerts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.AddZone(ctx, &domain.SafeZone{
		Name:         "Home",
		Latitude:     50,
		Longitude:    10,
		RadiusMeters: 100,
	}))

	var (
		mu     sync.Mutex
		alerts []fanout.Alert
	)

	session := f.service.SubscribeFamilyAlerts(ctx, f.parent.ID, fanout.Callbacks{
		OnZoneAlert: func(a fanout.Alert) {
			mu.Lock()
			defer mu.Unlock()

			alerts = append(alerts, a)
		},
	})
	defer session.Close()

	require.NoError(t, f.service.StartTracking(ctx, f.child.ID, sampler.StartOptions{}))
	require.True(t, f.service.Tracking(f.child.ID))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(alerts) > 0
	})

	mu.Lock()
	first := alerts[0]
	mu.Unlock()

	require.Equal(t, fanout.KindZoneEntered, first.Kind)
	require.Equal(t, "Robin", first.MemberName)
	require.Equal(t, "Home", first.ZoneName)

	waitFor(t, func() bool {
		return len(f.service.Occupied(f.child.ID)) == 1
	})

	f.service.StopTracking(f.child.ID)
	require.False(t, f.service.Tracking(f.child.ID))
}

func TestStartTrackingUnknownMember(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	err := f.service.StartTracking(context.Background(), "nobody", sampler.StartOptions{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSafetyCheckRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	check, err := f.service.RequestSafetyCheck(ctx, f.parent.ID, f.child.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CheckPending, check.Status)

	resolved, err := f.service.ResolveSafetyCheck(ctx, check.ID, f.child.ID, "1379")
	require.NoError(t, err)
	require.Equal(t, domain.CheckOK, resolved.Status)
	require.Equal(t, domain.EmergencyNone, resolved.EmergencyType)

	_, err = f.service.ResolveSafetyCheck(ctx, check.ID, f.child.ID, "1379")
	require.ErrorIs(t, err, safety.ErrCheckResolved)
}

func TestDuressPINRaisesSilentEmergency(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		silent []fanout.Alert
	)

	session := f.service.SubscribeFamilyAlerts(ctx, f.parent.ID, fanout.Callbacks{
		OnSilentEmergency: func(a fanout.Alert) {
			mu.Lock()
			defer mu.Unlock()

			silent = append(silent, a)
		},
	})
	defer session.Close()

	check, err := f.service.RequestSafetyCheck(ctx, f.parent.ID, f.child.ID)
	require.NoError(t, err)

	resolved, err := f.service.ResolveSafetyCheck(ctx, check.ID, f.child.ID, "9731")
	require.NoError(t, err)
	require.Equal(t, domain.CheckOK, resolved.Status)
	require.Equal(t, domain.EmergencySilent, resolved.EmergencyType)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, silent, 1)
	require.Equal(t, fanout.KindSilentEmergency, silent[0].Kind)
	require.Equal(t, check.ID, silent[0].CheckID)
}

func TestExplicitEmergencyReachesFamily(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	received := make(chan fanout.Alert, 1)

	session := f.service.SubscribeFamilyAlerts(ctx, f.parent.ID, fanout.Callbacks{
		OnExplicitEmergency: func(a fanout.Alert) {
			received <- a
		},
	})
	defer session.Close()

	check, err := f.service.ActivateExplicitEmergency(ctx, f.child.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CheckOK, check.Status)
	require.Equal(t, domain.EmergencyExplicit, check.EmergencyType)

	select {
	case alert := <-received:
		require.Equal(t, fanout.KindExplicitEmergency, alert.Kind)
		require.Equal(t, f.child.ID, alert.MemberID)
	default:
		t.Fatal("expected an explicit emergency alert")
	}
}

func TestZoneManagement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.AddZone(ctx, &domain.SafeZone{
		Name:         "School",
		Latitude:     50.01,
		Longitude:    10.01,
		RadiusMeters: 150,
	}))

	zones, err := f.service.Zones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.Equal(t, "smith", zones[0].FamilyID)

	updated, err := f.service.UpdateZone(ctx, zones[0].ID, map[string]any{"radius_meters": float64(200)})
	require.NoError(t, err)
	require.InDelta(t, 200, updated.RadiusMeters, 0.001)

	require.NoError(t, f.service.RemoveZone(ctx, zones[0].ID))

	zones, err = f.service.Zones(ctx)
	require.NoError(t, err)
	require.Empty(t, zones)

	_, err = f.service.UpdateZone(ctx, "missing", map[string]any{"name": "x"})
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNoRowsMatched))
}
