package sampler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/locator"
	"github.com/oshokin/family-guard/internal/repository/store"
	"github.com/oshokin/family-guard/internal/service/battery"
	"github.com/oshokin/family-guard/internal/service/tracker"
)

// manualLocator lets a test control one-shot results and push watch updates
// by hand.
type manualLocator struct {
	mu       sync.Mutex
	fix      guard.Coordinate
	getErr   error
	onUpdate locator.UpdateFunc
	onError  locator.ErrorFunc
}

func (m *manualLocator) GetOnce(_ context.Context, _ locator.Options) (guard.Coordinate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return guard.Coordinate{}, m.getErr
	}

	return m.fix, nil
}

func (m *manualLocator) Watch(_ locator.Options, onUpdate locator.UpdateFunc, onError locator.ErrorFunc) (locator.Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onUpdate = onUpdate
	m.onError = onError

	return manualWatch{}, nil
}

// push sends a coordinate through the watch callback, as a device would.
func (m *manualLocator) push(coordinate guard.Coordinate) {
	m.mu.Lock()
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(coordinate)
	}
}

type manualWatch struct{}

func (manualWatch) Stop() {}

// fixture wires a sampler over a throwaway store with one member and one
// 100m home zone at (50, 10).
type fixture struct {
	store   *store.Store
	sampler *Sampler
	locator *manualLocator
	member  *guard.Member
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "sampler.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	ctx := context.Background()
	member := &guard.Member{ID: "mem-1", FamilyID: "fam-1", Name: "Dana"}
	require.NoError(t, s.Insert(ctx, member))
	require.NoError(t, s.Insert(ctx, &guard.SafeZone{
		FamilyID:     "fam-1",
		Name:         "Home",
		Latitude:     50,
		Longitude:    10,
		RadiusMeters: 100,
		Active:       true,
	}))

	catalog := tracker.NewCatalog(s, "fam-1")
	loc := &manualLocator{
		fix: guard.Coordinate{Latitude: 50, Longitude: 10, Accuracy: 10, CapturedAt: time.Now()},
	}
	guardSvc := battery.NewGuard(s, 20, time.Hour, nil)
	smp := New(s, catalog, tracker.NewTracker(s, tracker.Options{}), guardSvc, loc, nil, cfg)

	return &fixture{store: s, sampler: smp, locator: loc, member: member}
}

// TestIntervalSampling verifies ticks produce persisted samples, a zone
// event, a battery alert, and the update callback.
func TestIntervalSampling(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: 20 * time.Millisecond})
	ctx := context.Background()

	var (
		mu      sync.Mutex
		updates []guard.LocationSample
	)

	level := 15

	err := f.sampler.Start(ctx, f.member, StartOptions{
		BatteryLevel: func() (int, bool) { return level, true },
		Callbacks: Callbacks{
			OnLocationUpdate: func(sample guard.LocationSample) {
				mu.Lock()
				defer mu.Unlock()
				updates = append(updates, sample)
			},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(updates) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	f.sampler.Stop(f.member.ID)

	mu.Lock()
	first := updates[0]
	mu.Unlock()

	require.True(t, first.IsAutomatic)
	require.NotNil(t, first.BatteryLevel)
	require.Equal(t, 15, *first.BatteryLevel)

	// One enter event for the home zone.
	events, err := f.store.ZoneEvents(ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, guard.ZoneEntered, events[0].Type)

	// Battery guard fired once despite several low samples.
	alerts, err := f.store.BatteryAlerts(ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

// TestStartIdempotent verifies a second Start for the same member is a no-op
// and Stop ends the session.
func TestStartIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: time.Hour})
	ctx := context.Background()

	require.NoError(t, f.sampler.Start(ctx, f.member, StartOptions{}))
	require.NoError(t, f.sampler.Start(ctx, f.member, StartOptions{}))
	require.True(t, f.sampler.Tracking(f.member.ID))

	f.sampler.Stop(f.member.ID)
	require.False(t, f.sampler.Tracking(f.member.ID))

	// Stopping again is harmless.
	f.sampler.Stop(f.member.ID)
}

// TestWatchAccuracyFilter verifies coarse pushed fixes are discarded and
// precise ones processed.
func TestWatchAccuracyFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: time.Hour, WatchAccuracyCeiling: 100})
	ctx := context.Background()

	var (
		mu      sync.Mutex
		updates int
	)

	require.NoError(t, f.sampler.Start(ctx, f.member, StartOptions{
		Callbacks: Callbacks{
			OnLocationUpdate: func(guard.LocationSample) {
				mu.Lock()
				defer mu.Unlock()
				updates++
			},
		},
	}))

	// Too coarse: dropped before processing.
	f.locator.push(guard.Coordinate{Latitude: 50, Longitude: 10, Accuracy: 250, CapturedAt: time.Now()})

	mu.Lock()
	require.Zero(t, updates)
	mu.Unlock()

	// Precise: processed like an interval success.
	f.locator.push(guard.Coordinate{Latitude: 50, Longitude: 10, Accuracy: 40, CapturedAt: time.Now()})

	mu.Lock()
	require.Equal(t, 1, updates)
	mu.Unlock()

	f.sampler.Stop(f.member.ID)

	// Zone transition came from the accepted watch fix.
	events, err := f.store.ZoneEvents(ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

// TestStopSilencesWatch verifies no callback runs after Stop returns even if
// the device keeps pushing.
func TestStopSilencesWatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: time.Hour})
	ctx := context.Background()

	var (
		mu      sync.Mutex
		updates int
	)

	require.NoError(t, f.sampler.Start(ctx, f.member, StartOptions{
		Callbacks: Callbacks{
			OnLocationUpdate: func(guard.LocationSample) {
				mu.Lock()
				defer mu.Unlock()
				updates++
			},
		},
	}))

	f.sampler.Stop(f.member.ID)

	// The manual watch ignores Stop, simulating a misbehaving device API.
	f.locator.push(guard.Coordinate{Latitude: 50, Longitude: 10, Accuracy: 10, CapturedAt: time.Now()})

	mu.Lock()
	require.Zero(t, updates)
	mu.Unlock()
}

// TestAcquisitionFailure verifies locator errors reach OnError and sampling
// continues on later ticks.
func TestAcquisitionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Interval: 20 * time.Millisecond})
	ctx := context.Background()

	f.locator.mu.Lock()
	f.locator.getErr = locator.ErrPositionUnavailable
	f.locator.mu.Unlock()

	var (
		mu       sync.Mutex
		failures int
	)

	require.NoError(t, f.sampler.Start(ctx, f.member, StartOptions{
		Callbacks: Callbacks{
			OnError: func(err error) {
				require.ErrorIs(t, err, locator.ErrPositionUnavailable)

				mu.Lock()
				defer mu.Unlock()
				failures++
			},
		},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return failures >= 2
	}, 2*time.Second, 10*time.Millisecond)

	f.sampler.Stop(f.member.ID)
}
