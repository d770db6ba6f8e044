package battery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/repository/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "battery.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

var testMember = &guard.Member{
	ID:       "mem-1",
	FamilyID: "fam-1",
	Name:     "Dana",
}

// TestAboveThresholdIsNoop verifies no alert fires above the threshold.
func TestAboveThresholdIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	g := NewGuard(s, 20, 30*time.Minute, nil)

	alerted, err := g.CheckAndAlert(context.Background(), testMember, 21)
	require.NoError(t, err)
	require.False(t, alerted)

	alerts, err := s.BatteryAlerts(context.Background(), testMember.ID)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

// TestCooldownSuppressesSecondAlert verifies two low readings inside the
// cooldown produce exactly one alert row.
func TestCooldownSuppressesSecondAlert(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	g := NewGuard(s, 20, 30*time.Minute, nil)
	ctx := context.Background()

	alerted, err := g.CheckAndAlert(ctx, testMember, 15)
	require.NoError(t, err)
	require.True(t, alerted)

	alerted, err = g.CheckAndAlert(ctx, testMember, 12)
	require.NoError(t, err)
	require.False(t, alerted)

	alerts, err := s.BatteryAlerts(ctx, testMember.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, 15, alerts[0].BatteryLevel)
	require.Equal(t, "Dana", alerts[0].MemberName)
}

// TestCooldownExpiryAllowsNextAlert verifies a fresh alert fires after the
// cooldown elapses.
func TestCooldownExpiryAllowsNextAlert(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	g := NewGuard(s, 20, 50*time.Millisecond, nil)
	ctx := context.Background()

	alerted, err := g.CheckAndAlert(ctx, testMember, 15)
	require.NoError(t, err)
	require.True(t, alerted)

	time.Sleep(80 * time.Millisecond)

	alerted, err = g.CheckAndAlert(ctx, testMember, 14)
	require.NoError(t, err)
	require.True(t, alerted)

	alerts, err := s.BatteryAlerts(ctx, testMember.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
}

// TestCooldownIsPerMember verifies one member's cooldown does not throttle
// another member.
func TestCooldownIsPerMember(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	g := NewGuard(s, 20, 30*time.Minute, nil)
	ctx := context.Background()

	other := &guard.Member{ID: "mem-2", FamilyID: "fam-1", Name: "Riley"}

	alerted, err := g.CheckAndAlert(ctx, testMember, 15)
	require.NoError(t, err)
	require.True(t, alerted)

	alerted, err = g.CheckAndAlert(ctx, other, 10)
	require.NoError(t, err)
	require.True(t, alerted)
}
