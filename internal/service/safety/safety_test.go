package safety

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/repository/store"
)

// newProtocol builds a protocol over a throwaway store with two members:
// mem-parent (requester) and mem-child (target, PIN 1234).
func newProtocol(t *testing.T) (*Protocol, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "safety.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, &guard.Member{
		ID: "mem-parent", FamilyID: "fam-1", Name: "Ira",
	}))
	require.NoError(t, s.Insert(ctx, &guard.Member{
		ID: "mem-child", FamilyID: "fam-1", Name: "Dana", PIN: "1234",
	}))

	return NewProtocol(s), s
}

// TestResolveNormalPIN verifies the configured PIN resolves without raising
// an emergency.
func TestResolveNormalPIN(t *testing.T) {
	t.Parallel()

	p, _ := newProtocol(t)
	ctx := context.Background()

	check, err := p.RequestCheck(ctx, "mem-parent", "mem-child", "fam-1")
	require.NoError(t, err)
	require.Equal(t, guard.CheckPending, check.Status)
	require.False(t, check.RequestedAt.IsZero())

	resolved, err := p.Resolve(ctx, check.ID, "mem-child", "1234")
	require.NoError(t, err)
	require.Equal(t, guard.CheckOK, resolved.Status)
	require.Equal(t, guard.PINNormal, resolved.PINUsed)
	require.False(t, resolved.IsSilentEmergency)
	require.Equal(t, guard.EmergencyNone, resolved.EmergencyType)
	require.NotNil(t, resolved.RespondedAt)
}

// TestResolveReversePIN verifies the digit-reversal resolves like a normal
// acknowledgement but flags a silent emergency.
func TestResolveReversePIN(t *testing.T) {
	t.Parallel()

	p, _ := newProtocol(t)
	ctx := context.Background()

	check, err := p.RequestCheck(ctx, "mem-parent", "mem-child", "fam-1")
	require.NoError(t, err)

	resolved, err := p.Resolve(ctx, check.ID, "mem-child", "4321")
	require.NoError(t, err)
	require.Equal(t, guard.CheckOK, resolved.Status)
	require.Equal(t, guard.PINReverse, resolved.PINUsed)
	require.True(t, resolved.IsSilentEmergency)
	require.Equal(t, guard.EmergencySilent, resolved.EmergencyType)
}

// TestResolveWrongPIN verifies a wrong PIN leaves the check pending and the
// target can retry.
func TestResolveWrongPIN(t *testing.T) {
	t.Parallel()

	p, s := newProtocol(t)
	ctx := context.Background()

	check, err := p.RequestCheck(ctx, "mem-parent", "mem-child", "fam-1")
	require.NoError(t, err)

	_, err = p.Resolve(ctx, check.ID, "mem-child", "0000")
	require.ErrorIs(t, err, ErrInvalidPIN)

	loaded, err := s.SafetyCheck(ctx, check.ID)
	require.NoError(t, err)
	require.Equal(t, guard.CheckPending, loaded.Status)

	// Retry with the right PIN still works.
	resolved, err := p.Resolve(ctx, check.ID, "mem-child", "1234")
	require.NoError(t, err)
	require.True(t, resolved.Resolved())
}

// TestResolveTwiceRejected verifies a resolved check cannot transition again.
func TestResolveTwiceRejected(t *testing.T) {
	t.Parallel()

	p, _ := newProtocol(t)
	ctx := context.Background()

	check, err := p.RequestCheck(ctx, "mem-parent", "mem-child", "fam-1")
	require.NoError(t, err)

	_, err = p.Resolve(ctx, check.ID, "mem-child", "1234")
	require.NoError(t, err)

	_, err = p.Resolve(ctx, check.ID, "mem-child", "4321")
	require.ErrorIs(t, err, ErrCheckResolved)
}

// TestResolveGuards verifies unknown checks, wrong targets and missing PINs
// are rejected without state change.
func TestResolveGuards(t *testing.T) {
	t.Parallel()

	p, s := newProtocol(t)
	ctx := context.Background()

	_, err := p.Resolve(ctx, "no-such-check", "mem-child", "1234")
	require.ErrorIs(t, err, ErrCheckNotFound)

	check, err := p.RequestCheck(ctx, "mem-parent", "mem-child", "fam-1")
	require.NoError(t, err)

	_, err = p.Resolve(ctx, check.ID, "mem-parent", "1234")
	require.ErrorIs(t, err, ErrNotYourCheck)

	// Target without a configured PIN.
	require.NoError(t, s.Insert(ctx, &guard.Member{
		ID: "mem-nopin", FamilyID: "fam-1", Name: "Sam",
	}))

	noPin, err := p.RequestCheck(ctx, "mem-parent", "mem-nopin", "fam-1")
	require.NoError(t, err)

	_, err = p.Resolve(ctx, noPin.ID, "mem-nopin", "anything")
	require.ErrorIs(t, err, ErrNoPINConfigured)
}

// TestActivateExplicitEmergency verifies the one-step self-activation path.
func TestActivateExplicitEmergency(t *testing.T) {
	t.Parallel()

	p, _ := newProtocol(t)
	ctx := context.Background()

	check, err := p.ActivateExplicitEmergency(ctx, "mem-child", "fam-1")
	require.NoError(t, err)
	require.Equal(t, guard.CheckOK, check.Status)
	require.Equal(t, guard.EmergencyExplicit, check.EmergencyType)
	require.Equal(t, check.RequesterID, check.TargetID)
	require.NotNil(t, check.RespondedAt)
	require.False(t, check.IsSilentEmergency)

	// Already resolved; no second transition exists.
	_, err = p.Resolve(ctx, check.ID, "mem-child", "1234")
	require.ErrorIs(t, err, ErrCheckResolved)
}
