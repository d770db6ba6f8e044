package safety

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/logger"
	"github.com/oshokin/family-guard/internal/repository/store"
)

var (
	// ErrCheckNotFound is returned when the check id is unknown.
	ErrCheckNotFound = errors.New("safety check not found")
	// ErrNotYourCheck is returned when someone other than the target resolves.
	ErrNotYourCheck = errors.New("check addressed to another member")
	// ErrCheckResolved is returned on a second resolve of an ok check.
	ErrCheckResolved = errors.New("check already resolved")
	// ErrInvalidPIN is returned when the entered PIN matches neither secret.
	// The check stays pending; the target may retry.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrNoPINConfigured is returned when the target has no PIN set up.
	ErrNoPINConfigured = errors.New("target has no pin configured")
)

// Protocol runs the duress-code safety check flow.
//
// A resolved check never reveals to the target's own session whether the
// normal or the reverse PIN was used; the distinction surfaces only to the
// rest of the family through the alert fanout.
type Protocol struct {
	store *store.Store
}

// NewProtocol creates the protocol backed by the provided store.
func NewProtocol(st *store.Store) *Protocol {
	return &Protocol{
		store: st,
	}
}

// RequestCheck opens a pending check asking the target to confirm they are
// safe.
func (p *Protocol) RequestCheck(ctx context.Context, requesterID, targetID, familyID string) (*guard.SafetyCheck, error) {
	check := &guard.SafetyCheck{
		FamilyID:    familyID,
		RequesterID: requesterID,
		TargetID:    targetID,
		Status:      guard.CheckPending,
	}

	if err := p.store.Insert(ctx, check); err != nil {
		return nil, fmt.Errorf("create safety check: %w", err)
	}

	logger.InfoKV(ctx, "Safety check requested",
		"check_id", check.ID, "requester_id", requesterID, "target_id", targetID)

	return check, nil
}

// Resolve processes the target's PIN entry for a pending check.
//
// The configured PIN resolves normally; its digit-reversal resolves
// identically from the target's point of view but marks a silent emergency.
// Any other input leaves the check pending and returns ErrInvalidPIN.
// A palindromic PIN always matches the normal branch first, so it cannot
// raise a silent emergency.
func (p *Protocol) Resolve(ctx context.Context, checkID, targetID, enteredPIN string) (*guard.SafetyCheck, error) {
	check, err := p.store.SafetyCheck(ctx, checkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCheckNotFound
		}

		return nil, fmt.Errorf("load safety check: %w", err)
	}

	if check.TargetID != targetID {
		return nil, ErrNotYourCheck
	}

	if check.Resolved() {
		return nil, ErrCheckResolved
	}

	target, err := p.store.Member(ctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotYourCheck
		}

		return nil, fmt.Errorf("load target member: %w", err)
	}

	if target.PIN == "" {
		return nil, ErrNoPINConfigured
	}

	var (
		pinUsed       guard.PINKind
		emergencyType guard.EmergencyType
	)

	switch enteredPIN {
	case target.PIN:
		pinUsed = guard.PINNormal
		emergencyType = guard.EmergencyNone
	case guard.ReversePIN(target.PIN):
		pinUsed = guard.PINReverse
		emergencyType = guard.EmergencySilent
	default:
		// No state change; the caller prompts for another attempt.
		return nil, ErrInvalidPIN
	}

	// The pending guard makes the pending -> ok transition happen exactly
	// once even when two resolves race.
	resolved, err := p.store.UpdateSafetyCheck(ctx, check.ID,
		map[string]any{
			"status":              string(guard.CheckOK),
			"pin_used":            string(pinUsed),
			"is_silent_emergency": pinUsed == guard.PINReverse,
			"emergency_type":      string(emergencyType),
			"responded_at":        time.Now(),
		},
		map[string]any{"status": string(guard.CheckPending)})
	if err != nil {
		if errors.Is(err, store.ErrNoRowsMatched) {
			return nil, ErrCheckResolved
		}

		return nil, fmt.Errorf("resolve safety check: %w", err)
	}

	// Deliberately identical log line for both branches: nothing observable
	// on this code path may differ between a normal and a duress resolve.
	logger.InfoKV(ctx, "Safety check resolved", "check_id", check.ID)

	return resolved, nil
}

// ActivateExplicitEmergency creates an already-resolved self-reported
// emergency check, bypassing the pending state and any PIN.
func (p *Protocol) ActivateExplicitEmergency(ctx context.Context, memberID, familyID string) (*guard.SafetyCheck, error) {
	now := time.Now()
	check := &guard.SafetyCheck{
		FamilyID:      familyID,
		RequesterID:   memberID,
		TargetID:      memberID,
		Status:        guard.CheckOK,
		EmergencyType: guard.EmergencyExplicit,
		RequestedAt:   now,
		RespondedAt:   &now,
	}

	if err := p.store.Insert(ctx, check); err != nil {
		return nil, fmt.Errorf("create emergency: %w", err)
	}

	logger.WarnKV(ctx, "Explicit emergency activated",
		"check_id", check.ID, "member_id", memberID)

	return check, nil
}
