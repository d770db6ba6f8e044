package guard

import "time"

// CheckStatus is the lifecycle state of a safety check.
// The only transition is pending -> ok; resolved checks are immutable.
type CheckStatus string

const (
	// CheckPending means the target has not acknowledged yet.
	CheckPending CheckStatus = "pending"
	// CheckOK means the target acknowledged with a recognized PIN.
	CheckOK CheckStatus = "ok"
)

// PINKind records which secret the target entered when resolving a check.
type PINKind string

const (
	// PINNormal is the member's configured PIN.
	PINNormal PINKind = "normal"
	// PINReverse is the digit-reversal of the configured PIN, the duress code.
	PINReverse PINKind = "reverse"
)

// EmergencyType classifies an emergency raised through the check protocol.
type EmergencyType string

const (
	// EmergencyNone means the check resolved without raising an emergency.
	EmergencyNone EmergencyType = ""
	// EmergencySilent is raised by the duress PIN. The target's session shows
	// a normal acknowledgement; only the rest of the family learns the truth.
	EmergencySilent EmergencyType = "silent"
	// EmergencyExplicit is a self-reported emergency, no PIN involved.
	EmergencyExplicit EmergencyType = "explicit"
)

// SafetyCheck is one run of the duress-code protocol.
type SafetyCheck struct {
	// ID is the check identifier, assigned at insert.
	ID string `gorm:"primaryKey"`
	// FamilyID identifies the family, used to scope fanout delivery.
	FamilyID string `gorm:"index"`
	// RequesterID is who asked for the check. Equals TargetID for
	// explicit self-activated emergencies.
	RequesterID string `gorm:"index"`
	// TargetID is who must acknowledge.
	TargetID string `gorm:"index"`
	// Status is pending until the target enters a recognized PIN.
	Status CheckStatus
	// PINUsed records which secret resolved the check. Empty while pending.
	PINUsed PINKind
	// IsSilentEmergency is true iff the duress PIN was used.
	IsSilentEmergency bool
	// EmergencyType is silent, explicit, or empty.
	EmergencyType EmergencyType
	// RequestedAt is when the check was created.
	RequestedAt time.Time
	// RespondedAt is when the check resolved. Nil while pending.
	RespondedAt *time.Time
}

// Clone returns a copy of the check to avoid leaking internal references.
func (c *SafetyCheck) Clone() *SafetyCheck {
	if c == nil {
		return nil
	}

	cloned := *c
	if c.RespondedAt != nil {
		respondedAt := *c.RespondedAt
		cloned.RespondedAt = &respondedAt
	}

	return &cloned
}

// Resolved reports whether the check has left the pending state.
func (c *SafetyCheck) Resolved() bool {
	return c.Status == CheckOK
}
