package guard

// Member identifies a person within one family.
// Members are provisioned elsewhere; this core only reads them.
type Member struct {
	// ID is the member identifier.
	ID string `gorm:"primaryKey"`
	// FamilyID identifies the family the member belongs to.
	FamilyID string `gorm:"index"`
	// Name is the display name used in alert text.
	Name string
	// Role describes the member's position in the family (parent, child, ...).
	Role string
	// PIN is the configured safety-check PIN. Empty when none is set.
	// Its digit-reversal acts as the duress code and is never stored.
	PIN string
}

// Clone returns a copy of the member.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}

	cloned := *m

	return &cloned
}

// ReversePIN returns the digit-reversal of the provided PIN.
// For a palindromic PIN the reversal equals the original, so such a PIN
// cannot act as a duress code.
func ReversePIN(pin string) string {
	runes := []rune(pin)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes)
}
