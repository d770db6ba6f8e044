// Package safety implements the duress-code check protocol.
//
// A requester opens a pending check; the target resolves it with either
// their configured PIN (normal acknowledgement) or its digit-reversal (a
// silent emergency indistinguishable from the normal case on the target's
// side). Explicit emergencies skip the pending state entirely.
package safety
