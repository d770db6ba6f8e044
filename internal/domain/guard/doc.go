// Package guard contains core domain types for the family safety logic.
//
// It defines the records persisted by the detector (location samples, zone
// events, safety checks, battery alerts) and the value types flowing between
// components (coordinates, safe zones, members). Mutable records expose
// Clone helpers to avoid leaking internal references.
package guard
