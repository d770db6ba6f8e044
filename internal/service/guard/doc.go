// Package guard is the facade tying the family-guard services together:
// zone catalog, transition tracking, location sampling, battery alerts,
// safety checks, and the alert fanout, for one family over one store.
package guard
