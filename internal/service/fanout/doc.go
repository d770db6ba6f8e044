// Package fanout delivers store changes to live family sessions.
//
// Each session subscribes to its family's change feed, classifies zone
// events, safety checks and battery alerts relative to its own member,
// de-duplicates near-identical zone alerts within a short window, and keeps
// a small bounded feed of recent alerts.
package fanout
