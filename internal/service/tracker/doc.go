// Package tracker detects safe-zone transitions.
//
// Catalog manages a family's zones; Tracker holds each member's
// occupied-zone set, diffs it against fresh containment computations, and
// appends one zone event per genuine enter or exit. State is serialized per
// member and local to the process.
package tracker
