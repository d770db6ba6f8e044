// Package geo computes great-circle distances and circular-zone containment.
//
// All functions are pure: no I/O, no side effects. Coordinates are decimal
// degrees, distances and radii are meters.
package geo
