// Package metrics registers Prometheus counters for the detector.
//
// Exposition is left to the hosting process; this package only counts.
package metrics
