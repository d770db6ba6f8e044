// Package sampler acquires member positions on an interval and from a
// continuous watch, and feeds accepted fixes into transition detection,
// persistence, and the battery guard.
package sampler
