// Package locator defines the position-acquisition contract and a scripted
// replay implementation.
//
// Production deployments plug a device geolocation API in behind the
// Locator interface; the replay locator drives the daemon's demo mode and
// the sampler tests.
package locator
