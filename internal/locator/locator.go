package locator

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/family-guard/internal/domain/guard"
)

// Acquisition failure taxonomy. All of these are recoverable: the sampler
// reports them and waits for the next tick.
var (
	// ErrTimeout is returned when a fix did not arrive in time.
	ErrTimeout = errors.New("location acquisition timed out")
	// ErrPermissionDenied is returned when the platform refuses access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable is returned when no fix can be produced.
	ErrPositionUnavailable = errors.New("position unavailable")
)

// Options tunes a single acquisition or a watch session.
type Options struct {
	// AccuracyHint asks the device for at least this accuracy in meters.
	// Zero means the device default.
	AccuracyHint float64
	// Timeout bounds a one-shot acquisition. Zero means the locator default.
	Timeout time.Duration
}

// UpdateFunc receives pushed coordinates from a watch session.
type UpdateFunc func(guard.Coordinate)

// ErrorFunc receives acquisition failures from a watch session.
type ErrorFunc func(error)

// Watch is a live continuous-acquisition session.
type Watch interface {
	// Stop ends the session. It is idempotent and guarantees no callback
	// fires after it returns.
	Stop()
}

// Locator yields device position fixes, one-shot or continuously.
// Real device locators live outside this module; tests and the daemon use
// the Replay implementation below.
type Locator interface {
	// GetOnce produces a single coordinate or an acquisition error.
	GetOnce(ctx context.Context, opts Options) (guard.Coordinate, error)
	// Watch starts pushing coordinates to onUpdate until the returned
	// session is stopped. Failures go to onError; the session survives them.
	Watch(opts Options, onUpdate UpdateFunc, onError ErrorFunc) (Watch, error)
}
