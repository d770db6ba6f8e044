package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/family-guard/internal/domain/guard"
)

// RoutePoint is one scripted position fix in a replay route file.
type RoutePoint struct {
	// Latitude in decimal degrees.
	Latitude float64 `yaml:"lat"`
	// Longitude in decimal degrees.
	Longitude float64 `yaml:"lng"`
	// Accuracy in meters. Zero means a perfect fix.
	Accuracy float64 `yaml:"accuracy"`
}

// Replay is a locator that walks a fixed route, point by point.
// GetOnce returns the next point on every call and wraps around at the end.
// It exists for the daemon's demo mode and for tests; it never fails.
type Replay struct {
	// cadence is the push interval used by watch sessions.
	cadence time.Duration

	mu     sync.Mutex
	points []RoutePoint
	next   int
}

// NewReplay creates a replay locator over the provided points.
func NewReplay(points []RoutePoint, cadence time.Duration) *Replay {
	return &Replay{
		cadence: cadence,
		points:  points,
	}
}

// LoadRoute reads a YAML route file (a list of lat/lng/accuracy points) and
// builds a replay locator with the provided watch cadence.
func LoadRoute(path string, cadence time.Duration) (*Replay, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}

	var points []RoutePoint
	if err := yaml.Unmarshal(contents, &points); err != nil {
		return nil, fmt.Errorf("unmarshal route: %w", err)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("route %s: %w", path, ErrPositionUnavailable)
	}

	return NewReplay(points, cadence), nil
}

// GetOnce returns the next scripted point.
func (r *Replay) GetOnce(_ context.Context, _ Options) (guard.Coordinate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.points) == 0 {
		return guard.Coordinate{}, ErrPositionUnavailable
	}

	point := r.points[r.next]
	r.next = (r.next + 1) % len(r.points)

	return guard.Coordinate{
		Latitude:   point.Latitude,
		Longitude:  point.Longitude,
		Accuracy:   point.Accuracy,
		CapturedAt: time.Now(),
	}, nil
}

// Watch pushes scripted points at the replay cadence until stopped.
func (r *Replay) Watch(_ Options, onUpdate UpdateFunc, _ ErrorFunc) (Watch, error) {
	w := &replayWatch{
		done: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(r.cadence)
		defer ticker.Stop()

		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				coordinate, err := r.GetOnce(context.Background(), Options{})
				if err != nil {
					continue
				}

				w.push(onUpdate, coordinate)
			}
		}
	}()

	return w, nil
}

// replayWatch delivers updates until stopped. The mutex around push makes
// the no-callback-after-Stop guarantee hold even with a tick in flight.
type replayWatch struct {
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func (w *replayWatch) push(onUpdate UpdateFunc, coordinate guard.Coordinate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	onUpdate(coordinate)
}

// Stop ends the session.
func (w *replayWatch) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	w.stopped = true
	close(w.done)
}
