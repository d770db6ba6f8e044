package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/family-guard/internal/domain/guard"
	"github.com/oshokin/family-guard/internal/locator"
	"github.com/oshokin/family-guard/internal/logger"
	"github.com/oshokin/family-guard/internal/metrics"
	"github.com/oshokin/family-guard/internal/repository/store"
	"github.com/oshokin/family-guard/internal/service/battery"
	"github.com/oshokin/family-guard/internal/service/tracker"
)

// Config tunes the sampling loops. Zero values fall back to the defaults.
type Config struct {
	// Interval between one-shot acquisitions.
	Interval time.Duration
	// LocatorTimeout bounds a single acquisition.
	LocatorTimeout time.Duration
	// PersistTimeout bounds a single store write.
	PersistTimeout time.Duration
	// WatchAccuracyCeiling discards continuous-watch fixes with worse
	// accuracy. Interval fixes are always accepted.
	WatchAccuracyCeiling float64
}

const (
	defaultInterval             = 30 * time.Second
	defaultLocatorTimeout       = 10 * time.Second
	defaultPersistTimeout       = 5 * time.Second
	defaultWatchAccuracyCeiling = 100
)

// withDefaults fills the zero-valued tunables.
func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}

	if c.LocatorTimeout <= 0 {
		c.LocatorTimeout = defaultLocatorTimeout
	}

	if c.PersistTimeout <= 0 {
		c.PersistTimeout = defaultPersistTimeout
	}

	if c.WatchAccuracyCeiling <= 0 {
		c.WatchAccuracyCeiling = defaultWatchAccuracyCeiling
	}

	return c
}

// Callbacks are the per-session hooks registered by the caller.
// Both are optional and must be fast; they run on the sampling goroutines.
type Callbacks struct {
	// OnLocationUpdate fires after every accepted and processed sample.
	OnLocationUpdate func(guard.LocationSample)
	// OnError fires on acquisition failures. The loop continues regardless.
	OnError func(error)
}

// StartOptions configures one member's tracking session.
type StartOptions struct {
	// Interval overrides the sampler-wide acquisition interval.
	Interval time.Duration
	// BatteryLevel, when set, reports the device battery percentage at
	// sample time. The level is stored with the sample and routed through
	// the battery guard.
	BatteryLevel func() (int, bool)
	// Callbacks are the session hooks.
	Callbacks Callbacks
}

// session is one member's running acquisition pair (interval loop + watch).
type session struct {
	cancel context.CancelFunc
	watch  locator.Watch
	wg     *sync.WaitGroup

	// mu and stopped gate the callbacks so none fires after Stop returns,
	// even if the locator misbehaves.
	mu      sync.RWMutex
	stopped bool
}

// Sampler drives interval and continuous-watch position acquisition per
// member and feeds accepted samples to the transition tracker, persistence,
// and the battery guard.
type Sampler struct {
	store        *store.Store
	catalog      *tracker.Catalog
	tracker      *tracker.Tracker
	batteryGuard *battery.Guard
	locator      locator.Locator
	metrics      *metrics.Metrics
	cfg          Config

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a sampler. batteryGuard and m may be nil.
func New(
	st *store.Store,
	catalog *tracker.Catalog,
	tr *tracker.Tracker,
	batteryGuard *battery.Guard,
	loc locator.Locator,
	m *metrics.Metrics,
	cfg Config,
) *Sampler {
	return &Sampler{
		store:        st,
		catalog:      catalog,
		tracker:      tr,
		batteryGuard: batteryGuard,
		locator:      loc,
		metrics:      m,
		cfg:          cfg.withDefaults(),
		sessions:     make(map[string]*session),
	}
}

// Start begins tracking the member. Calling it for a member already being
// tracked is a no-op with a logged warning. The session outlives ctx's
// cancellation scope and runs until Stop.
func (s *Sampler) Start(ctx context.Context, member *guard.Member, opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.sessions[member.ID]; running {
		logger.WarnKV(ctx, "Tracking already active, ignoring start",
			"member_id", member.ID)

		return nil
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = s.cfg.Interval
	}

	// Sessions are stopped explicitly, not by the caller's request context.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sessionCtx = logger.WithKV(sessionCtx, "member_id", member.ID)

	sess := &session{
		cancel: cancel,
		wg:     &sync.WaitGroup{},
	}

	sess.wg.Add(1)

	go s.intervalLoop(sessionCtx, sess, member, interval, opts)

	watch, err := s.locator.Watch(
		locator.Options{AccuracyHint: s.cfg.WatchAccuracyCeiling},
		func(coordinate guard.Coordinate) {
			// Very coarse pushed fixes are discarded before they can smear
			// zone membership.
			if coordinate.Accuracy > s.cfg.WatchAccuracyCeiling {
				logger.DebugKV(sessionCtx, "Discarding low-accuracy watch fix",
					"accuracy", coordinate.Accuracy)

				return
			}

			sess.guarded(func() {
				s.process(sessionCtx, member, coordinate, opts)
			})
		},
		func(watchErr error) {
			sess.guarded(func() {
				s.reportError(sessionCtx, opts.Callbacks, watchErr)
			})
		},
	)
	if err != nil {
		cancel()
		sess.wg.Wait()

		return fmt.Errorf("start watch: %w", err)
	}

	sess.watch = watch
	s.sessions[member.ID] = sess

	logger.InfoKV(ctx, "Tracking started",
		"member_id", member.ID, "interval", interval.String())

	return nil
}

// Stop ends the member's tracking session. It is safe to call from any
// goroutine and guarantees no session callback fires after it returns.
// Stopping a member that is not being tracked is a no-op.
func (s *Sampler) Stop(memberID string) {
	s.mu.Lock()
	sess, running := s.sessions[memberID]
	delete(s.sessions, memberID)
	s.mu.Unlock()

	if !running {
		return
	}

	// Order matters: kill the sources first, then close the callback gate.
	sess.cancel()

	if sess.watch != nil {
		sess.watch.Stop()
	}

	sess.wg.Wait()

	sess.mu.Lock()
	sess.stopped = true
	sess.mu.Unlock()
}

// StopAll ends every running session.
func (s *Sampler) StopAll() {
	s.mu.Lock()
	memberIDs := make([]string, 0, len(s.sessions))
	for memberID := range s.sessions {
		memberIDs = append(memberIDs, memberID)
	}
	s.mu.Unlock()

	for _, memberID := range memberIDs {
		s.Stop(memberID)
	}
}

// Tracking reports whether the member currently has a running session.
func (s *Sampler) Tracking(memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, running := s.sessions[memberID]

	return running
}

// intervalLoop performs one-shot acquisitions on every tick.
func (s *Sampler) intervalLoop(
	ctx context.Context,
	sess *session,
	member *guard.Member,
	interval time.Duration,
	opts StartOptions,
) {
	defer sess.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx, member, opts)
		}
	}
}

// sampleOnce acquires a single fix and processes it. Failures are reported
// and the loop waits for the next tick; there is no retry schedule.
func (s *Sampler) sampleOnce(ctx context.Context, member *guard.Member, opts StartOptions) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.cfg.LocatorTimeout)
	defer cancel()

	coordinate, err := s.locator.GetOnce(acquireCtx, locator.Options{
		Timeout: s.cfg.LocatorTimeout,
	})
	if err != nil {
		s.reportError(ctx, opts.Callbacks, err)

		return
	}

	s.process(ctx, member, coordinate, opts)
}

// process runs one accepted coordinate through the transition tracker,
// persists the sample, routes the battery level, and fires the update hook.
func (s *Sampler) process(ctx context.Context, member *guard.Member, coordinate guard.Coordinate, opts StartOptions) {
	persistCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	// Zone evaluation needs the freshest catalog. When the catalog is
	// unreadable the observation is skipped entirely rather than evaluated
	// against an empty set, which would fake an exit from every zone.
	zones, err := s.catalog.Snapshot(persistCtx)
	if err != nil {
		s.reportError(ctx, opts.Callbacks, err)
	} else {
		s.tracker.Observe(ctx, member, coordinate, zones)
	}

	sample := guard.LocationSample{
		FamilyID:    member.FamilyID,
		MemberID:    member.ID,
		Coordinate:  coordinate,
		IsAutomatic: true,
	}

	if opts.BatteryLevel != nil {
		if level, ok := opts.BatteryLevel(); ok {
			sample.BatteryLevel = &level

			if s.batteryGuard != nil {
				if _, alertErr := s.batteryGuard.CheckAndAlert(ctx, member, level); alertErr != nil {
					logger.ErrorKV(ctx, "Battery alert failed", "error", alertErr)
				}
			}
		}
	}

	if err := s.store.Insert(persistCtx, &sample); err != nil {
		// The sample is lost but tracking moves on; membership already
		// advanced inside the tracker.
		s.metrics.PersistenceFailure()
		logger.ErrorKV(ctx, "Failed to persist location sample", "error", err)
	}

	if opts.Callbacks.OnLocationUpdate != nil {
		opts.Callbacks.OnLocationUpdate(sample)
	}
}

// reportError counts the failure and forwards it to the session hook.
func (s *Sampler) reportError(ctx context.Context, callbacks Callbacks, err error) {
	s.metrics.AcquisitionFailure()
	logger.WarnKV(ctx, "Location acquisition failed", "error", err)

	if callbacks.OnError != nil {
		callbacks.OnError(err)
	}
}

// guarded runs fn unless the session has been stopped.
func (sess *session) guarded(fn func()) {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	if sess.stopped {
		return
	}

	fn()
}
