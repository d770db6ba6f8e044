package guard

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/family-guard/internal/config"
	"github.com/oshokin/family-guard/internal/locator"
	"github.com/oshokin/family-guard/internal/logger"
	"github.com/oshokin/family-guard/internal/metrics"
	"github.com/oshokin/family-guard/internal/repository/store"
	"github.com/oshokin/family-guard/internal/service/sampler"
)

// RunOptions controls the guard daemon.
type RunOptions struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// RoutePath provides an optional replay-route file override.
	RoutePath string
}

// Run starts tracking the configured members and serves alerts until the
// context is canceled.
func Run(ctx context.Context, opts *RunOptions) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "family-guard")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	// Determine route file: command line argument overrides config.
	routePath := cfg.RoutePath
	if opts.RoutePath != "" {
		routePath = opts.RoutePath
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	// Ensure store cleanup on function exit.
	defer func() {
		_ = st.Close()
	}()

	loc, err := locator.LoadRoute(routePath, cfg.SampleInterval)
	if err != nil {
		return fmt.Errorf("load route: %w", err)
	}

	service := NewService(st, loc, Options{
		FamilyID: cfg.FamilyID,
		Sampler: sampler.Config{
			Interval:             cfg.SampleInterval,
			LocatorTimeout:       cfg.LocatorTimeout,
			PersistTimeout:       cfg.PersistTimeout,
			WatchAccuracyCeiling: cfg.WatchAccuracyCeiling,
		},
		BatteryThreshold: cfg.BatteryThreshold,
		BatteryCooldown:  cfg.BatteryCooldown,
		AlertDedupWindow: cfg.AlertDedupWindow,
		SeedFromHistory:  true,
		Metrics:          metrics.New(prometheus.DefaultRegisterer),
	})

	// Stop every sampling session before the store closes.
	defer service.Shutdown()

	for _, memberID := range cfg.TrackedMembers {
		if err = service.StartTracking(ctx, memberID, sampler.StartOptions{}); err != nil {
			logger.ErrorKV(ctx, "Start tracking failed", "member_id", memberID, "error", err)
			continue
		}

		logger.InfoKV(ctx, "Tracking member", "member_id", memberID)
	}

	logger.InfoKV(ctx, "Guard running",
		"family_id", cfg.FamilyID, "interval", cfg.SampleInterval.String())

	// Block until context cancellation.
	<-ctx.Done()

	logger.Info(ctx, "Context canceled, exiting")

	return nil
}
