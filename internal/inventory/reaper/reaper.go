// Package reaper implements the background sweep that reclaims expired
// reservation holds.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"crossdock/internal/inventory/metrics"
	"crossdock/internal/inventory/service"
)

const (
	DefaultInterval   = 5 * time.Minute
	DefaultSweepLimit = 500
)

// Reaper periodically releases holds past their deadline. Each hold is
// reclaimed in its own transaction so one failure cannot block the rest of
// the sweep, and a hold settled concurrently by confirm or release is simply
// skipped.
type Reaper struct {
	svc      *service.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	limit    int
}

type Option func(*Reaper)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) { r.metrics = m }
}

func WithInterval(interval time.Duration) Option {
	return func(r *Reaper) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithSweepLimit caps how many expired holds one sweep processes.
func WithSweepLimit(limit int) Option {
	return func(r *Reaper) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

func New(svc *service.Service, opts ...Option) *Reaper {
	r := &Reaper{
		svc:      svc,
		logger:   slog.Default(),
		interval: DefaultInterval,
		limit:    DefaultSweepLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "expiry reaper started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "expiry reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep reclaims every currently expired hold, up to the sweep limit. Errors
// are logged per hold and never propagated: the sweep is fire-and-forget and
// the next tick retries whatever is left.
func (r *Reaper) Sweep(ctx context.Context) {
	holds, err := r.svc.ExpiredHolds(ctx, r.limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "sweep failed to list expired holds", "error", err)
		return
	}
	if len(holds) == 0 {
		return
	}

	reaped := 0
	for _, hold := range holds {
		ok, err := r.svc.ReapExpiredHold(ctx, hold)
		if err != nil {
			if r.metrics != nil {
				r.metrics.SweepFailures.Inc()
			}
			r.logger.ErrorContext(ctx, "failed to reap expired hold",
				"hold_id", hold.ID,
				"shipment_ref", hold.ShipmentRef,
				"error", err,
			)
			continue
		}
		if ok {
			reaped++
		}
	}
	r.logger.InfoContext(ctx, "sweep complete", "expired", len(holds), "reaped", reaped)
}
