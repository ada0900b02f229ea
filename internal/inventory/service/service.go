// Package service implements the transactional core of the reservation
// subsystem: reserve, confirm, release, batch reservation and the queries
// behind the read-only API surface.
package service

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"crossdock/internal/inventory/metrics"
	"crossdock/internal/inventory/store"
)

const DefaultHoldTTL = 30 * time.Minute

// Service coordinates inventory mutations. All synchronization is delegated
// to the store's row locks; the service itself holds no mutable state.
type Service struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	holdTTL time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHoldTTL overrides how long a hold stays valid before the reaper may
// reclaim it.
func WithHoldTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.holdTTL = ttl
		}
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		logger:  slog.Default(),
		tracer:  otel.Tracer("crossdock/inventory"),
		holdTTL: DefaultHoldTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReserveInput identifies the stock to hold and how much of it.
type ReserveInput struct {
	ProductID     string
	WarehouseCode string
	ShipmentRef   string
	Quantity      int
}

// BatchItem is one line of an all-or-nothing batch reservation.
type BatchItem struct {
	ProductID     string
	WarehouseCode string
	Quantity      int
}
