// Package metrics exposes Prometheus instrumentation for the reservation
// subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReservationsCreated  prometheus.Counter
	ReservationsRejected *prometheus.CounterVec
	HoldsConfirmed       prometheus.Counter
	HoldsReleased        prometheus.Counter
	HoldsReaped          prometheus.Counter
	SweepFailures        prometheus.Counter
	ReserveDuration      prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReservationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "crossdock_reservations_created_total",
			Help: "Holds successfully created, counting each batch item separately.",
		}),
		ReservationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crossdock_reservations_rejected_total",
			Help: "Reservation attempts rejected, by reason.",
		}, []string{"reason"}),
		HoldsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "crossdock_holds_confirmed_total",
			Help: "Holds converted into permanent stock decrements.",
		}),
		HoldsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "crossdock_holds_released_total",
			Help: "Holds released back to available stock by callers.",
		}),
		HoldsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "crossdock_holds_reaped_total",
			Help: "Expired holds reclaimed by the background sweep.",
		}),
		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "crossdock_sweep_failures_total",
			Help: "Individual holds the sweep failed to reclaim.",
		}),
		ReserveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crossdock_reserve_duration_seconds",
			Help:    "Latency of reserve operations including lock wait.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Rejection reasons.
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonNotFound          = "not_found"
	ReasonValidation        = "validation"
)
