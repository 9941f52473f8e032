// Package metrics exposes Prometheus collectors for the credit engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_credit_reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"})

	releasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_credit_releases_total",
		Help: "Reservation releases by outcome.",
	}, []string{"outcome"})

	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiado_credit_conversions_total",
		Help: "Reservation-to-debit conversions by outcome.",
	}, []string{"outcome"})

	serializableDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiado_credit_serializable_duration_seconds",
		Help:    "Time spent inside the per-pair serialization boundary, including lock wait.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// CountReservation records a reservation attempt outcome.
func CountReservation(outcome string) {
	reservationsTotal.WithLabelValues(outcome).Inc()
}

// CountRelease records a release outcome.
func CountRelease(outcome string) {
	releasesTotal.WithLabelValues(outcome).Inc()
}

// CountConversion records a conversion outcome.
func CountConversion(outcome string) {
	conversionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSerializable records how long an operation held or waited for the
// serialization boundary.
func ObserveSerializable(operation string, d time.Duration) {
	serializableDuration.WithLabelValues(operation).Observe(d.Seconds())
}
