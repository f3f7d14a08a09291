// Package metrics exposes Prometheus instruments for the attendance protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WindowsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "windows_issued_total",
		Help:      "Attendance windows opened or re-issued.",
	})

	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkins_total",
		Help:      "Check-in attempts by outcome and attendance type.",
	}, []string{"outcome", "type"})

	CheckOuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkouts_total",
		Help:      "Check-out attempts by outcome.",
	}, []string{"outcome"})

	GeofenceDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "geofence_distance_meters",
		Help:      "Distance from the window origin for evaluated in-person check-ins.",
		Buckets:   []float64{5, 10, 25, 50, 100, 150, 250, 500, 1000, 5000},
	})

	AuditPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "audit_publish_failures_total",
		Help:      "Audit events that could not be queued.",
	})
)
