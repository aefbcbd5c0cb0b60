package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zenteach",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by status.",
		},
		[]string{"status"},
	)

	reservationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zenteach",
			Name:      "reservation_rejected_total",
			Help:      "Count of booking attempts rejected by business rules, by reason.",
		},
		[]string{"reason"},
	)

	reservationTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zenteach",
			Name:      "reservation_transition_total",
			Help:      "Count of reservation status transitions by target status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zenteach",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, reservationRejected, reservationTransition, httpRequests)
	})
}

func IncReservationCreated(status string) {
	reservationCreated.WithLabelValues(status).Inc()
}

func IncReservationRejected(reason string) {
	reservationRejected.WithLabelValues(reason).Inc()
}

func IncReservationTransition(status string) {
	reservationTransition.WithLabelValues(status).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
