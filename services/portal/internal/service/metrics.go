package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CartMutations counts cart writes by operation.
	CartMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cart_mutations_total",
			Help: "Total number of cart mutations that changed the cart",
		},
		[]string{"op"},
	)

	// CartRemoteChanges counts replica notifications by how they were handled.
	CartRemoteChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cart_remote_changes_total",
			Help: "Total number of cart change notifications received from storage",
		},
		[]string{"result"},
	)

	// PaymentInitAttempts counts initialization attempts by outcome.
	PaymentInitAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_payment_init_attempts_total",
			Help: "Total number of payment initialization attempts",
		},
		[]string{"outcome"},
	)

	// PaymentSessions counts payment sessions by terminal state.
	PaymentSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_payment_sessions_total",
			Help: "Total number of payment sessions by terminal state",
		},
		[]string{"state"},
	)

	// PaymentAttemptDuration observes the duration of single initialization calls.
	PaymentAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_payment_init_attempt_duration_seconds",
			Help:    "Duration of payment initialization calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"outcome"},
	)

	// Checkouts counts checkout requests by result.
	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_checkouts_total",
			Help: "Total number of checkout requests by result",
		},
		[]string{"result"},
	)
)
