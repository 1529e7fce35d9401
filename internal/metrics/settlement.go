package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement records checkout, payment and bill transition activity.
type Settlement struct {
	payments    *prometheus.CounterVec
	tendered    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	remote      *prometheus.HistogramVec
	remoteFail  *prometheus.CounterVec
}

// NewSettlement registers the settlement metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSettlement(reg prometheus.Registerer) *Settlement {
	if reg == nil {
		return &Settlement{}
	}
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_payments_total",
		Help: "Payment attempts by method and outcome.",
	}, []string{"method", "outcome"})
	tendered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_payments_recorded_minor_units_total",
		Help: "Amount recorded against bills in minor units.",
	}, []string{"method"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_bill_transitions_total",
		Help: "Bill lifecycle transitions by target status.",
	}, []string{"status"})
	remote := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "salonpos_remote_call_duration_seconds",
		Help:    "Duration of bill service calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	remoteFail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salonpos_remote_call_failures_total",
		Help: "Failed bill service calls by operation and error kind.",
	}, []string{"op", "kind"})
	reg.MustRegister(payments, tendered, transitions, remote, remoteFail)
	return &Settlement{
		payments:    payments,
		tendered:    tendered,
		transitions: transitions,
		remote:      remote,
		remoteFail:  remoteFail,
	}
}

// ObservePayment counts a payment attempt.
func (s *Settlement) ObservePayment(method, outcome string) {
	if s == nil || s.payments == nil {
		return
	}
	s.payments.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// AddRecorded adds the amount actually recorded against a bill.
func (s *Settlement) AddRecorded(method string, amountCents int64) {
	if s == nil || s.tendered == nil || amountCents <= 0 {
		return
	}
	s.tendered.WithLabelValues(normalizeLabel(method)).Add(float64(amountCents))
}

// IncTransition counts a bill entering status.
func (s *Settlement) IncTransition(status string) {
	if s == nil || s.transitions == nil {
		return
	}
	s.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveRemote records the duration of a bill service call and, when kind is
// non-empty, a failure of that kind.
func (s *Settlement) ObserveRemote(op string, duration time.Duration, kind string) {
	if s == nil || s.remote == nil {
		return
	}
	s.remote.WithLabelValues(normalizeLabel(op)).Observe(duration.Seconds())
	if kind != "" {
		s.remoteFail.WithLabelValues(normalizeLabel(op), kind).Inc()
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
