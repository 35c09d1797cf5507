package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuctionMetrics counts bidding and checkout outcomes.
type AuctionMetrics struct {
	bids            *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
}

// NewAuctionMetrics registers the auction metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewAuctionMetrics(reg prometheus.Registerer) *AuctionMetrics {
	if reg == nil {
		return &AuctionMetrics{}
	}
	bids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_total",
		Help: "Bid placement attempts by kind and outcome.",
	}, []string{"kind", "outcome"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session transitions by payment method and outcome.",
	}, []string{"method", "outcome"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_cases_total",
		Help: "Reconciliation cases opened or resolved.",
	}, []string{"reason", "state"})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "result"})
	reg.MustRegister(bids, checkouts, reconciliations, gatewayLatency)
	return &AuctionMetrics{
		bids:            bids,
		checkouts:       checkouts,
		reconciliations: reconciliations,
		gatewayLatency:  gatewayLatency,
	}
}

// BidPlaced records a bid attempt. outcome is "accepted" or an error code.
func (m *AuctionMetrics) BidPlaced(kind, outcome string) {
	if m == nil || m.bids == nil {
		return
	}
	m.bids.WithLabelValues(labelValue(kind), labelValue(outcome)).Inc()
}

// CheckoutOutcome records a session transition such as completed, declined or refunded.
func (m *AuctionMetrics) CheckoutOutcome(method, outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(labelValue(method), labelValue(outcome)).Inc()
}

// Reconciliation records a case opening or resolution.
func (m *AuctionMetrics) Reconciliation(reason, state string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(labelValue(reason), labelValue(state)).Inc()
}

// ObserveGateway records the latency of a gateway call.
func (m *AuctionMetrics) ObserveGateway(operation, result string, duration time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(labelValue(operation), labelValue(result)).Observe(duration.Seconds())
}
