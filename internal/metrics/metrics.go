// Package metrics exposes marketplace activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/events"
	"AgentBounty/internal/types"
)

const namespace = "agentbounty"

// Result labels.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultError    = "error"
)

// Metrics holds the collectors and implements the bounty observer.
type Metrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	locked     prometheus.Gauge
	fees       prometheus.Counter
	payouts    prometheus.Counter
	refunds    prometheus.Counter
	events     *prometheus.CounterVec
	dropped    prometheus.GaugeFunc
}

// New creates the collectors and registers them with reg.
// dropped, if non-nil, reports events lost by slow subscribers.
func New(reg prometheus.Registerer, dropped func() uint64) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_seconds",
			Help:      "Time to apply a lifecycle operation, including commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		locked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "escrow_locked_lamports",
			Help:      "Lamports currently held in escrow.",
		}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected_lamports_total",
			Help:      "Protocol fees credited to the fee vault.",
		}),
		payouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_lamports_total",
			Help:      "Lamports paid to claimers on approval.",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_lamports_total",
			Help:      "Lamports returned to posters on cancellation.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events appended to the log by kind.",
		}, []string{"kind"}),
	}

	collectors := []prometheus.Collector{m.operations, m.latency, m.locked, m.fees, m.payouts, m.refunds, m.events}

	if dropped != nil {
		m.dropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_dropped",
			Help:      "Events not delivered to a full subscriber.",
		}, func() float64 { return float64(dropped()) })
		collectors = append(collectors, m.dropped)
	}

	reg.MustRegister(collectors...)

	return m
}

// SetLocked seeds the escrow gauge, typically from storage at startup.
func (m *Metrics) SetLocked(lamports uint64) {
	m.locked.Set(float64(lamports))
}

// ObserveOperation counts op and records its latency. Errors without a
// rejection code are infrastructure failures.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	result := resultOK
	switch {
	case err == nil:
	case bounty.CodeOf(err) != "":
		result = resultRejected
	default:
		result = resultError
	}

	m.operations.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveEvent tracks custody movements described by a committed event.
func (m *Metrics) ObserveEvent(rec *events.Record) {
	m.events.WithLabelValues(rec.Kind.String()).Inc()

	switch rec.Kind {
	case types.EventKindBountyCreated:
		m.locked.Add(float64(rec.Amount))
	case types.EventKindWorkApproved:
		m.locked.Sub(float64(rec.Amount + rec.Fee))
		m.payouts.Add(float64(rec.Amount))
		m.fees.Add(float64(rec.Fee))
	case types.EventKindBountyCancelled:
		m.locked.Sub(float64(rec.Amount))
		m.refunds.Add(float64(rec.Amount))
	}
}
