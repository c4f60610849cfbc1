package synchronizer

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the synchronizer's request/answer counters and in-flight
// set sizes as prometheus collectors, mirroring the `_requests_sent` /
// `_requests_answered` bookkeeping described in spec §5. These are
// informational only — nothing in the reconciliation algorithm reads them
// back.
type Metrics struct {
	requestsSent     uint64
	requestsAnswered uint64

	requestsSentDesc     prometheus.Counter
	requestsAnsweredDesc prometheus.Counter
	inFlightGauge        *prometheus.GaugeVec
}

// NewMetrics builds a Metrics collector set under the given namespace. Call
// Register to attach it to a prometheus.Registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requestsSentDesc: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synchronizer",
			Name:      "requests_sent_total",
			Help:      "Total number of RPCs sent to the indexing server.",
		}),
		requestsAnsweredDesc: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synchronizer",
			Name:      "requests_answered_total",
			Help:      "Total number of RPCs answered by the indexing server.",
		}),
		inFlightGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "synchronizer",
			Name:      "in_flight_set_size",
			Help:      "Size of each in-flight bookkeeping set, by set name.",
		}, []string{"set"}),
	}
}

// Register attaches this Metrics' collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requestsSentDesc, m.requestsAnsweredDesc, m.inFlightGauge} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) requestSent() {
	atomic.AddUint64(&m.requestsSent, 1)
	m.requestsSentDesc.Inc()
}

func (m *Metrics) requestAnswered() {
	atomic.AddUint64(&m.requestsAnswered, 1)
	m.requestsAnsweredDesc.Inc()
}

// RequestsSent returns the running count of RPCs dispatched to the server.
func (m *Metrics) RequestsSent() uint64 {
	return atomic.LoadUint64(&m.requestsSent)
}

// RequestsAnswered returns the running count of RPCs the server has
// answered successfully. An RPC that returns an error is counted by
// RequestsSent but not here.
func (m *Metrics) RequestsAnswered() uint64 {
	return atomic.LoadUint64(&m.requestsAnswered)
}

func (m *Metrics) setInFlight(set string, n int) {
	m.inFlightGauge.WithLabelValues(set).Set(float64(n))
}
