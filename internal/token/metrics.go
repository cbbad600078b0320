package token

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultResolved   = "resolved"
	resultUnresolved = "unresolved"
	resultError      = "error"
)

// Metrics are token counters. A nil *Metrics records nothing.
type Metrics struct {
	issued        prometheus.Counter
	verifications *prometheus.CounterVec
	swept         prometheus.Counter
	lastSweep     prometheus.Gauge
}

// NewMetrics registers the token collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		issued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "accountapi",
			Name:      "tokens_issued_total",
			Help:      "Session tokens issued.",
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accountapi",
			Name:      "token_verifications_total",
			Help:      "Session token verifications by result.",
		}, []string{"result"}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: "accountapi",
			Name:      "tokens_swept_total",
			Help:      "Expired session tokens removed by the sweep.",
		}),
		lastSweep: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "accountapi",
			Name:      "token_sweep_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sweep.",
		}),
	}
}

func (m *Metrics) issuedInc() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) verified(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) sweptAdd(n int64, at time.Time) {
	if m == nil {
		return
	}
	m.swept.Add(float64(n))
	m.lastSweep.Set(float64(at.Unix()))
}
