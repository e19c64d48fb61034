package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/congo-pay/pockets/internal/ledger"
)

// Metrics provides observability for the ledger engine.
// Tracks operation outcomes, latency, halted owners and replay repairs.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HaltedOwners      prometheus.Gauge
	ReplayDangling    prometheus.Counter
	ReplayRepaired    prometheus.Counter
	Replays           prometheus.Counter
}

// New registers the ledger metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pockets_operations_total",
			Help: "Ledger operations by kind, status and rejection reason",
		}, []string{"kind", "status", "reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pockets_operation_duration_seconds",
			Help:    "Duration of Submit including log and store writes",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"kind"}),
		HaltedOwners: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pockets_halted_owners",
			Help: "Owners refusing mutations after a partition invariant violation",
		}),
		ReplayDangling: factory.NewCounter(prometheus.CounterOpts{
			Name: "pockets_replay_dangling_total",
			Help: "Pending log entries resolved as interrupted during replay",
		}),
		ReplayRepaired: factory.NewCounter(prometheus.CounterOpts{
			Name: "pockets_replay_repaired_records_total",
			Help: "Persisted balance records rewritten by replay",
		}),
		Replays: factory.NewCounter(prometheus.CounterOpts{
			Name: "pockets_replays_total",
			Help: "Successful owner replays",
		}),
	}
}

// ObserveOperation records the outcome of one Submit call.
func (m *Metrics) ObserveOperation(kind ledger.OpKind, status ledger.Status, reason string, elapsed time.Duration) {
	if status == "" {
		status = ledger.StatusRejected
	}
	m.Operations.WithLabelValues(string(kind), string(status), reason).Inc()
	m.OperationDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveReplay records a successful replay.
func (m *Metrics) ObserveReplay(dangling, repaired int) {
	m.Replays.Inc()
	m.ReplayDangling.Add(float64(dangling))
	m.ReplayRepaired.Add(float64(repaired))
}

// SetHaltedOwners publishes the number of halted owners.
func (m *Metrics) SetHaltedOwners(n int) {
	m.HaltedOwners.Set(float64(n))
}

var _ ledger.Recorder = (*Metrics)(nil)
