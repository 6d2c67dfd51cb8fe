package signoff

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	transitions *prometheus.CounterVec
	snapshots   *prometheus.CounterVec
	conflicts   prometheus.Counter

	Registerer prometheus.Registerer
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_transitions_total",
			Help: "Review workflow transitions by action and result.",
		},
		[]string{"action", "result"},
	)
	if err := reg.Register(transitions); err != nil {
		return nil, fmt.Errorf("register transitions metric: %w", err)
	}

	snapshots := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_snapshot_rebuilds_total",
			Help: "Workflow snapshot rebuilds by result.",
		},
		[]string{"result"},
	)
	if err := reg.Register(snapshots); err != nil {
		return nil, fmt.Errorf("register snapshots metric: %w", err)
	}

	conflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "signoff_write_conflicts_total",
			Help: "Conditional writes rejected because of a concurrent edit.",
		},
	)
	if err := reg.Register(conflicts); err != nil {
		return nil, fmt.Errorf("register conflicts metric: %w", err)
	}

	m := Metrics{
		transitions: transitions,
		snapshots:   snapshots,
		conflicts:   conflicts,
		Registerer:  reg,
	}

	return &m, nil
}

// The count helpers are nil-safe so that a workflow without metrics
// doesn't have to branch at every call site.

func (m *Metrics) countTransition(action, result string) {
	if m == nil {
		return
	}

	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) countSnapshot(result string) {
	if m == nil {
		return
	}

	m.snapshots.WithLabelValues(result).Inc()
}

func (m *Metrics) countConflict() {
	if m == nil {
		return
	}

	m.conflicts.Inc()
}
