// internal/agent/metrics.go
package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "agent_s2"

// Metrics counts dispatched actions and times tasks.
type Metrics struct {
	actionsTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

// NewMetrics registers the executor metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		actionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "actions_total",
				Help:      "Total number of dispatched actions by type and status",
			},
			[]string{"type", "status"},
		),
		taskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "task_duration_seconds",
				Help:      "Task execution duration in seconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeAction(o ActionOutcome) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(string(o.Action.Type), string(o.Status)).Inc()
}

func (m *Metrics) observeTask(success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.taskDuration.WithLabelValues(result).Observe(d.Seconds())
}
