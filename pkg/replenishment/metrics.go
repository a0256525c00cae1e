package replenishment

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "replenishment"

// Metrics holds the Prometheus collectors of the engine. A nil *Metrics is valid and records nothing.
// 補充計算のメトリクス
type Metrics struct {
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	convergencePasses prometheus.Histogram
	nonConvergent     prometheus.Counter
	linesWritten      prometheus.Counter
}

// NewMetrics creates the collectors and registers them when reg is not nil
// メトリクスを作成して登録
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Replenishment runs by outcome.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of replenishment runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		convergencePasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "convergence_passes",
			Help:      "MOQ convergence passes per computation group.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		nonConvergent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "non_convergent_groups_total",
			Help:      "Computation groups that ended below their MOQ.",
		}),
		linesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lines_written_total",
			Help:      "Purchase and transfer lines handed to the writer.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.runs, m.runDuration, m.convergencePasses, m.nonConvergent, m.linesWritten)
	}
	return m
}

func (m *Metrics) observeRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeGroups(groups []GroupSummary) {
	if m == nil {
		return
	}
	for _, g := range groups {
		m.convergencePasses.Observe(float64(g.Passes))
		if !g.Converged {
			m.nonConvergent.Inc()
		}
	}
}

func (m *Metrics) addLines(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesWritten.Add(float64(n))
}
