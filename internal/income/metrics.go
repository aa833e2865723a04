package income

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/tellae/eqasim/internal/model"
)

// Metrics collects imputation counters. A nil *Metrics records nothing.
type Metrics struct {
	households   prometheus.Counter
	communes     prometheus.Counter
	failures     prometheus.Counter
	taskDuration prometheus.Histogram
	types        *prometheus.GaugeVec
}

// NewMetrics registers the imputation collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		households: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eqasim",
			Subsystem: "income",
			Name:      "households_imputed_total",
			Help:      "Households that received an imputed income.",
		}),
		communes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eqasim",
			Subsystem: "income",
			Name:      "communes_sampled_total",
			Help:      "Municipality tasks completed.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eqasim",
			Subsystem: "income",
			Name:      "runs_failed_total",
			Help:      "Imputation runs aborted by a task error.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eqasim",
			Subsystem: "income",
			Name:      "task_duration_seconds",
			Help:      "Time spent sampling one municipality.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		types: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eqasim",
			Subsystem: "household",
			Name:      "households_by_type",
			Help:      "Classified households per household type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.households, m.communes, m.failures, m.taskDuration, m.types)
	return m
}

func (m *Metrics) observeTask(households int, d time.Duration) {
	if m == nil {
		return
	}
	m.households.Add(float64(households))
	m.communes.Inc()
	m.taskDuration.Observe(d.Seconds())
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// ObserveClassification records household counts per type.
func (m *Metrics) ObserveClassification(counts map[model.HouseholdType]int) {
	if m == nil {
		return
	}
	for _, t := range model.HouseholdTypes {
		m.types.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}

// WriteTextfile writes everything gathered by g in the node-exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return eris.Wrapf(err, "income: write metrics to %s", path)
	}
	return nil
}
