package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the outcome of the last run as Prometheus gauges. Runs are
// batch jobs, so the registry is written to a node_exporter textfile rather
// than served over HTTP.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.GaugeVec
	customers     *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewMetrics creates the run gauges on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.events = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "offerprofile",
		Name:      "run_events",
		Help:      "Normalized transcript events read by the last run, by kind",
	}, []string{"kind"})
	m.customers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "offerprofile",
		Name:      "run_customers",
		Help:      "Customers seen by the last run, by outcome",
	}, []string{"outcome"})
	m.stageDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "offerprofile",
		Name:      "run_stage_duration_seconds",
		Help:      "Wall time spent in each pipeline stage of the last run",
	}, []string{"stage"})
	m.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "offerprofile",
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "offerprofile",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run",
	})

	m.registry.MustRegister(m.events, m.customers, m.stageDuration, m.runDuration, m.lastSuccess)
	return m
}

// Observe copies a run snapshot into the gauges.
func (m *Metrics) Observe(s Snapshot) {
	for kind, n := range s.EventKinds {
		m.events.WithLabelValues(kind).Set(float64(n))
	}
	m.customers.WithLabelValues("summarized").Set(float64(s.Customers))
	m.customers.WithLabelValues("quarantined").Set(float64(s.Quarantined))
	m.customers.WithLabelValues("profiled").Set(float64(s.Profiles))
	m.customers.WithLabelValues("unjoined").Set(float64(s.Unjoined))
	for _, st := range s.Stages {
		m.stageDuration.WithLabelValues(st.Stage).Set(st.Duration.Seconds())
	}
	m.runDuration.Set(s.Elapsed.Seconds())
}

// MarkSuccess records the completion time of a successful run.
func (m *Metrics) MarkSuccess(at time.Time) {
	m.lastSuccess.Set(float64(at.Unix()))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
