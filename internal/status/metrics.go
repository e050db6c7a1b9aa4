package status

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ticks     *prometheus.CounterVec
	charts    *prometheus.CounterVec
	publishes *prometheus.CounterVec
	orphaned  prometheus.Counter
	active    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statusbot", Subsystem: "report", Name: "ticks_total",
			Help: "Report update ticks by result.",
		}, []string{"result"}),
		charts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statusbot", Subsystem: "report", Name: "chart_renders_total",
			Help: "Chart renders by result.",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statusbot", Subsystem: "report", Name: "publishes_total",
			Help: "Publish requests by result.",
		}, []string{"result"}),
		orphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statusbot", Subsystem: "report", Name: "orphaned_total",
			Help: "Reports dropped because their message disappeared.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "statusbot", Subsystem: "report", Name: "active_entries",
			Help: "Report update loops currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.charts, m.publishes, m.orphaned, m.active)
	}
	return m
}

func (m *Metrics) tick(result tickResult) {
	if m != nil {
		m.ticks.WithLabelValues(result.String()).Inc()
	}
}

func (m *Metrics) chart(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.charts.WithLabelValues("ok").Inc()
	} else {
		m.charts.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) publish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishes.WithLabelValues("error").Inc()
	} else {
		m.publishes.WithLabelValues("ok").Inc()
	}
}

func (m *Metrics) orphan() {
	if m != nil {
		m.orphaned.Inc()
	}
}

func (m *Metrics) entryStarted() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) entryEnded() {
	if m != nil {
		m.active.Dec()
	}
}
