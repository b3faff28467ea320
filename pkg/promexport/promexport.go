// Package promexport exposes machine lifecycle events and resource
// gauges as Prometheus metrics. It is an optional collaborator: wire the
// Observer into a machine and register the GaugeCollector with your
// registry, and the engine itself stays metrics-free.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/okanri/machina/pkg/api"
)

// Observer counts machine lifecycle events. It implements api.Observer.
type Observer struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewObserver creates an Observer and registers its metrics with reg.
// A nil reg uses the default registerer.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observer{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "machina_events_total",
				Help: "Machine lifecycle events by type",
			},
			[]string{"worker", "type"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "machina_transitions_total",
				Help: "Applied state transitions by target state",
			},
			[]string{"worker", "to"},
		),
	}

	reg.MustRegister(o.events)
	reg.MustRegister(o.transitions)
	return o
}

var _ api.Observer = (*Observer)(nil)

func (o *Observer) count(e api.Event) {
	o.events.WithLabelValues(e.WorkerID, string(e.Type)).Inc()
}

func (o *Observer) OnStateChanged(e api.Event) {
	o.count(e)
	o.transitions.WithLabelValues(e.WorkerID, e.To).Inc()
}

func (o *Observer) OnTaskCompleted(e api.Event)         { o.count(e) }
func (o *Observer) OnTaskFailed(e api.Event)            { o.count(e) }
func (o *Observer) OnErrorState(e api.Event)            { o.count(e) }
func (o *Observer) OnMaintenanceMode(e api.Event)       { o.count(e) }
func (o *Observer) OnResourceLimitExceeded(e api.Event) { o.count(e) }
func (o *Observer) OnStateTimeout(e api.Event)          { o.count(e) }
func (o *Observer) OnMaxRetriesExceeded(e api.Event)    { o.count(e) }

// gaugeSource is the slice of api.Machine the collector reads.
type gaugeSource interface {
	ID() string
	ResourceUsage() api.ResourceUsage
}

// GaugeCollector exports a machine's merged resource-usage snapshot as
// machina_resource_usage gauges, sampled at scrape time.
type GaugeCollector struct {
	source gaugeSource
	desc   *prometheus.Desc
}

// NewGaugeCollector creates a collector over m. Register it with
// prometheus.Registerer.MustRegister.
func NewGaugeCollector(m gaugeSource) *GaugeCollector {
	return &GaugeCollector{
		source: m,
		desc: prometheus.NewDesc(
			"machina_resource_usage",
			"Named resource gauges reported by a worker machine",
			[]string{"worker", "gauge"},
			nil,
		),
	}
}

var _ prometheus.Collector = (*GaugeCollector)(nil)

func (c *GaugeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *GaugeCollector) Collect(ch chan<- prometheus.Metric) {
	worker := c.source.ID()
	for name, value := range c.source.ResourceUsage() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, value, worker, name)
	}
}
