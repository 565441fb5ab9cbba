// Package metrics exposes replication counters. Everything is a noop until
// Init is called.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var registry *prometheus.Registry

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
}

type CounterVec interface {
	With(labels ...string) Counter
}

type NoopStat struct{}

func (NoopStat) Inc()        {}
func (NoopStat) Add(float64) {}
func (NoopStat) Set(float64) {}

type noopCounterVec struct{}

func (noopCounterVec) With(...string) Counter { return NoopStat{} }

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labels ...string) Counter {
	return p.vec.WithLabelValues(labels...)
}

var (
	// EventsTotal counts decoded events by type name.
	EventsTotal CounterVec = noopCounterVec{}
	// EventsFiltered counts events dropped by filters, by reason.
	EventsFiltered CounterVec = noopCounterVec{}
	// RowsTotal counts row images by kind (insert, update, delete).
	RowsTotal CounterVec = noopCounterVec{}
	// BytesTotal counts raw event bytes read.
	BytesTotal Counter = NoopStat{}
	// ReconnectsTotal counts reconnects after transient transport errors.
	ReconnectsTotal Counter = NoopStat{}
	// TableMapsTotal counts table registrations by result (ok, skipped, failed).
	TableMapsTotal CounterVec = noopCounterVec{}
	// BinlogPosition is the offset of the last event read.
	BinlogPosition Gauge = NoopStat{}
)

// Init creates the registry and the collectors. It is not safe to call
// while events are being counted.
func Init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	EventsTotal = newCounterVec("events_total", "Decoded binlog events by type", "type")
	EventsFiltered = newCounterVec("events_filtered_total", "Binlog events dropped by filters", "reason")
	RowsTotal = newCounterVec("rows_total", "Decoded row images by kind", "kind")
	TableMapsTotal = newCounterVec("table_maps_total", "Table map registrations by result", "result")
	BytesTotal = newCounter("bytes_total", "Raw binlog event bytes read")
	ReconnectsTotal = newCounter("reconnects_total", "Reconnects after transient transport errors")
	BinlogPosition = newGauge("binlog_position", "Offset of the last binlog event read")
}

// Handler returns the scrape handler, nil when Init was not called.
func Handler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func newCounter(name, help string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: vars.AppName,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(c)
	return c
}

func newGauge(name, help string) Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: vars.AppName,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(g)
	return g
}

func newCounterVec(name, help string, labels ...string) CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: vars.AppName,
		Name:      name,
		Help:      help,
	}, labels)
	registry.MustRegister(v)
	return &prometheusCounterVec{vec: v}
}
