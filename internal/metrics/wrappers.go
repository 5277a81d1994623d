package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// register registers c with the default registry, returning the existing
// collector when an identical one is already registered.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// Counter is a standalone counter with constant labels, for components that
// create metrics per instance.
type Counter struct {
	counter prometheus.Counter
}

func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{counter: register(prometheus.NewCounter(prometheus.CounterOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}))}
}

func (c *Counter) Inc()          { c.counter.Inc() }
func (c *Counter) Add(v float64) { c.counter.Add(v) }

// Gauge is a standalone gauge with constant labels.
type Gauge struct {
	gauge prometheus.Gauge
}

func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{gauge: register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}))}
}

func (g *Gauge) Set(v float64) { g.gauge.Set(v) }
func (g *Gauge) Inc()          { g.gauge.Inc() }
func (g *Gauge) Dec()          { g.gauge.Dec() }

// Histogram is a standalone histogram with constant labels.
type Histogram struct {
	histogram prometheus.Histogram
}

func NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	return &Histogram{histogram: register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
		Buckets:     buckets,
	}))}
}

func (h *Histogram) Observe(v float64) { h.histogram.Observe(v) }
