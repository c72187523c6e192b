// Package metrics provides a Prometheus implementation of
// ports.MetricsCollector. Each Collector owns its registry, so several runs
// in one process never collide, and the registry can be dumped to a text
// file at the end of a grading run.
package metrics

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-crossval/internal/ports"
)

// Namespace prefixes every metric name.
const Namespace = "crossval"

// Collector creates metric vectors on first use. The label names of a
// metric are fixed by its first observation; later observations with a
// different label set are dropped and logged.
type Collector struct {
	reg     *prometheus.Registry
	factory promauto.Factory
	logger  *slog.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var _ ports.MetricsCollector = (*Collector)(nil)

// NewCollector returns a Collector with a fresh registry. A nil logger uses
// slog.Default.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	return &Collector{
		reg:        reg,
		factory:    promauto.With(reg),
		logger:     logger,
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// RecordLatency observes duration in the "<operation>_duration_seconds"
// histogram.
func (c *Collector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	c.RecordHistogram(operation+"_duration_seconds", duration.Seconds(), labels)
}

// RecordCounter adds value to the counter named metric.
func (c *Collector) RecordCounter(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	e, ok := c.counters[metric]
	if !ok {
		e = c.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Name: metric, Help: "Counter " + metric + ".",
		}, labelKeys(labels))
		c.counters[metric] = e
	}
	c.mu.Unlock()

	m, err := e.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		c.dropped(metric, err)
		return
	}
	m.Add(value)
}

// RecordGauge sets the gauge named metric.
func (c *Collector) RecordGauge(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	e, ok := c.gauges[metric]
	if !ok {
		e = c.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace, Name: metric, Help: "Gauge " + metric + ".",
		}, labelKeys(labels))
		c.gauges[metric] = e
	}
	c.mu.Unlock()

	m, err := e.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		c.dropped(metric, err)
		return
	}
	m.Set(value)
}

// RecordHistogram observes value in the histogram named metric.
func (c *Collector) RecordHistogram(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	e, ok := c.histograms[metric]
	if !ok {
		e = c.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Name: metric, Help: "Histogram " + metric + ".",
			Buckets: prometheus.DefBuckets,
		}, labelKeys(labels))
		c.histograms[metric] = e
	}
	c.mu.Unlock()

	m, err := e.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		c.dropped(metric, err)
		return
	}
	m.Observe(value)
}

// WriteTextfile writes the registry in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

func (c *Collector) dropped(metric string, err error) {
	c.logger.Debug("dropping observation with mismatched labels", "metric", metric, "error", err)
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
