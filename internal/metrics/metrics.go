// Package metrics records rebuild outcomes as Prometheus metrics.
//
// The rebuild is a one-shot command, so metrics are not served over HTTP.
// They are gathered into a private registry and written in the text
// exposition format for the node exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/ledgerattach/internal/attachment"
)

const namespace = "ledgerattach"

// Recorder holds the rebuild metrics.
type Recorder struct {
	reg *prometheus.Registry

	// Rows written by the last successful pass, per variant
	rows *prometheus.GaugeVec

	// Passes by outcome
	passes *prometheus.CounterVec

	// Failures by error code
	failures *prometheus.CounterVec

	// Wall time of the last pass in seconds
	duration prometheus.Gauge

	// Unix time of the last successful commit
	lastSuccess prometheus.Gauge
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		reg: reg,
		rows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "rows",
			Help:      "Side-table rows written by the last successful rebuild, by variant",
		}, []string{"variant"}),
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "passes_total",
			Help:      "Rebuild passes by outcome",
		}, []string{"outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "failures_total",
			Help:      "Failed rebuild passes by error code",
		}, []string{"code"}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "duration_seconds",
			Help:      "Wall time of the last rebuild pass",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rebuild",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful rebuild commit",
		}),
	}

	// Every variant is reported, including those with no rows.
	for _, k := range attachment.Kinds() {
		r.rows.WithLabelValues(string(k))
	}
	return r
}

// RebuildSucceeded records a committed pass.
func (r *Recorder) RebuildSucceeded(counts map[attachment.Kind]int, elapsed time.Duration) {
	for _, k := range attachment.Kinds() {
		r.rows.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
	r.passes.WithLabelValues("success").Inc()
	r.duration.Set(elapsed.Seconds())
	r.lastSuccess.SetToCurrentTime()
}

// RebuildFailed records a rolled-back pass. Row gauges keep the values of
// the last success, which is still the committed state.
func (r *Recorder) RebuildFailed(code string, elapsed time.Duration) {
	r.passes.WithLabelValues("failure").Inc()
	r.failures.WithLabelValues(code).Inc()
	r.duration.Set(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
