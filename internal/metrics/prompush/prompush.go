// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. An import is a batch job with no scrape window,
// so metrics are collected in a private registry and pushed on Flush.
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"tsmximport/internal/metrics"
)

// Backend implements metrics.Backend on top of a Pushgateway.
type Backend struct {
	pusher *push.Pusher

	records  *prometheus.CounterVec
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Option tunes a Backend.
type Option func(*push.Pusher) *push.Pusher

// WithGrouping adds a grouping label (e.g. run_id) to the pushed group.
func WithGrouping(name, value string) Option {
	return func(p *push.Pusher) *push.Pusher { return p.Grouping(name, value) }
}

// WithClient replaces the HTTP client used to push.
func WithClient(c push.HTTPDoer) Option {
	return func(p *push.Pusher) *push.Pusher { return p.Client(c) }
}

// NewBackend returns a backend pushing to gatewayURL under job.
//
// Errors:
//   - gatewayURL or job is empty.
func NewBackend(job, gatewayURL string, opts ...Option) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: gateway url is empty")
	}
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: job is empty")
	}

	b := &Backend{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows seen by the import, per table and outcome.",
		}, []string{"table", "kind"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Finished import steps.",
		}, []string{"step", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Import step durations.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"step", "status"}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(b.records, b.steps, b.duration)

	p := push.New(gatewayURL, job).Gatherer(reg)
	for _, o := range opts {
		p = o(p)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.RecordsTotal:
		b.records.WithLabelValues(labels["table"], labels["kind"]).Add(delta)
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.duration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes every collected metric, replacing the job's previous group.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Close pushes one final time. The backend holds no other resources.
func (b *Backend) Close() error { return b.Flush() }

var _ metrics.Backend = (*Backend)(nil)
