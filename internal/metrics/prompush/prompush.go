// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// A loader run is a batch job with no /metrics endpoint to scrape, so the
// collected series are pushed to a Pushgateway on Flush (the command flushes
// once at exit).
package prompush

import (
	"context"
	"errors"
	"strings"
	"time"

	"sparkify/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const defaultPushTimeout = 5 * time.Second

// Backend implements metrics.Backend on a private prometheus registry.
type Backend struct {
	pusher   *push.Pusher
	registry *prometheus.Registry

	files    *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewBackend builds a backend that pushes to gatewayURL under job.
//
// Edge cases:
//   - grouping entries with a blank key or value are skipped.
//
// Errors:
//   - gatewayURL or job empty.
func NewBackend(job, gatewayURL string, grouping map[string]string) (*Backend, error) {
	job = strings.TrimSpace(job)
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return nil, errors.New("prompush: pushgateway url is required")
	}
	if job == "" {
		return nil, errors.New("prompush: job is required")
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		registry: reg,
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FilesTotal,
			Help: "Input files processed, by pass and status.",
		}, []string{"pass", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows submitted to the database, by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDuration,
			Help:    "Seconds spent per step.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"step", "status"}),
	}
	reg.MustRegister(b.files, b.records, b.duration)

	p := push.New(gatewayURL, job).Gatherer(reg)
	for k, v := range grouping {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		p = p.Grouping(k, v)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.FilesTotal:
		b.files.WithLabelValues(labels["pass"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if labels["kind"] == "" {
			return
		}
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || value < 0 {
		return
	}
	b.duration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry, replacing the job's previous group.
func (b *Backend) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPushTimeout)
	defer cancel()
	return b.pusher.PushContext(ctx)
}

// Registry exposes the backing registry.
func (b *Backend) Registry() *prometheus.Registry { return b.registry }

var _ metrics.Backend = (*Backend)(nil)
