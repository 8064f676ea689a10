package main

import (
	"context"
	"fmt"

	"tsmximport/internal/config"
	"tsmximport/internal/metrics"
	"tsmximport/internal/metrics/datadog"
	"tsmximport/internal/metrics/prompush"
)

// nopCloser is used when METRICS_BACKEND is none.
type nopCloser struct{}

func (nopCloser) IncCounter(string, float64, metrics.Labels)       {}
func (nopCloser) ObserveHistogram(string, float64, metrics.Labels) {}
func (nopCloser) Flush() error                                     { return nil }
func (nopCloser) Close() error                                     { return nil }

func newMetricsBackend(ctx context.Context, cfg *config.Config, runID string) (backendCloser, error) {
	switch cfg.Metrics.Backend {
	case "", "none":
		return nopCloser{}, nil
	case "datadog":
		tags := append(datadog.ParseTagsCSV(cfg.Metrics.Tags), "run_id:"+runID)
		return datadog.NewBackend(ctx, datadog.Options{JobName: cfg.Import.Job, Tags: tags})
	case "pushgateway":
		return prompush.NewBackend(cfg.Import.Job, cfg.Metrics.PushgatewayURL, prompush.WithGrouping("run_id", runID))
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Metrics.Backend)
	}
}

// initMetrics installs the configured backend globally. The returned func
// flushes, closes and uninstalls it.
func initMetrics(ctx context.Context, d appDeps, cfg *config.Config, runID string) (func() error, error) {
	backend, err := d.BackendFactory(ctx, cfg, runID)
	if err != nil {
		return nil, fmt.Errorf("metrics init: %w", err)
	}
	metrics.SetBackend(backend)
	return func() error {
		defer metrics.SetBackend(nil)
		return backend.Close()
	}, nil
}
