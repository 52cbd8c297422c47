package main

import (
	"context"
	"strings"

	"dwh/internal/config"
	"dwh/internal/metrics"
	"dwh/internal/metrics/datadog"
)

const defaultPushgatewayURL = "http://localhost:9091"

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// metricsBackendName decides the backend: flag, then METRICS_BACKEND, then
// [METRICS] backend, then none.
func (a *app) metricsBackendName(cfg *config.Config) string {
	name := firstNonEmpty(a.metricsBackend, a.d.Getenv("METRICS_BACKEND"), cfg.Metrics.Backend)
	if name == "" {
		return "none"
	}
	return strings.ToLower(name)
}

// initMetrics installs the selected metrics backend and returns the function
// that flushes and removes it. A backend that fails to initialize is logged
// and the nop backend stays in place.
func (a *app) initMetrics(ctx context.Context, cfg *config.Config) (stop func()) {
	name := a.metricsBackendName(cfg)
	job := cfg.Metrics.Job

	var (
		b   backendCloser
		err error
	)
	switch name {
	case "pushgateway":
		url := firstNonEmpty(a.pushgatewayURL, a.d.Getenv("PUSHGATEWAY_URL"), cfg.Metrics.PushgatewayURL, defaultPushgatewayURL)
		b, err = a.d.NewPushgateway(job, url)
		if err == nil {
			a.log.Infof("metrics: url=%v, backend=%v, job_name=%v", url, name, job)
		}

	case "datadog":
		tags := append(cfg.MetricsTags(), datadog.ParseTagsCSV(a.d.Getenv("METRICS_TAGS"))...)
		b, err = a.d.NewDatadog(ctx, job, tags)
		if err == nil {
			a.log.Infof("metrics: backend=%v job_name=%v tags=%v", name, job, tags)
		}

	case "none":
		a.log.Debugf("metrics: disabled (backend=%q)", name)
		return func() {}

	default:
		a.log.Warnf("metrics: unknown backend %q; metrics disabled", name)
		return func() {}
	}

	if err != nil {
		a.log.Warnf("metrics: failed to init %s backend: %v; using nop", name, err)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		// Close performs the final flush.
		if err := b.Close(); err != nil {
			a.log.Warnf("metrics: %s close/flush error: %v", name, err)
		}
		metrics.SetBackend(nil)
	}
}
