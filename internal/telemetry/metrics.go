package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/oakensoft/tenantgate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Admin check metrics
	AdminChecksTotal        metric.Int64Counter
	AdminVerdictsTotal      metric.Int64Counter
	AdminCheckErrorsTotal   metric.Int64Counter
	AdminCheckDuration      metric.Float64Histogram
	RoleLookupFailuresTotal metric.Int64Counter

	// Consent metrics
	ConsentStartedTotal  metric.Int64Counter
	ConsentGrantedTotal  metric.Int64Counter
	ConsentDeniedTotal   metric.Int64Counter
	ConsentFailedTotal   metric.Int64Counter

	// Config metrics
	ConfigSavesTotal      metric.Int64Counter
	ConfigSaveErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Admin check metrics
	m.AdminChecksTotal, _ = meter.Int64Counter(
		"tenantgate.admin_checks.total",
		metric.WithDescription("Total number of admin status checks"),
		metric.WithUnit("{check}"),
	)

	m.AdminVerdictsTotal, _ = meter.Int64Counter(
		"tenantgate.admin_checks.verdicts.total",
		metric.WithDescription("Total number of admin verdicts returned, by outcome"),
		metric.WithUnit("{verdict}"),
	)

	m.AdminCheckErrorsTotal, _ = meter.Int64Counter(
		"tenantgate.admin_checks.errors.total",
		metric.WithDescription("Total number of admin checks that could not produce a verdict"),
		metric.WithUnit("{error}"),
	)

	m.AdminCheckDuration, _ = meter.Float64Histogram(
		"tenantgate.admin_checks.duration",
		metric.WithDescription("Duration of admin status checks"),
		metric.WithUnit("ms"),
	)

	m.RoleLookupFailuresTotal, _ = meter.Int64Counter(
		"tenantgate.directory.lookup_failures.total",
		metric.WithDescription("Total number of failed directory role lookups"),
		metric.WithUnit("{error}"),
	)

	// Consent metrics
	m.ConsentStartedTotal, _ = meter.Int64Counter(
		"tenantgate.consent.started.total",
		metric.WithDescription("Total number of consent flows started"),
		metric.WithUnit("{flow}"),
	)

	m.ConsentGrantedTotal, _ = meter.Int64Counter(
		"tenantgate.consent.granted.total",
		metric.WithDescription("Total number of consent flows granted"),
		metric.WithUnit("{flow}"),
	)

	m.ConsentDeniedTotal, _ = meter.Int64Counter(
		"tenantgate.consent.denied.total",
		metric.WithDescription("Total number of consent flows denied by the administrator"),
		metric.WithUnit("{flow}"),
	)

	m.ConsentFailedTotal, _ = meter.Int64Counter(
		"tenantgate.consent.failed.total",
		metric.WithDescription("Total number of consent flows that failed validation"),
		metric.WithUnit("{flow}"),
	)

	// Config metrics
	m.ConfigSavesTotal, _ = meter.Int64Counter(
		"tenantgate.config.saves.total",
		metric.WithDescription("Total number of tenant configurations saved"),
		metric.WithUnit("{save}"),
	)

	m.ConfigSaveErrorsTotal, _ = meter.Int64Counter(
		"tenantgate.config.saves.errors.total",
		metric.WithDescription("Total number of failed tenant configuration saves"),
		metric.WithUnit("{error}"),
	)

	return m
}
