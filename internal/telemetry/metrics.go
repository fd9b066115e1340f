package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/tenantprov"
)

// Metrics holds the provisioning metric instruments
type Metrics struct {
	TenantsProvisionedTotal  metric.Int64Counter
	TenantsFailedTotal       metric.Int64Counter
	ApplicationsRegistered   metric.Int64Counter
	StepDuration             metric.Float64Histogram
	ConfirmationTimeoutTotal metric.Int64Counter
	ReadinessRetriesTotal    metric.Int64Counter
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

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TenantsProvisionedTotal, _ = meter.Int64Counter(
		"tenantprov.tenants.provisioned.total",
		metric.WithDescription("Total number of tenants fully provisioned"),
		metric.WithUnit("{tenant}"),
	)

	m.TenantsFailedTotal, _ = meter.Int64Counter(
		"tenantprov.tenants.failed.total",
		metric.WithDescription("Total number of tenants that failed provisioning"),
		metric.WithUnit("{tenant}"),
	)

	m.ApplicationsRegistered, _ = meter.Int64Counter(
		"tenantprov.applications.registered.total",
		metric.WithDescription("Total number of applications registered with the provisioner"),
		metric.WithUnit("{application}"),
	)

	m.StepDuration, _ = meter.Float64Histogram(
		"tenantprov.step.duration",
		metric.WithDescription("Duration of provisioning steps"),
		metric.WithUnit("ms"),
	)

	m.ConfirmationTimeoutTotal, _ = meter.Int64Counter(
		"tenantprov.confirmations.timeouts.total",
		metric.WithDescription("Total number of event confirmations that timed out"),
		metric.WithUnit("{confirmation}"),
	)

	m.ReadinessRetriesTotal, _ = meter.Int64Counter(
		"tenantprov.readiness.retries.total",
		metric.WithDescription("Total number of application assignments retried while a tenant was not ready"),
		metric.WithUnit("{retry}"),
	)

	return m
}

// RecordStep records how long step took and whether it failed.
func (m *Metrics) RecordStep(ctx context.Context, step string, started time.Time, err error) {
	m.StepDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(
			attribute.String("step", step),
			attribute.Bool("error", err != nil),
		),
	)
}
