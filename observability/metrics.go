package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
)

// SetupMetrics wires a Prometheus exporter as the OTel metric reader for
// serviceName, the way sms-gateway's SetupOpenTelemetry does. It returns a
// shutdown func for graceful teardown.
func SetupMetrics(serviceName string, logger *zap.Logger) (func(), error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	if logger != nil {
		logger.Info("metrics initialized", zap.String("service", serviceName))
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil && logger != nil {
			logger.Error("error shutting down metrics", zap.Error(err))
		}
	}, nil
}

// BrokerInstruments are the process-wide gauges the broker (C8) reports:
// allocated worker threads, reserve size, and smoothed CPU load.
type BrokerInstruments struct {
	AllocatedThreads metric.Int64ObservableGauge
	ReserveSize      metric.Int64ObservableGauge
	CPULoad          metric.Float64ObservableGauge
}

// NewBrokerInstruments registers the broker's observable gauges against the
// global meter provider, calling the supplied reader funcs on every
// collection pass.
func NewBrokerInstruments(allocated, reserve func() int64, cpuLoad func() float64) (*BrokerInstruments, error) {
	meter := otel.Meter("github.com/go-foundations/dispatch/broker")

	allocGauge, err := meter.Int64ObservableGauge("dispatch.broker.allocated_threads",
		metric.WithDescription("process-wide allocated worker thread count"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(allocated())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	reserveGauge, err := meter.Int64ObservableGauge("dispatch.broker.reserve_size",
		metric.WithDescription("parked worker threads awaiting assignment"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(reserve())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	cpuGauge, err := meter.Float64ObservableGauge("dispatch.broker.cpu_load",
		metric.WithDescription("smoothed process CPU load, 0..1"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(cpuLoad())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &BrokerInstruments{AllocatedThreads: allocGauge, ReserveSize: reserveGauge, CPULoad: cpuGauge}, nil
}

// HostInstruments are the per-host gauges each elastic priority thread pool
// (C9) reports: active thread count and pending item count.
type HostInstruments struct {
	ActiveThreads metric.Int64ObservableGauge
	PendingItems  metric.Int64ObservableGauge
}

// NewHostInstruments registers a host's observable gauges, labeling them
// with name so multiple hosts are distinguishable in Prometheus.
func NewHostInstruments(name string, activeThreads, pendingItems func() int64) (*HostInstruments, error) {
	meter := otel.Meter("github.com/go-foundations/dispatch/pool")
	label := metric.WithAttributes(attribute.String("host", name))

	active, err := meter.Int64ObservableGauge("dispatch.host.active_threads",
		metric.WithDescription("active worker threads assigned to this host"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(activeThreads(), label)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	pending, err := meter.Int64ObservableGauge("dispatch.host.pending_items",
		metric.WithDescription("items waiting in this host's priority inbox"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(pendingItems(), label)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &HostInstruments{ActiveThreads: active, PendingItems: pending}, nil
}
