package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// DefaultServiceName is the service name reported with every metric
	DefaultServiceName = "offlinesync"

	// DefaultEndpoint is the default OTLP/HTTP collector endpoint
	DefaultEndpoint = "localhost:4318"

	// DefaultMetricsInterval is the default interval for metric export
	DefaultMetricsInterval = 60 * time.Second
)

// MeterProviderOption is a function that configures the meter provider setup
type MeterProviderOption func(*meterProviderConfig)

type meterProviderConfig struct {
	enabled        bool
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
	interval       time.Duration
}

// WithMetricsEnabled turns on the OTLP exporter. Without it NewMeterProvider
// returns a no-op provider.
func WithMetricsEnabled(enabled bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.enabled = enabled
	}
}

// WithMeterServiceVersion sets the service version for the meter provider
func WithMeterServiceVersion(version string) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.serviceVersion = version
	}
}

// WithMeterEndpoint sets the collector endpoint (host:port)
func WithMeterEndpoint(endpoint string) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		if endpoint != "" {
			cfg.endpoint = endpoint
		}
	}
}

// WithMeterInsecure sends metrics over plain HTTP
func WithMeterInsecure(insecure bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.insecure = insecure
	}
}

// WithMeterInterval sets the export interval
func WithMeterInterval(d time.Duration) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// NewMeterProvider creates an OpenTelemetry MeterProvider exporting over
// OTLP/HTTP and installs it as the global provider. A no-op provider is
// returned when metrics are disabled. Pass the result to Shutdown on exit so
// the last interval is flushed.
func NewMeterProvider(ctx context.Context, opts ...MeterProviderOption) (metric.MeterProvider, error) {
	cfg := &meterProviderConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
		interval:       DefaultMetricsInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.enabled {
		return noop.NewMeterProvider(), nil
	}

	// resource.New avoids schema URL conflicts with resource.Default()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.endpoint)}
	if cfg.insecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.interval)),
		),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Shutdown flushes and stops mp when it is an SDK provider. Other providers
// are left alone.
func Shutdown(ctx context.Context, mp metric.MeterProvider) error {
	sdkMP, ok := mp.(*sdkmetric.MeterProvider)
	if !ok {
		return nil
	}
	return sdkMP.Shutdown(ctx)
}
