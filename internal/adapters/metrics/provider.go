package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// DefaultExportInterval is how often metrics are pushed.
const DefaultExportInterval = 10 * time.Second

// ProviderConfig configures the OTLP exporter.
type ProviderConfig struct {
	ServiceName string
	Version     string

	// Endpoint is host:port of the collector; empty uses
	// OTEL_EXPORTER_OTLP_ENDPOINT or the exporter default
	Endpoint string
	Insecure bool
	Interval time.Duration
}

// Setup installs a global MeterProvider pushing over OTLP/HTTP.
// Call Shutdown on the returned provider to flush and stop it.
func Setup(ctx context.Context, cfg ProviderConfig) (*sdkmetric.MeterProvider, error) {
	var opts []otlpmetrichttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultExportInterval
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval),
		)),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}
