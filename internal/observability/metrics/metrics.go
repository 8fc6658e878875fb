package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	creditDeductions    metric.Int64Counter
	insufficientCredits metric.Int64Counter
	purchases           metric.Int64Counter
	sweepRuns           metric.Int64Counter
	sweepProcessed      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "voxbill"
	}
	meter := provider.Meter(name)

	creditDeductions, err := meter.Int64Counter("voxbill_credit_deductions_total")
	if err != nil {
		return nil, err
	}
	insufficientCredits, err := meter.Int64Counter("voxbill_insufficient_credits_total")
	if err != nil {
		return nil, err
	}
	purchases, err := meter.Int64Counter("voxbill_purchases_total")
	if err != nil {
		return nil, err
	}
	sweepRuns, err := meter.Int64Counter("voxbill_sweep_runs_total")
	if err != nil {
		return nil, err
	}
	sweepProcessed, err := meter.Int64Counter("voxbill_sweep_processed_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		creditDeductions:    creditDeductions,
		insufficientCredits: insufficientCredits,
		purchases:           purchases,
		sweepRuns:           sweepRuns,
		sweepProcessed:      sweepProcessed,
	}, nil
}

func (m *Metrics) RecordDeduction(ctx context.Context, trigger string) {
	if m == nil || m.creditDeductions == nil {
		return
	}
	m.creditDeductions.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

func (m *Metrics) RecordInsufficientCredits(ctx context.Context, trigger string) {
	if m == nil || m.insufficientCredits == nil {
		return
	}
	m.insufficientCredits.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

func (m *Metrics) RecordPurchase(ctx context.Context) {
	if m == nil || m.purchases == nil {
		return
	}
	m.purchases.Add(ctx, 1)
}

func (m *Metrics) RecordSweep(ctx context.Context, processed, failed int) {
	if m == nil {
		return
	}
	if m.sweepRuns != nil {
		m.sweepRuns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("clean", failed == 0)))
	}
	if m.sweepProcessed != nil && processed > 0 {
		m.sweepProcessed.Add(ctx, int64(processed))
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter %q", protocol)
	}
}
