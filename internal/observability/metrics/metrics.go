// Package metrics exposes the engine's OTLP instruments.
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
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	consumeOutcomes  metric.Int64Counter
	resets           metric.Int64Counter
	invoices         metric.Int64Counter
	outboxEvents     metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	consumeRetries   metric.Int64Counter
	sweepDuration    metric.Float64Histogram
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
		name = "revora"
	}
	meter := provider.Meter(name)

	consumeOutcomes, err := meter.Int64Counter("revora_consume_total")
	if err != nil {
		return nil, err
	}
	resets, err := meter.Int64Counter("revora_quota_resets_total")
	if err != nil {
		return nil, err
	}
	invoices, err := meter.Int64Counter("revora_invoices_total")
	if err != nil {
		return nil, err
	}
	outboxEvents, err := meter.Int64Counter("revora_outbox_events_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("revora_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	consumeRetries, err := meter.Int64Counter("revora_consume_retries_total")
	if err != nil {
		return nil, err
	}
	sweepDuration, err := meter.Float64Histogram("revora_sweep_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		consumeOutcomes: consumeOutcomes,
		resets:          resets,
		invoices:        invoices,
		outboxEvents:    outboxEvents,
		rateLimitDenied: rateLimitDenied,
		consumeRetries:  consumeRetries,
		sweepDuration:   sweepDuration,
	}, nil
}

// RecordConsume counts one tryConsume call by outcome (accepted, quota_exceeded,
// inactive, duplicate, transient).
func (m *Metrics) RecordConsume(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.consumeOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordReset counts one counter reset, lazy or swept.
func (m *Metrics) RecordReset(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.resets.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", strings.TrimSpace(trigger)),
	))
}

// RecordInvoice counts invoice lifecycle activity by resulting status.
func (m *Metrics) RecordInvoice(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.invoices.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strings.TrimSpace(status)),
	))
}

// RecordOutboxEvent counts published outbox events by type.
func (m *Metrics) RecordOutboxEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.outboxEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
	))
}

// RecordRateLimitDenied counts rejected requests at the rate limiter.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	))
}

// RecordConsumeRetry counts internal conflict retries.
func (m *Metrics) RecordConsumeRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.consumeRetries.Add(ctx, 1)
}

// RecordSweepDuration records one sweep cycle duration.
func (m *Metrics) RecordSweepDuration(ctx context.Context, job string, seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("job", strings.TrimSpace(job)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
