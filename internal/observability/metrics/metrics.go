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

// Metrics exposes application-level instruments for the reconciliation
// pipeline. All methods are nil-safe so callers never need to guard.
type Metrics struct {
	runsEnqueued   metric.Int64Counter
	runsFinished   metric.Int64Counter
	factsPublished metric.Int64Counter
	findings       metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tally"
	}
	meter := provider.Meter(name)

	runsEnqueued, err := meter.Int64Counter("tally_runs_enqueued_total")
	if err != nil {
		return nil, err
	}
	runsFinished, err := meter.Int64Counter("tally_runs_finished_total")
	if err != nil {
		return nil, err
	}
	factsPublished, err := meter.Int64Counter("tally_facts_published_total")
	if err != nil {
		return nil, err
	}
	findings, err := meter.Int64Counter("tally_findings_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runsEnqueued:   runsEnqueued,
		runsFinished:   runsFinished,
		factsPublished: factsPublished,
		findings:       findings,
	}, nil
}

// RecordRunEnqueued counts a queued reconciliation run by its trigger.
func (m *Metrics) RecordRunEnqueued(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	m.runsEnqueued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRunFinished counts a run reaching a terminal status.
func (m *Metrics) RecordRunFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// AddFactsPublished counts rows published into the derived dataset by grain.
func (m *Metrics) AddFactsPublished(ctx context.Context, grain string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("grain", strings.TrimSpace(grain)))
	m.factsPublished.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordFinding counts one data quality finding.
func (m *Metrics) RecordFinding(ctx context.Context, code, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("code", strings.TrimSpace(code)),
		attribute.String("severity", strings.TrimSpace(severity)),
	)
	m.findings.Add(ctx, 1, metric.WithAttributes(attrs...))
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

// Identifier-shaped labels (order ids, customer ids) are deliberately absent:
// every label here has a small fixed value set.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"trigger":     {},
	"status":      {},
	"status_code": {},
	"grain":       {},
	"code":        {},
	"severity":    {},
	"route":       {},
	"method":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
