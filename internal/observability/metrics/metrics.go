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

// Metrics exposes the revenue pipeline instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	intakeOutcomes  metric.Int64Counter
	ledgerAppends   metric.Int64Counter
	recoveredAmount metric.Int64Counter
	successFees     metric.Int64Counter
	dispatches      metric.Int64Counter
	royaltyEntries  metric.Int64Counter
	rateLimitDenied metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
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

// New creates the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "revshare"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		unit string
	}{
		{&m.intakeOutcomes, "revshare_intake_notifications_total", "{notification}"},
		{&m.ledgerAppends, "revshare_ledger_appends_total", "{event}"},
		{&m.recoveredAmount, "revshare_recovered_amount_minor_total", "{minor_unit}"},
		{&m.successFees, "revshare_success_fees_total", "{charge}"},
		{&m.dispatches, "revshare_invoice_dispatches_total", "{dispatch}"},
		{&m.royaltyEntries, "revshare_royalty_entries_total", "{entry}"},
		{&m.rateLimitDenied, "revshare_rate_limit_denied_total", "{request}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// RecordIntake counts one notification by outcome and reason code.
func (m *Metrics) RecordIntake(ctx context.Context, status, reason string) {
	if m == nil {
		return
	}
	m.intakeOutcomes.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("status", status),
		attribute.String("reason", reason),
	)...))
}

// RecordLedgerAppend counts a newly recorded revenue event.
func (m *Metrics) RecordLedgerAppend(ctx context.Context, intent string, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("intent", intent))...)
	m.ledgerAppends.Add(ctx, 1, attrs)
	if amount > 0 {
		m.recoveredAmount.Add(ctx, amount, attrs)
	}
}

// RecordSuccessFee counts fee computations; created is false for replays.
func (m *Metrics) RecordSuccessFee(ctx context.Context, created bool) {
	if m == nil {
		return
	}
	m.successFees.Add(ctx, 1, metric.WithAttributes(attribute.Bool("created", created)))
}

// RecordDispatch counts dispatch attempts by outcome.
func (m *Metrics) RecordDispatch(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)...))
}

// RecordRoyaltyEntries counts ledger entries written by a royalty run.
func (m *Metrics) RecordRoyaltyEntries(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.royaltyEntries.Add(ctx, int64(count))
}

// RecordRateLimitDenied counts intake requests rejected by the limiter.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Tenant and call identifiers are deliberately absent: they are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":   {},
	"reason":   {},
	"intent":   {},
	"provider": {},
	"outcome":  {},
	"endpoint": {},
	"tier":     {},
	"region":   {},
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
