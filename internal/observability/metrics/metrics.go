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

// Metrics exposes ledger-level instruments.
type Metrics struct {
	ledgerEntries     metric.Int64Counter
	ledgerTokens      metric.Int64Counter
	ticketCompletions metric.Int64Counter
	withdrawals       metric.Int64Counter
	reconcileDrift    metric.Int64Counter
}

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
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tokenledger"
	}
	meter := provider.Meter(name)

	ledgerEntries, err := meter.Int64Counter("tokenledger_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	ledgerTokens, err := meter.Int64Counter("tokenledger_ledger_tokens_total")
	if err != nil {
		return nil, err
	}
	ticketCompletions, err := meter.Int64Counter("tokenledger_ticket_completions_total")
	if err != nil {
		return nil, err
	}
	withdrawals, err := meter.Int64Counter("tokenledger_withdrawal_transitions_total")
	if err != nil {
		return nil, err
	}
	reconcileDrift, err := meter.Int64Counter("tokenledger_reconcile_drift_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ledgerEntries:     ledgerEntries,
		ledgerTokens:      ledgerTokens,
		ticketCompletions: ticketCompletions,
		withdrawals:       withdrawals,
		reconcileDrift:    reconcileDrift,
	}, nil
}

// RecordLedgerEntry counts a committed entry and the tokens it moved.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, ownerKind, direction, reason string, amount int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("owner_kind", strings.TrimSpace(ownerKind)),
		attribute.String("direction", strings.TrimSpace(direction)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ledgerTokens.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordTicketCompletion counts completion attempts by outcome (paid, unpaid, replayed).
func (m *Metrics) RecordTicketCompletion(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.ticketCompletions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordWithdrawal(ctx context.Context, transition string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("transition", strings.TrimSpace(transition)))
	m.withdrawals.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReconcileDrift(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconcileDrift.Add(ctx, 1)
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"owner_kind":  {},
	"direction":   {},
	"reason":      {},
	"outcome":     {},
	"transition":  {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// Account and ticket ids never become labels.
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
