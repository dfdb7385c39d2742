package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"givevault/config"
	"givevault/events"
	"givevault/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsProvider manages the OpenTelemetry instruments for ledger operations
type MetricsProvider struct {
	config        *config.Config
	reader        sdkmetric.Reader
	meterProvider *sdkmetric.MeterProvider
	initialized   bool
	mu            sync.RWMutex

	operationsCounter metric.Int64Counter
	donationsCounter  metric.Float64Counter
	sinkCounter       metric.Int64Counter
}

// Option configures a MetricsProvider
type Option func(*MetricsProvider)

// WithReader replaces the periodic stdout exporter, e.g. with a manual reader in tests
func WithReader(reader sdkmetric.Reader) Option {
	return func(mp *MetricsProvider) {
		mp.reader = reader
	}
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config, opts ...Option) *MetricsProvider {
	mp := &MetricsProvider{config: cfg}
	for _, opt := range opts {
		opt(mp)
	}
	return mp
}

// Initialize sets up the meter provider and instruments. A disabled provider records nothing.
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
			attribute.String("vault.id", mp.config.VaultID),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mp.reader
	if reader == nil {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(mp.config.OTelExportInterval))
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)

	if err := mp.createInstruments(mp.meterProvider.Meter(MetricPrefix)); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.WithField("interval", mp.config.OTelExportInterval).Info("Metrics provider initialized")
	return nil
}

func (mp *MetricsProvider) createInstruments(meter metric.Meter) error {
	var err error

	mp.operationsCounter, err = meter.Int64Counter(
		LedgerOperationsTotal,
		metric.WithDescription("Ledger operations by name and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations counter: %w", err)
	}

	mp.donationsCounter, err = meter.Float64Counter(
		DonationsTotal,
		metric.WithDescription("Asset base units forwarded to the beneficiary"),
	)
	if err != nil {
		return fmt.Errorf("failed to create donations counter: %w", err)
	}

	mp.sinkCounter, err = meter.Int64Counter(
		SinkRecordsTotal,
		metric.WithDescription("Records shipped to external sinks"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sink counter: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordOperation counts one ledger operation
func (mp *MetricsProvider) RecordOperation(ctx context.Context, op string, err error) {
	if !mp.isEnabled() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(LabelOperation, op),
		attribute.String(LabelOutcome, outcome(err)),
	}
	if err != nil {
		attrs = append(attrs, attribute.String(LabelErrorType, ErrorType(err)))
	}
	mp.operationsCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDonation adds forwarded yield
func (mp *MetricsProvider) RecordDonation(ctx context.Context, amount decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}
	mp.donationsCounter.Add(ctx, amount.InexactFloat64())
}

// RecordSinkPublish counts one record shipped to an external sink
func (mp *MetricsProvider) RecordSinkPublish(ctx context.Context, sink string, eventType events.EventType, err error) {
	if !mp.isEnabled() {
		return
	}
	mp.sinkCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(LabelSink, sink),
		attribute.String(LabelEventType, string(eventType)),
		attribute.String(LabelOutcome, outcome(err)),
	))
}

func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.config.OTelEnabled
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ErrorType classifies err into a low-cardinality label
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, service.ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, service.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, service.ErrPaused):
		return "paused"
	case errors.Is(err, service.ErrConflict):
		return "conflict"
	case service.IsValidationError(err):
		return "validation"
	case service.IsCollaboratorError(err):
		return "collaborator"
	default:
		return "internal"
	}
}
