package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"givevault/config"
	"givevault/events"
	"givevault/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestProvider(t *testing.T, enabled bool) (*MetricsProvider, *sdkmetric.ManualReader) {
	t.Helper()
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = enabled

	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProvider(cfg, WithReader(reader))
	require.NoError(t, mp.Initialize(context.Background()))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsProvider_RecordOperation(t *testing.T) {
	mp, reader := newTestProvider(t, true)
	ctx := context.Background()

	mp.RecordOperation(ctx, "deposit", nil)
	mp.RecordOperation(ctx, "deposit", nil)
	mp.RecordOperation(ctx, "withdraw", fmt.Errorf("wrapped: %w", service.ErrInsufficientShares))

	metrics := collect(t, reader)
	ops, ok := metrics[LedgerOperationsTotal]
	require.True(t, ok)
	sum, ok := ops.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value(attribute.Key(LabelOperation))
		result, _ := dp.Attributes.Value(attribute.Key(LabelOutcome))
		counts[op.AsString()+"/"+result.AsString()] = dp.Value
		if result.AsString() == OutcomeFailure {
			errType, _ := dp.Attributes.Value(attribute.Key(LabelErrorType))
			assert.Equal(t, "validation", errType.AsString())
		}
	}
	assert.Equal(t, int64(2), counts["deposit/success"])
	assert.Equal(t, int64(1), counts["withdraw/failure"])
}

func TestMetricsProvider_DonationsAndSinks(t *testing.T) {
	mp, reader := newTestProvider(t, true)
	ctx := context.Background()

	mp.RecordDonation(ctx, decimal.NewFromInt(40))
	mp.RecordDonation(ctx, decimal.NewFromInt(2))
	mp.RecordSinkPublish(ctx, "kafka", events.EventTypeHarvest, nil)

	metrics := collect(t, reader)
	donated := metrics[DonationsTotal].Data.(metricdata.Sum[float64])
	require.Len(t, donated.DataPoints, 1)
	assert.Equal(t, 42.0, donated.DataPoints[0].Value)

	sinks := metrics[SinkRecordsTotal].Data.(metricdata.Sum[int64])
	require.Len(t, sinks.DataPoints, 1)
	assert.Equal(t, int64(1), sinks.DataPoints[0].Value)
}

func TestMetricsProvider_Disabled(t *testing.T) {
	mp, reader := newTestProvider(t, false)

	assert.NotPanics(t, func() {
		mp.RecordOperation(context.Background(), "deposit", nil)
		mp.RecordDonation(context.Background(), decimal.NewFromInt(1))
		mp.RecordSinkPublish(context.Background(), "nats", events.EventTypeDeposit, errors.New("down"))
	})

	var rm metricdata.ResourceMetrics
	assert.Error(t, reader.Collect(context.Background(), &rm), "reader is never registered when disabled")
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "", ErrorType(nil))
	assert.Equal(t, "paused", ErrorType(service.ErrPaused))
	assert.Equal(t, "unauthorized", ErrorType(service.ErrUnauthorized))
	assert.Equal(t, "reentrant", ErrorType(service.ErrReentrantCall))
	assert.Equal(t, "collaborator", ErrorType(fmt.Errorf("x: %w", service.ErrTransferFailed)))
	assert.Equal(t, "validation", ErrorType(service.ErrZeroAmount))
	assert.Equal(t, "internal", ErrorType(errors.New("boom")))
}
