package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsUnboundedLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", "T1"),
		attribute.String("call_id", "C1"),
		attribute.String("intent", "sale_closed"),
		attribute.String("status", "recorded"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("intent"), attrs[0].Key)
	assert.Equal(t, attribute.Key("status"), attrs[1].Key)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordIntake(context.Background(), "recorded", "")
		m.RecordLedgerAppend(context.Background(), "sale_closed", 1000)
		m.RecordDispatch(context.Background(), "stripe", "dispatched")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "revshare"}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordSuccessFee(context.Background(), true)
		m.RecordRoyaltyEntries(context.Background(), 3)
	})
}
