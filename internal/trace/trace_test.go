package trace

import (
	"context"
	"testing"
	"time"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestTradeAttributes(t *testing.T) {
	o := types.NewTradeOutcome("3f2a9c1e", time.Now())
	o.Quote = &types.Quote{Instrument: "NSE:NIFTY 50", Price: decimal.RequireFromString("24630.5")}
	call := o.Leg(types.Call)
	call.Entry = &types.OrderResp{OrderID: "E-CE"}
	call.Live = true
	o.Warn(&types.OrderError{Leg: types.Put, Stage: types.StageEntry, Err: &types.AuthError{Stage: "orders", Reason: "token expired"}})

	m := attrMap(TradeAttributes(o))

	assert.Equal(t, "3f2a9c1e", m["trade.id"].AsString())
	assert.Equal(t, "PARTIAL", m["trade.status"].AsString())
	assert.Equal(t, int64(1), m["trade.entry_orders"].AsInt64())
	assert.Equal(t, int64(1), m["trade.live_legs"].AsInt64())
	assert.Equal(t, int64(1), m["trade.warnings"].AsInt64())
	assert.True(t, m["trade.auth_failure"].AsBool())
	assert.Equal(t, "24630.5", m["trade.spot"].AsString())

	assert.Nil(t, TradeAttributes(nil))
}

func TestTradeAttributes_NoQuote(t *testing.T) {
	o := types.NewTradeOutcome("abc", time.Now())
	o.Err = types.ErrNoSession

	m := attrMap(TradeAttributes(o))

	assert.Equal(t, "FAILED", m["trade.status"].AsString())
	_, ok := m["trade.spot"]
	assert.False(t, ok)
}

func TestOrderAttributes(t *testing.T) {
	t.Run("stop loss", func(t *testing.T) {
		m := attrMap(OrderAttributes(types.OrderReq{
			Symbol: "NIFTY25O2124850CE", Side: types.Buy, OrderType: types.StopLimit, Quantity: 75,
			TriggerPrice: decimal.RequireFromString("150"), LimitPrice: decimal.RequireFromString("160"), Tag: "3f2a9c1e-CESL",
		}))
		assert.Equal(t, "NIFTY25O2124850CE", m["order.symbol"].AsString())
		assert.Equal(t, string(types.Buy), m["order.side"].AsString())
		assert.Equal(t, int64(75), m["order.qty"].AsInt64())
		assert.Equal(t, "150", m["order.trigger_price"].AsString())
		assert.Equal(t, "160", m["order.limit_price"].AsString())
	})

	t.Run("market", func(t *testing.T) {
		m := attrMap(OrderAttributes(types.OrderReq{Symbol: "NIFTY25O2124450PE", Side: types.Sell, OrderType: types.Market, Quantity: 75}))
		_, hasTrigger := m["order.trigger_price"]
		_, hasLimit := m["order.limit_price"]
		assert.False(t, hasTrigger)
		assert.False(t, hasLimit)
	})
}

func TestStartSpan_RecordsTradeAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prevTracer, prevEnabled := tracer, enabled
	tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer(serviceName)
	enabled = true
	defer func() { tracer, enabled = prevTracer, prevEnabled }()

	ctx, span := StartSpan(context.Background(), "engine.ExecuteStrangleWithStops")
	span.SetAttributes(TradeAttributes(types.NewTradeOutcome("abc", time.Now()))...)
	span.End()

	traceID, spanID, ok := GetTraceFields(ctx)
	require.True(t, ok)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "abc", attrMap(ended[0].Attributes())["trade.id"].AsString())
}

func TestStartSpan_DisabledReturnsParent(t *testing.T) {
	prevEnabled := enabled
	enabled = false
	defer func() { enabled = prevEnabled }()

	ctx, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	_, _, ok := GetTraceFields(ctx)
	assert.False(t, ok)
}
