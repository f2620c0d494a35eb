package trace

import (
	"context"
	"os"

	"kite-strangle-bot/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "kite-strangle-bot"

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

func Init() error {
	enabled = getEnv("LOG_TRACING_ENABLED", "true") == "true"
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		enabled = false
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		enabled = false
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(serviceName)
	return nil
}

func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// StartSpan returns the parent span unchanged when tracing is disabled.
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

func Enabled() bool {
	return enabled
}

func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", "", false
	}
	return span.SpanContext().TraceID().String(),
		span.SpanContext().SpanID().String(),
		true
}

// TradeAttributes describes a finished strangle for its span.
func TradeAttributes(o *types.TradeOutcome) []attribute.KeyValue {
	if o == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("trade.id", o.TradeID),
		attribute.String("trade.status", string(o.Status())),
		attribute.Int("trade.entry_orders", o.EntryOrders()),
		attribute.Int("trade.live_legs", o.LiveLegs()),
		attribute.Int("trade.warnings", len(o.Warnings)),
		attribute.Bool("trade.auth_failure", o.HasAuthFailure()),
	}
	if o.Quote != nil {
		attrs = append(attrs, attribute.String("trade.spot", o.Quote.Price.String()))
	}
	return attrs
}

// OrderAttributes describes an order request. Zero trigger and limit prices
// are left out so market entries carry no price attributes.
func OrderAttributes(req types.OrderReq) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("order.symbol", req.Symbol),
		attribute.String("order.side", string(req.Side)),
		attribute.String("order.type", string(req.OrderType)),
		attribute.Int("order.qty", req.Quantity),
		attribute.String("order.tag", req.Tag),
	}
	if !req.TriggerPrice.IsZero() {
		attrs = append(attrs, attribute.String("order.trigger_price", req.TriggerPrice.String()))
	}
	if !req.LimitPrice.IsZero() {
		attrs = append(attrs, attribute.String("order.limit_price", req.LimitPrice.String()))
	}
	return attrs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
