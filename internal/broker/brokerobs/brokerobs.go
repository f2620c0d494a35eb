package brokerobs

import (
	"context"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/trace"
	"kite-strangle-bot/internal/types"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

// WrapAuthenticator wraps an authenticator so every broker it produces is observable.
func WrapAuthenticator(auth interfaces.Authenticator) interfaces.Authenticator {
	return &observableAuthenticator{auth: auth}
}

func (ob *observableBroker) SearchInstrument(ctx context.Context, q types.ContractQuery) ([]types.ContractSymbol, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SearchInstrument", oteltrace.WithAttributes(
		attribute.String("underlying", q.Underlying),
		attribute.String("option_type", string(q.OptionType)),
		attribute.String("strike", q.Strike.String()),
	))
	defer span.End()

	out, err := ob.broker.SearchInstrument(ctx, q)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Instrument search failed", err,
			"underlying", q.Underlying, "option_type", q.OptionType, "strike", q.Strike.String())
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Instrument search completed",
		"underlying", q.Underlying, "option_type", q.OptionType, "strike", q.Strike.String(), "matches", len(out))
	return out, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder", oteltrace.WithAttributes(trace.OrderAttributes(req)...))
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"order_type", req.OrderType,
		"qty", req.Quantity,
		"tag", req.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Quantity,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}

func (ob *observableBroker) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OrderStatus")
	defer span.End()

	st, err := ob.broker.OrderStatus(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order status", err, "order_id", orderID)
		return types.OrderStatus{}, err
	}

	logger.DebugSkip(ctx, 1, "Order status fetched",
		"order_id", orderID, "status", st.Status, "price", st.ExecutedPrice.String())
	return st, nil
}

func (ob *observableBroker) Positions(ctx context.Context) ([]types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Positions")
	defer span.End()

	out, err := ob.broker.Positions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err)
	}
	return out, err
}

func (ob *observableBroker) Holdings(ctx context.Context) ([]types.Holding, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Holdings")
	defer span.End()

	out, err := ob.broker.Holdings(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch holdings", err)
	}
	return out, err
}

func (ob *observableBroker) Feed() interfaces.Feed {
	return ob.broker.Feed()
}

// Close shuts down the broker with observability
func (ob *observableBroker) Close(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Close")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing broker session")
	if err := ob.broker.Close(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker close reported an error", err)
		return err
	}
	logger.InfoSkip(ctx, 1, "Broker session closed")
	return nil
}

type observableAuthenticator struct {
	auth interfaces.Authenticator
}

func (oa *observableAuthenticator) Login(ctx context.Context) (types.PartialHandle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Login")
	defer span.End()

	partial, err := oa.auth.Login(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Venue login failed", err)
		return types.PartialHandle{}, err
	}
	logger.InfoSkip(ctx, 1, "Venue login accepted", "user_id", partial.UserID)
	return partial, nil
}

func (oa *observableAuthenticator) CompleteSecondFactor(ctx context.Context, partial types.PartialHandle, code string) (interfaces.Broker, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CompleteSecondFactor")
	defer span.End()

	brk, err := oa.auth.CompleteSecondFactor(ctx, partial, code)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Second factor rejected", err, "user_id", partial.UserID)
		return nil, err
	}
	logger.InfoSkip(ctx, 1, "Second factor accepted", "user_id", partial.UserID)
	return Wrap(brk), nil
}
