package engine

import (
	"context"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
)

// orderExecutor builds and submits the entry and stop orders of a leg.
type orderExecutor struct {
	exchange string
	product  string
	quantity int
}

func newOrderExecutor(exchange, product string, quantity int) *orderExecutor {
	return &orderExecutor{
		exchange: exchange,
		product:  product,
		quantity: quantity,
	}
}

func (oe *orderExecutor) exchangeFor(c types.ContractSymbol) string {
	if c.Exchange != "" {
		return c.Exchange
	}
	return oe.exchange
}

// placeEntry sells the contract at market.
func (oe *orderExecutor) placeEntry(ctx context.Context, brk interfaces.Broker, tradeID string, c types.ContractSymbol) (types.OrderResp, error) {
	req := types.OrderReq{
		Symbol:    c.Tradingsymbol,
		Exchange:  oe.exchangeFor(c),
		Side:      types.Sell,
		OrderType: types.Market,
		Product:   oe.product,
		Quantity:  oe.quantity,
		Tag:       orderTag(tradeID, c.OptionType, ""),
	}

	resp, err := brk.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place entry order", err,
			"symbol", c.Tradingsymbol,
			"qty", oe.quantity,
		)
		return types.OrderResp{}, err
	}
	return resp, nil
}

// placeStop buys the contract back with a stop-limit order.
func (oe *orderExecutor) placeStop(ctx context.Context, brk interfaces.Broker, tradeID string, c types.ContractSymbol, trigger, limit decimal.Decimal) (types.OrderResp, error) {
	req := types.OrderReq{
		Symbol:       c.Tradingsymbol,
		Exchange:     oe.exchangeFor(c),
		Side:         types.Buy,
		OrderType:    types.StopLimit,
		Product:      oe.product,
		Quantity:     oe.quantity,
		TriggerPrice: trigger,
		LimitPrice:   limit,
		Tag:          orderTag(tradeID, c.OptionType, "SL"),
	}

	resp, err := brk.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place stop order", err,
			"symbol", c.Tradingsymbol,
			"qty", oe.quantity,
			"trigger", trigger.String(),
			"limit", limit.String(),
		)
		return types.OrderResp{}, err
	}
	return resp, nil
}
