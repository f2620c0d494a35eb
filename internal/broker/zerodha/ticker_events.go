package zerodha

import (
	"context"
	"time"

	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

// setupEventHandlers configures all WebSocket event callbacks
func (tm *tickerManager) setupEventHandlers() {
	tm.ticker.OnConnect(tm.onConnect)
	tm.ticker.OnError(tm.onError)
	tm.ticker.OnClose(tm.onClose)
	tm.ticker.OnReconnect(tm.onReconnect)
	tm.ticker.OnNoReconnect(tm.onNoReconnect)
	tm.ticker.OnTick(tm.onTick)
	tm.ticker.OnOrderUpdate(tm.onOrderUpdate)
}

func (tm *tickerManager) onConnect() {
	tm.connectOnce.Do(func() { close(tm.connected) })
	logger.Info(context.Background(), "WebSocket connected successfully")
}

func (tm *tickerManager) onError(err error) {
	logger.ErrorWithErr(context.Background(), "WebSocket error occurred", err)
}

func (tm *tickerManager) onClose(code int, reason string) {
	logger.Warn(context.Background(), "WebSocket connection closed",
		"code", code,
		"reason", reason,
	)
}

func (tm *tickerManager) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "WebSocket reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (tm *tickerManager) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "WebSocket reconnection failed - giving up",
		"attempts", attempt,
	)
}

func (tm *tickerManager) onTick(tick models.Tick) {
	tm.mu.RLock()
	handler := tm.handler
	tm.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(convertTick(tick, time.Now()))
}

func (tm *tickerManager) onOrderUpdate(order kiteconnect.Order) {
	logger.Debug(context.Background(), "Order update received",
		"order_id", order.OrderID,
		"status", order.Status,
		"symbol", order.TradingSymbol,
	)
}

// convertTick maps a websocket tick to a Tick. LTP-mode packets carry no
// exchange timestamp, so receipt time is used instead.
func convertTick(tick models.Tick, received time.Time) types.Tick {
	at := tick.Timestamp.Time
	if at.IsZero() {
		at = received
	}
	return types.Tick{
		Token: tick.InstrumentToken,
		Price: decimal.NewFromFloat(tick.LastPrice),
		At:    at,
	}
}
