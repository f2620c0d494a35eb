package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"
)

var errFillUnconfirmed = errors.New("fill not confirmed")

// FillPoller reads the executed price of an order from its venue status,
// polling until the order fills, dies, or the attempts run out.
type FillPoller struct {
	attempts int
	interval time.Duration
}

var _ interfaces.FillPriceProvider = (*FillPoller)(nil)

func NewFillPoller(attempts int, interval time.Duration) *FillPoller {
	if attempts < 1 {
		attempts = 1
	}
	return &FillPoller{attempts: attempts, interval: interval}
}

// ExecutedPrice returns the terminal status of orderID. When the fill cannot
// be confirmed it returns the last status seen together with an error.
func (fp *FillPoller) ExecutedPrice(ctx context.Context, brk interfaces.Broker, orderID string) (types.OrderStatus, error) {
	var (
		last    types.OrderStatus
		lastErr error
	)
	for attempt := 1; attempt <= fp.attempts; attempt++ {
		status, err := brk.OrderStatus(ctx, orderID)
		switch {
		case err != nil:
			lastErr = err
			if types.IsAuthFailure(err) {
				return last, err
			}
		case status.Filled() || status.Dead():
			return status, nil
		default:
			last = status
			lastErr = nil
		}

		logger.Debug(ctx, "Order not yet filled",
			"order_id", orderID,
			"status", last.Status,
			"attempt", attempt,
		)
		if attempt == fp.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("%w: %w", errFillUnconfirmed, ctx.Err())
		case <-time.After(fp.interval):
		}
	}

	if lastErr != nil {
		return last, fmt.Errorf("%w after %d attempts: %w", errFillUnconfirmed, fp.attempts, lastErr)
	}
	return last, fmt.Errorf("%w after %d attempts: last status %q", errFillUnconfirmed, fp.attempts, last.Status)
}
