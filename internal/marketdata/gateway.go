package marketdata

import (
	"context"
	"fmt"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"
)

type Gateway struct{}

var _ interfaces.QuoteGateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{}
}

// AcquireQuote waits for the next tick of instrument on the session's stream.
// The subscription is released on every return path.
func (g *Gateway) AcquireQuote(ctx context.Context, sess interfaces.Session, instrument types.Instrument, timeout time.Duration) (types.Quote, error) {
	if sess == nil {
		return types.Quote{}, types.ErrNoSession
	}

	ticks, release, err := sess.Quotes().Watch(ctx, instrument.Token)
	if err != nil {
		return types.Quote{}, fmt.Errorf("watch %s: %w", instrument.Symbol, err)
	}
	defer release()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case tick, ok := <-ticks:
		if !ok {
			return types.Quote{}, types.ErrStreamClosed
		}
		logger.Debug(ctx, "Quote acquired", "instrument", instrument.Symbol, "price", tick.Price.String())
		return types.Quote{
			Instrument: instrument.Symbol,
			Token:      tick.Token,
			Price:      tick.Price,
			ObservedAt: tick.At,
		}, nil
	case <-timer.C:
		return types.Quote{}, &types.TimeoutError{Instrument: instrument.Symbol, After: timeout}
	case <-ctx.Done():
		return types.Quote{}, ctx.Err()
	}
}
