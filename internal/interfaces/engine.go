package interfaces

import (
	"context"
	"time"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
)

// QuoteStream multiplexes one feed connection across concurrent acquisitions.
type QuoteStream interface {
	// Watch registers interest in the next tick of token. release must be
	// called exactly when the caller stops waiting; calling it again is a no-op.
	Watch(ctx context.Context, token uint32) (ticks <-chan types.Tick, release func(), err error)
	Close(ctx context.Context)
}

// Session is the authenticated context every trading component runs against.
type Session interface {
	Broker() Broker
	Quotes() QuoteStream
	UserID() string
	ExpiresAt() time.Time
}

type QuoteGateway interface {
	AcquireQuote(ctx context.Context, sess Session, instrument types.Instrument, timeout time.Duration) (types.Quote, error)
}

type SymbolResolver interface {
	NextExpiry(today time.Time) time.Time
	ResolveStrangleLegs(ctx context.Context, sess Session, spot decimal.Decimal, expiry time.Time) (types.StrangleLegs, error)
}

// FillPriceProvider reports the executed price of an entry order.
type FillPriceProvider interface {
	ExecutedPrice(ctx context.Context, brk Broker, orderID string) (types.OrderStatus, error)
}

type Engine interface {
	ExecuteStrangleWithStops(ctx context.Context, sess Session) *types.TradeOutcome
}

// Notifier delivers human-readable status text to the messaging collaborator.
type Notifier interface {
	SendText(ctx context.Context, text string) error
}
