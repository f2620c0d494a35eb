package interfaces

import (
	"context"

	"kite-strangle-bot/internal/types"
)

// Authenticator performs the two-step venue login.
type Authenticator interface {
	// Login exchanges the configured credentials for a partial handle.
	Login(ctx context.Context) (types.PartialHandle, error)

	// CompleteSecondFactor turns a partial handle plus a one-time code into an authenticated broker.
	CompleteSecondFactor(ctx context.Context, partial types.PartialHandle, code string) (Broker, error)
}

// Broker is an authenticated handle to the venue.
type Broker interface {
	SearchInstrument(ctx context.Context, q types.ContractQuery) ([]types.ContractSymbol, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)
	Positions(ctx context.Context) ([]types.Position, error)
	Holdings(ctx context.Context) ([]types.Holding, error)

	// Feed returns the push-data channel bound to this handle.
	Feed() Feed

	// Close stops the feed and revokes the access token.
	Close(ctx context.Context) error
}

// Feed is the venue's asynchronous price stream. Tick handlers run on a
// goroutine owned by the feed.
type Feed interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Subscribe(ctx context.Context, tokens []uint32) error
	Unsubscribe(ctx context.Context, tokens []uint32) error
	OnTick(handler func(types.Tick))
}
