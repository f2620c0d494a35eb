package zerodha

import (
	"time"

	"kite-strangle-bot/internal/interfaces"
)

// NewAuthenticator returns the Kite web-login authenticator.
func NewAuthenticator(p AuthParams) interfaces.Authenticator {
	return newWebAuthenticator(p)
}

func newTickerManager(apiKey, accessToken string, connectTimeout time.Duration) *tickerManager {
	return &tickerManager{
		apiKey:         apiKey,
		accessToken:    accessToken,
		connectTimeout: connectTimeout,
		connected:      make(chan struct{}),
	}
}
