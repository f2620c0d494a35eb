package session

import (
	"context"
	"sync"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/marketdata"
)

// Session is an authenticated venue handle plus its quote stream. It is usable
// only while now < CreatedAt+TTL.
type Session struct {
	broker    interfaces.Broker
	quotes    *marketdata.Stream
	userID    string
	createdAt time.Time
	ttl       time.Duration

	closeOnce sync.Once
}

var _ interfaces.Session = (*Session)(nil)

func (s *Session) Broker() interfaces.Broker      { return s.broker }
func (s *Session) Quotes() interfaces.QuoteStream { return s.quotes }
func (s *Session) UserID() string                 { return s.userID }
func (s *Session) CreatedAt() time.Time           { return s.createdAt }
func (s *Session) ExpiresAt() time.Time           { return s.createdAt.Add(s.ttl) }

func (s *Session) validAt(now time.Time) bool {
	return now.Before(s.ExpiresAt())
}

// close stops the quote stream and revokes the venue token.
func (s *Session) close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.quotes.Close(ctx)
		err = s.broker.Close(ctx)
	})
	return err
}
