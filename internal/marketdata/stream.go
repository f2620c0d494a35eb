package marketdata

import (
	"context"
	"fmt"
	"sync"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"
)

// Stream fans ticks from one feed connection out to single-slot waiters.
// Venue subscriptions are reference counted per token: the first watcher
// subscribes and the last release unsubscribes.
type Stream struct {
	feed interfaces.Feed

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	waiters map[uint32]map[uint64]chan types.Tick

	// subMu serializes subscribe/unsubscribe round-trips. Lock order: subMu, then mu.
	subMu sync.Mutex
	refs  map[uint32]int
}

var _ interfaces.QuoteStream = (*Stream)(nil)

func NewStream(feed interfaces.Feed) *Stream {
	return &Stream{
		feed:    feed,
		waiters: make(map[uint32]map[uint64]chan types.Tick),
		refs:    make(map[uint32]int),
	}
}

// Start installs the tick handler and connects the feed.
func (s *Stream) Start(ctx context.Context) error {
	s.feed.OnTick(s.dispatch)
	if err := s.feed.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	return nil
}

// Watch returns a channel that receives at most one tick for token. The
// channel is closed if the stream closes first.
func (s *Stream) Watch(ctx context.Context, token uint32) (<-chan types.Tick, func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, types.ErrStreamClosed
	}
	id := s.nextID
	s.nextID++
	ch := make(chan types.Tick, 1)
	if s.waiters[token] == nil {
		s.waiters[token] = make(map[uint64]chan types.Tick)
	}
	s.waiters[token][id] = ch
	s.mu.Unlock()

	if err := s.acquire(ctx, token); err != nil {
		s.removeWaiter(token, id)
		return nil, nil, err
	}

	detached := context.WithoutCancel(ctx)
	var once sync.Once
	release := func() {
		once.Do(func() {
			s.removeWaiter(token, id)
			s.releaseSubscription(detached, token)
		})
	}
	return ch, release, nil
}

// Close releases every waiter and stops the feed. Safe to call more than once.
func (s *Stream) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, byID := range s.waiters {
		for _, ch := range byID {
			close(ch)
		}
	}
	s.waiters = make(map[uint32]map[uint64]chan types.Tick)
	s.mu.Unlock()

	s.subMu.Lock()
	s.refs = make(map[uint32]int)
	s.subMu.Unlock()

	s.feed.Stop(ctx)
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// dispatch runs on the feed's goroutine and must never block.
func (s *Stream) dispatch(tick types.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.waiters[tick.Token]
	if !ok {
		return
	}
	for _, ch := range byID {
		select {
		case ch <- tick:
		default:
		}
	}
	delete(s.waiters, tick.Token)
}

func (s *Stream) removeWaiter(token uint32, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.waiters[token]
	if !ok {
		return
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(s.waiters, token)
	}
}

func (s *Stream) acquire(ctx context.Context, token uint32) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.refs[token]++
	if s.refs[token] > 1 {
		return nil
	}
	if err := s.feed.Subscribe(ctx, []uint32{token}); err != nil {
		delete(s.refs, token)
		return fmt.Errorf("subscribe %d: %w", token, err)
	}
	return nil
}

func (s *Stream) releaseSubscription(ctx context.Context, token uint32) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	n, ok := s.refs[token]
	if !ok {
		return
	}
	if n > 1 {
		s.refs[token] = n - 1
		return
	}
	delete(s.refs, token)

	if s.isClosed() {
		return
	}
	if err := s.feed.Unsubscribe(ctx, []uint32{token}); err != nil {
		logger.Warn(ctx, "Failed to unsubscribe token", "token", token, "error", err)
	}
}

// Subscriptions returns the number of tokens currently subscribed on the venue.
func (s *Stream) Subscriptions() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.refs)
}
