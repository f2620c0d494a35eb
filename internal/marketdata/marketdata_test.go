package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	mu           sync.Mutex
	handler      func(types.Tick)
	subscribes   map[uint32]int
	unsubscribes map[uint32]int
	subscribeErr error
	stopped      bool
	onSubscribe  func(token uint32)
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subscribes: map[uint32]int{}, unsubscribes: map[uint32]int{}}
}

func (f *fakeFeed) Start(context.Context) error { return nil }

func (f *fakeFeed) Stop(context.Context) {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeFeed) Subscribe(_ context.Context, tokens []uint32) error {
	f.mu.Lock()
	if f.subscribeErr != nil {
		f.mu.Unlock()
		return f.subscribeErr
	}
	for _, t := range tokens {
		f.subscribes[t]++
	}
	hook := f.onSubscribe
	f.mu.Unlock()

	if hook != nil {
		for _, t := range tokens {
			go hook(t)
		}
	}
	return nil
}

func (f *fakeFeed) Unsubscribe(_ context.Context, tokens []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tokens {
		f.unsubscribes[t]++
	}
	return nil
}

func (f *fakeFeed) OnTick(h func(types.Tick)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeFeed) emit(tick types.Tick) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(tick)
}

func (f *fakeFeed) counts(token uint32) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[token], f.unsubscribes[token]
}

type fakeSession struct {
	stream interfaces.QuoteStream
}

func (s fakeSession) Broker() interfaces.Broker      { return nil }
func (s fakeSession) Quotes() interfaces.QuoteStream { return s.stream }
func (s fakeSession) UserID() string                 { return "AB1234" }
func (s fakeSession) ExpiresAt() time.Time           { return time.Now().Add(time.Hour) }

const niftyToken = uint32(256265)

var nifty = types.Instrument{Symbol: "NSE:NIFTY 50", Token: niftyToken}

func startStream(t *testing.T, feed *fakeFeed) *Stream {
	t.Helper()
	s := NewStream(feed)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestAcquireQuote_ReturnsFirstTick(t *testing.T) {
	feed := newFakeFeed()
	stream := startStream(t, feed)
	at := time.Date(2025, 10, 17, 9, 20, 0, 0, time.UTC)
	feed.onSubscribe = func(token uint32) {
		feed.emit(types.Tick{Token: token, Price: decimal.RequireFromString("24630"), At: at})
	}

	q, err := NewGateway().AcquireQuote(context.Background(), fakeSession{stream}, nifty, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "NSE:NIFTY 50", q.Instrument)
	assert.True(t, decimal.NewFromInt(24630).Equal(q.Price))
	assert.Equal(t, at, q.ObservedAt)

	subs, unsubs := feed.counts(niftyToken)
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, unsubs)
	assert.Zero(t, stream.Subscriptions())
}

func TestAcquireQuote_TimeoutLeavesNoSubscription(t *testing.T) {
	feed := newFakeFeed()
	stream := startStream(t, feed)

	start := time.Now()
	_, err := NewGateway().AcquireQuote(context.Background(), fakeSession{stream}, nifty, 30*time.Millisecond)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	var timeoutErr *types.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "NSE:NIFTY 50", timeoutErr.Instrument)

	subs, unsubs := feed.counts(niftyToken)
	assert.Equal(t, subs, unsubs)
	assert.Zero(t, stream.Subscriptions())

	// A late tick finds no waiter and is dropped.
	feed.emit(types.Tick{Token: niftyToken, Price: decimal.NewFromInt(1)})
}

func TestAcquireQuote_CallerCancellation(t *testing.T) {
	feed := newFakeFeed()
	stream := startStream(t, feed)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := NewGateway().AcquireQuote(ctx, fakeSession{stream}, nifty, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stream.Subscriptions())
}

func TestAcquireQuote_StreamClosedMidWait(t *testing.T) {
	feed := newFakeFeed()
	stream := startStream(t, feed)
	feed.onSubscribe = func(uint32) {
		time.Sleep(10 * time.Millisecond)
		stream.Close(context.Background())
	}

	_, err := NewGateway().AcquireQuote(context.Background(), fakeSession{stream}, nifty, 5*time.Second)
	assert.ErrorIs(t, err, types.ErrStreamClosed)
	feed.mu.Lock()
	assert.True(t, feed.stopped)
	feed.mu.Unlock()

	_, _, err = stream.Watch(context.Background(), niftyToken)
	assert.ErrorIs(t, err, types.ErrStreamClosed)
}

func TestAcquireQuote_NoSession(t *testing.T) {
	_, err := NewGateway().AcquireQuote(context.Background(), nil, nifty, time.Second)
	assert.ErrorIs(t, err, types.ErrNoSession)
}

func TestWatch_SubscribeFailureLeavesNoWaiter(t *testing.T) {
	feed := newFakeFeed()
	feed.subscribeErr = errors.New("socket gone")
	stream := startStream(t, feed)

	_, _, err := stream.Watch(context.Background(), niftyToken)
	require.Error(t, err)
	assert.Zero(t, stream.Subscriptions())

	stream.mu.Lock()
	assert.Empty(t, stream.waiters)
	stream.mu.Unlock()
}

func TestWatch_SharedTokenIsRefCounted(t *testing.T) {
	feed := newFakeFeed()
	stream := startStream(t, feed)
	ctx := context.Background()

	ch1, release1, err := stream.Watch(ctx, niftyToken)
	require.NoError(t, err)
	ch2, release2, err := stream.Watch(ctx, niftyToken)
	require.NoError(t, err)

	subs, _ := feed.counts(niftyToken)
	assert.Equal(t, 1, subs)

	feed.emit(types.Tick{Token: niftyToken, Price: decimal.NewFromInt(24630)})
	assert.True(t, decimal.NewFromInt(24630).Equal((<-ch1).Price))
	assert.True(t, decimal.NewFromInt(24630).Equal((<-ch2).Price))

	release1()
	release1()
	_, unsubs := feed.counts(niftyToken)
	assert.Zero(t, unsubs)

	release2()
	_, unsubs = feed.counts(niftyToken)
	assert.Equal(t, 1, unsubs)
}

func TestWatch_ConcurrentAcquisitionsAreIsolated(t *testing.T) {
	feed := newFakeFeed()
	stream := startStream(t, feed)
	feed.onSubscribe = func(token uint32) {
		feed.emit(types.Tick{Token: token, Price: decimal.NewFromInt(int64(token))})
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]types.Quote, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst := types.Instrument{Symbol: "T", Token: uint32(1000 + i)}
			results[i], errs[i] = NewGateway().AcquireQuote(context.Background(), fakeSession{stream}, inst, 2*time.Second)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.True(t, decimal.NewFromInt(int64(1000+i)).Equal(results[i].Price), "acquisition %d got another token's tick", i)
	}
	assert.Zero(t, stream.Subscriptions())
}
