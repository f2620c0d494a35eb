package zerodha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

const defaultConnectTimeout = 10 * time.Second

var errTickerNotConnected = errors.New("ticker not connected")

// tickerManager adapts the Kite websocket ticker to interfaces.Feed. Ticks are
// streamed in LTP mode only.
type tickerManager struct {
	apiKey         string
	accessToken    string
	connectTimeout time.Duration

	ticker *kiteticker.Ticker

	connected   chan struct{}
	connectOnce sync.Once
	stopOnce    sync.Once

	mu      sync.RWMutex
	handler func(types.Tick)
	stopped bool
}

var _ interfaces.Feed = (*tickerManager)(nil)

func (tm *tickerManager) OnTick(handler func(types.Tick)) {
	tm.mu.Lock()
	tm.handler = handler
	tm.mu.Unlock()
}

// Start connects the websocket and blocks until the first connect event, the
// connect timeout or ctx cancellation.
func (tm *tickerManager) Start(ctx context.Context) error {
	tm.ticker = kiteticker.New(tm.apiKey, tm.accessToken)
	tm.setupEventHandlers()

	go func() {
		logger.Info(ctx, "Starting Kite websocket ticker")
		tm.ticker.Serve()
	}()

	timeout := tm.connectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tm.connected:
		return nil
	case <-timer.C:
		tm.Stop(ctx)
		return fmt.Errorf("ticker did not connect within %s", timeout)
	case <-ctx.Done():
		tm.Stop(ctx)
		return ctx.Err()
	}
}

func (tm *tickerManager) Stop(ctx context.Context) {
	tm.stopOnce.Do(func() {
		tm.mu.Lock()
		tm.stopped = true
		tm.mu.Unlock()

		if tm.ticker != nil {
			logger.Info(ctx, "Stopping Kite websocket ticker")
			tm.ticker.Stop()
		}
	})
}

func (tm *tickerManager) ready() error {
	tm.mu.RLock()
	stopped := tm.stopped
	tm.mu.RUnlock()
	if stopped {
		return types.ErrStreamClosed
	}

	select {
	case <-tm.connected:
		return nil
	default:
		return errTickerNotConnected
	}
}

func (tm *tickerManager) Subscribe(ctx context.Context, tokens []uint32) error {
	if err := tm.ready(); err != nil {
		return err
	}
	if err := tm.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe to tokens %v: %w", tokens, err)
	}
	if err := tm.ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		return fmt.Errorf("failed to set ticker mode: %w", err)
	}

	logger.Debug(ctx, "Subscribed to tokens", "tokens", tokens)
	return nil
}

func (tm *tickerManager) Unsubscribe(ctx context.Context, tokens []uint32) error {
	if err := tm.ready(); err != nil {
		return err
	}
	if err := tm.ticker.Unsubscribe(tokens); err != nil {
		return fmt.Errorf("failed to unsubscribe from tokens %v: %w", tokens, err)
	}

	logger.Debug(ctx, "Unsubscribed from tokens", "tokens", tokens)
	return nil
}
