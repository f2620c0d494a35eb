package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/session"
	"kite-strangle-bot/internal/types"
)

// ErrTradeInProgress is returned when a trigger arrives while another trade runs.
var ErrTradeInProgress = errors.New("a trade is already in progress")

// Dispatcher turns external triggers into session and engine calls and
// forwards a readable summary to the notifier.
type Dispatcher struct {
	sessions *session.Store
	engine   interfaces.Engine
	notifier interfaces.Notifier

	tradeMu sync.Mutex
}

func New(sessions *session.Store, eng interfaces.Engine, notifier interfaces.Notifier) *Dispatcher {
	return &Dispatcher{sessions: sessions, engine: eng, notifier: notifier}
}

// Trade runs one strangle. A non-empty code logs in first; otherwise the
// current session is used. The error is set only when no trade was attempted.
func (d *Dispatcher) Trade(ctx context.Context, code string) (*types.TradeOutcome, string, error) {
	if !d.tradeMu.TryLock() {
		return nil, "", ErrTradeInProgress
	}
	defer d.tradeMu.Unlock()

	sess, err := d.session(ctx, code)
	if err != nil {
		text := "FAILED: " + err.Error()
		d.notify(ctx, text)
		return nil, text, err
	}

	outcome := d.engine.ExecuteStrangleWithStops(ctx, sess)
	text := RenderOutcome(outcome)

	if outcome.HasAuthFailure() && d.sessions.InvalidateIf(context.WithoutCancel(ctx), sess) {
		text += "\nSession invalidated by the venue; log in again."
	}

	d.notify(ctx, text)
	return outcome, text, nil
}

func (d *Dispatcher) session(ctx context.Context, code string) (*session.Session, error) {
	if code != "" {
		sess, err := d.sessions.Login(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		return sess, nil
	}
	if sess, ok := d.sessions.Current(ctx); ok {
		return sess, nil
	}
	return nil, types.ErrNoSession
}

// Login establishes a session without trading.
func (d *Dispatcher) Login(ctx context.Context, code string) (*session.Session, error) {
	sess, err := d.sessions.Login(ctx, code)
	if err != nil {
		d.notify(ctx, "Login failed: "+err.Error())
		return nil, err
	}
	d.notify(ctx, fmt.Sprintf("Logged in as %s until %s", sess.UserID(), sess.ExpiresAt().In(ist).Format("15:04 MST")))
	return sess, nil
}

func (d *Dispatcher) Current(ctx context.Context) (*session.Session, bool) {
	return d.sessions.Current(ctx)
}

func (d *Dispatcher) Logout(ctx context.Context) {
	d.sessions.Invalidate(ctx)
}

// Positions reads the venue's net positions through the current session.
func (d *Dispatcher) Positions(ctx context.Context) ([]types.Position, error) {
	sess, ok := d.sessions.Current(ctx)
	if !ok {
		return nil, types.ErrNoSession
	}
	pos, err := sess.Broker().Positions(ctx)
	return pos, d.checkAuth(ctx, sess, err)
}

func (d *Dispatcher) Holdings(ctx context.Context) ([]types.Holding, error) {
	sess, ok := d.sessions.Current(ctx)
	if !ok {
		return nil, types.ErrNoSession
	}
	h, err := sess.Broker().Holdings(ctx)
	return h, d.checkAuth(ctx, sess, err)
}

func (d *Dispatcher) checkAuth(ctx context.Context, sess *session.Session, err error) error {
	if types.IsAuthFailure(err) {
		d.sessions.InvalidateIf(context.WithoutCancel(ctx), sess)
	}
	return err
}

func (d *Dispatcher) notify(ctx context.Context, text string) {
	if err := d.notifier.SendText(context.WithoutCancel(ctx), text); err != nil {
		logger.Warn(ctx, "Notification failed", "error", err)
	}
}
