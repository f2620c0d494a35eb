package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/marketdata"
	"kite-strangle-bot/internal/types"
)

type Config struct {
	TTL            time.Duration
	CodeLength     int
	ConnectTimeout time.Duration
}

// Store holds at most one live Session. Logins are serialized; readers see
// either the old or the new session, never a half-built one.
type Store struct {
	auth interfaces.Authenticator
	cfg  Config
	now  func() time.Time

	loginMu sync.Mutex

	mu      sync.RWMutex
	current *Session
}

func NewStore(auth interfaces.Authenticator, cfg Config) *Store {
	return &Store{auth: auth, cfg: cfg, now: time.Now}
}

// Login authenticates with a one-time code, starts the quote stream and
// replaces any existing session.
func (s *Store) Login(ctx context.Context, code string) (*Session, error) {
	if err := validateCode(code, s.cfg.CodeLength); err != nil {
		return nil, err
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	timer := logger.StartOperation(ctx, "session.Login")
	ctx = timer.GetContext()

	sess, err := s.establish(ctx, code)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	s.mu.Lock()
	previous := s.current
	s.current = sess
	s.mu.Unlock()

	if previous != nil {
		logger.Info(ctx, "Replacing previous session", "user_id", previous.UserID())
		if err := previous.close(ctx); err != nil {
			logger.Warn(ctx, "Previous session teardown failed", "error", err)
		}
	}

	timer.End("user_id", sess.UserID(), "expires_at", sess.ExpiresAt().Format(time.RFC3339))
	logger.Info(ctx, "Session established", "user_id", sess.UserID(), "expires_at", sess.ExpiresAt())
	return sess, nil
}

func (s *Store) establish(ctx context.Context, code string) (*Session, error) {
	partial, err := s.auth.Login(ctx)
	if err != nil {
		return nil, asAuthError("login", err)
	}

	brk, err := s.auth.CompleteSecondFactor(ctx, partial, code)
	if err != nil {
		return nil, asAuthError("second_factor", err)
	}

	stream := marketdata.NewStream(brk.Feed())
	startCtx := ctx
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := stream.Start(startCtx); err != nil {
		if cerr := brk.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn(ctx, "Broker close after failed feed start", "error", cerr)
		}
		return nil, fmt.Errorf("session feed: %w", err)
	}

	return &Session{
		broker:    brk,
		quotes:    stream,
		userID:    partial.UserID,
		createdAt: s.now(),
		ttl:       s.cfg.TTL,
	}, nil
}

// Current returns the live session. An expired session is evicted and torn
// down; it is never renewed.
func (s *Store) Current(ctx context.Context) (*Session, bool) {
	now := s.now()

	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()

	if sess == nil {
		return nil, false
	}
	if sess.validAt(now) {
		return sess, true
	}

	s.mu.Lock()
	evicted := s.current == sess
	if evicted {
		s.current = nil
	}
	s.mu.Unlock()

	if evicted {
		logger.Info(ctx, "Session expired", "user_id", sess.UserID(), "expired_at", sess.ExpiresAt())
		if err := sess.close(ctx); err != nil {
			logger.Warn(ctx, "Expired session teardown failed", "error", err)
		}
	}
	return nil, false
}

// Invalidate drops the current session immediately.
func (s *Store) Invalidate(ctx context.Context) {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}
	logger.Info(ctx, "Session invalidated", "user_id", sess.UserID())
	if err := sess.close(ctx); err != nil {
		logger.Warn(ctx, "Session teardown failed", "error", err)
	}
}

// InvalidateIf drops sess only while it is still the current session; a
// session that has already been replaced by a newer login is torn down
// without touching its successor. It reports whether sess was current.
func (s *Store) InvalidateIf(ctx context.Context, sess *Session) bool {
	if sess == nil {
		return false
	}
	s.mu.Lock()
	current := s.current == sess
	if current {
		s.current = nil
	}
	s.mu.Unlock()

	if current {
		logger.Info(ctx, "Session invalidated", "user_id", sess.UserID())
	}
	if err := sess.close(ctx); err != nil {
		logger.Warn(ctx, "Session teardown failed", "error", err)
	}
	return current
}

func validateCode(code string, length int) error {
	if len(code) != length {
		return &types.AuthError{Stage: "code", Reason: fmt.Sprintf("code must be exactly %d digits", length)}
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return &types.AuthError{Stage: "code", Reason: "code must contain only digits"}
		}
	}
	return nil
}

func asAuthError(stage string, err error) error {
	var authErr *types.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &types.AuthError{Stage: stage, Err: err}
}
