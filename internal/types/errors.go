package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoSession          = errors.New("no active session")
	ErrStreamClosed       = errors.New("quote stream closed")
	ErrInvalidStopPrice   = errors.New("stop trigger price is not positive")
	ErrUnbalancedStrangle = errors.New("only one strangle leg is live")
	ErrNoLiveLegs         = errors.New("no strangle leg is live")
)

// AuthError is terminal for a login attempt; no session is produced.
type AuthError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth failed at %s", e.Stage)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Instrument string
	After      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no quote for %s within %s", e.Instrument, e.After)
}

type ResolutionError struct {
	Underlying string
	Expiry     time.Time
	OptionType OptionType
	Strike     decimal.Decimal
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("no %s %s contract at strike %s expiring %s",
		e.Underlying, e.OptionType, e.Strike.String(), e.Expiry.Format("2006-01-02"))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Order stages recorded on OrderError.
const (
	StageEntry = "entry"
	StageFill  = "fill"
	StageStop  = "stop"
)

// OrderError is recorded per leg and never aborts the sibling leg.
type OrderError struct {
	Leg     OptionType
	Stage   string
	Symbol  string
	OrderID string
	Err     error
}

func (e *OrderError) Error() string {
	msg := fmt.Sprintf("%s %s order for %s failed", e.Leg, e.Stage, e.Symbol)
	if e.OrderID != "" {
		msg += " (order " + e.OrderID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OrderError) Unwrap() error { return e.Err }

// FillUnknownWarning marks a leg whose stop distance is computed from a fallback price.
type FillUnknownWarning struct {
	Leg           OptionType
	OrderID       string
	FallbackPrice decimal.Decimal
	Err           error
}

func (e *FillUnknownWarning) Error() string {
	msg := fmt.Sprintf("%s fill for order %s unconfirmed, using fallback price %s",
		e.Leg, e.OrderID, e.FallbackPrice.String())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FillUnknownWarning) Unwrap() error { return e.Err }

func IsAuthFailure(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
