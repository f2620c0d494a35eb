package zerodha

import (
	"errors"
	"fmt"

	"kite-strangle-bot/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// mapKiteError turns a rejected access token into an AuthError so callers can
// drop the session; every other error is wrapped with the failing call.
func mapKiteError(call string, err error) error {
	if err == nil {
		return nil
	}

	var kerr kiteconnect.Error
	if errors.As(err, &kerr) && kerr.ErrorType == kiteconnect.TokenError {
		return &types.AuthError{Stage: call, Reason: kerr.Message, Err: err}
	}
	var kerrPtr *kiteconnect.Error
	if errors.As(err, &kerrPtr) && kerrPtr.ErrorType == kiteconnect.TokenError {
		return &types.AuthError{Stage: call, Reason: kerrPtr.Message, Err: err}
	}
	return fmt.Errorf("kite %s: %w", call, err)
}
