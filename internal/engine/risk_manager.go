package engine

import (
	"context"
	"fmt"

	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"go.uber.org/multierr"
)

// riskManager judges the exposure a finished saga left behind.
type riskManager struct{}

func newRiskManager() *riskManager {
	return &riskManager{}
}

// assess records an unbalanced strangle as a warning and a fully failed one
// as the outcome error. legErrs holds every leg-level failure in leg order.
func (rm *riskManager) assess(ctx context.Context, o *types.TradeOutcome, legErrs []error) {
	switch o.LiveLegs() {
	case len(o.Legs):
		return
	case 0:
		if combined := multierr.Combine(legErrs...); combined != nil {
			o.Err = fmt.Errorf("%w: %w", types.ErrNoLiveLegs, combined)
		} else {
			o.Err = types.ErrNoLiveLegs
		}
	default:
		o.Warn(types.ErrUnbalancedStrangle)
		for _, l := range o.Legs {
			if !l.Live {
				continue
			}
			symbol := ""
			if l.Contract != nil {
				symbol = l.Contract.Tradingsymbol
			}
			logger.Risk(ctx, symbol, "UNBALANCED_STRANGLE",
				"trade_id", o.TradeID,
				"live_leg", l.OptionType,
				"stop_placed", l.Stop != nil,
			)
		}
	}
}
