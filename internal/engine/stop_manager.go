package engine

import (
	"fmt"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
)

// stopManager prices the protective stop-limit for a short option leg.
type stopManager struct {
	multiplier decimal.Decimal // trigger = executed * multiplier
	buffer     decimal.Decimal // limit = trigger + buffer
	tick       decimal.Decimal
}

func newStopManager(multiplier, buffer, tick decimal.Decimal) *stopManager {
	return &stopManager{
		multiplier: multiplier,
		buffer:     buffer,
		tick:       tick,
	}
}

// stopPrices computes the trigger and limit for a leg sold at executed.
// Both are rounded to the tick size. A non-positive trigger is rejected so
// no stop is ever sent with a nonsensical price.
func (sm *stopManager) stopPrices(executed decimal.Decimal) (trigger, limit decimal.Decimal, err error) {
	trigger = ceilToTick(executed.Mul(sm.multiplier), sm.tick)
	if !trigger.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s from executed price %s",
			types.ErrInvalidStopPrice, trigger.String(), executed.String())
	}
	limit = ceilToTick(trigger.Add(sm.buffer), sm.tick)
	return trigger, limit, nil
}
