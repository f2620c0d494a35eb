package engine

import (
	"fmt"
	"time"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
)

var ist = time.FixedZone("IST", 19800) // IST is UTC+5:30 (19800 seconds)

// ceilToTick rounds price up to a multiple of tick, so a buy stop never
// lands below the level it was computed for.
func ceilToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Ceil().Mul(tick)
}

func todayIST(now time.Time) time.Time {
	znow := now.In(ist)
	return time.Date(znow.Year(), znow.Month(), znow.Day(), 0, 0, 0, 0, ist)
}

// orderTag links venue orders back to a trade. Kite caps tags at 20 chars.
func orderTag(tradeID string, leg types.OptionType, suffix string) string {
	short := tradeID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s%s", short, leg, suffix)
}
