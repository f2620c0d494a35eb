package resolver

import (
	"context"
	"fmt"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// IST is the exchange calendar every expiry is expressed in.
var IST = time.FixedZone("IST", 5*3600+1800)

type Config struct {
	Underlying    string
	StrikeStep    decimal.Decimal
	OTMOffset     decimal.Decimal
	ExpiryWeekday time.Weekday
}

// Resolver derives strangle contracts from a spot price.
type Resolver struct {
	cfg Config
}

var _ interfaces.SymbolResolver = (*Resolver)(nil)

func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

func (r *Resolver) NextExpiry(today time.Time) time.Time {
	return NextExpiry(today, r.cfg.ExpiryWeekday)
}

// NextExpiry returns the soonest date on or after today that falls on
// weekday, at midnight in today's location.
func NextExpiry(today time.Time, weekday time.Weekday) time.Time {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	ahead := (int(weekday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, ahead)
}

// StrangleStrikes rounds spot half-up to the nearest step and returns the
// strikes offset above (call) and below (put) it.
func StrangleStrikes(spot, step, offset decimal.Decimal) (call, put decimal.Decimal) {
	atm := spot.Div(step).Add(decimal.NewFromFloat(0.5)).Floor().Mul(step)
	return atm.Add(offset), atm.Sub(offset)
}

// ResolveStrangleLegs looks both contracts up concurrently. Either lookup
// returning nothing fails the resolution.
func (r *Resolver) ResolveStrangleLegs(ctx context.Context, sess interfaces.Session, spot decimal.Decimal, expiry time.Time) (types.StrangleLegs, error) {
	callStrike, putStrike := StrangleStrikes(spot, r.cfg.StrikeStep, r.cfg.OTMOffset)
	brk := sess.Broker()

	var legs types.StrangleLegs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := r.lookup(gctx, brk, expiry, types.Call, callStrike)
		legs.Call = c
		return err
	})
	g.Go(func() error {
		p, err := r.lookup(gctx, brk, expiry, types.Put, putStrike)
		legs.Put = p
		return err
	})
	if err := g.Wait(); err != nil {
		return types.StrangleLegs{}, err
	}

	logger.Info(ctx, "Strangle legs resolved",
		"spot", spot.String(),
		"call", legs.Call.Tradingsymbol,
		"put", legs.Put.Tradingsymbol,
		"expiry", expiry.Format(time.DateOnly))
	return legs, nil
}

func (r *Resolver) lookup(ctx context.Context, brk interfaces.Broker, expiry time.Time, t types.OptionType, strike decimal.Decimal) (types.ContractSymbol, error) {
	q := types.ContractQuery{Underlying: r.cfg.Underlying, Expiry: expiry, OptionType: t, Strike: strike}

	found, err := brk.SearchInstrument(ctx, q)
	if err != nil {
		return types.ContractSymbol{}, &types.ResolutionError{
			Underlying: q.Underlying, Expiry: expiry, OptionType: t, Strike: strike,
			Err: fmt.Errorf("search: %w", err),
		}
	}
	if len(found) == 0 {
		return types.ContractSymbol{}, &types.ResolutionError{
			Underlying: q.Underlying, Expiry: expiry, OptionType: t, Strike: strike,
		}
	}
	if len(found) > 1 {
		logger.Warn(ctx, "Multiple contracts matched; using first",
			"underlying", q.Underlying, "option_type", t, "strike", strike.String(), "matches", len(found))
	}
	return found[0], nil
}
