package engine

import (
	"context"
	"fmt"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Config carries the trade parameters of one strangle.
type Config struct {
	Spot          types.Instrument
	QuoteTimeout  time.Duration
	Exchange      string
	Product       string
	Quantity      int
	FallbackPrice decimal.Decimal

	StopMultiplier decimal.Decimal
	SlippageBuffer decimal.Decimal
	TickSize       decimal.Decimal
}

type Engine struct {
	cfg      Config
	quotes   interfaces.QuoteGateway
	resolver interfaces.SymbolResolver
	fills    interfaces.FillPriceProvider

	orders *orderExecutor
	stops  *stopManager
	risk   *riskManager

	now   func() time.Time
	newID func() string
}

var _ interfaces.Engine = (*Engine)(nil)

func newEngine(cfg Config, quotes interfaces.QuoteGateway, res interfaces.SymbolResolver, fills interfaces.FillPriceProvider) *Engine {
	return &Engine{
		cfg:      cfg,
		quotes:   quotes,
		resolver: res,
		fills:    fills,
		orders:   newOrderExecutor(cfg.Exchange, cfg.Product, cfg.Quantity),
		stops:    newStopManager(cfg.StopMultiplier, cfg.SlippageBuffer, cfg.TickSize),
		risk:     newRiskManager(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ExecuteStrangleWithStops sells an OTM call and put around the current
// spot and protects every filled leg with a stop-limit buy. The outcome is
// always returned; Err is set only when the trade never got going or no
// leg ended up live.
func (e *Engine) ExecuteStrangleWithStops(ctx context.Context, sess interfaces.Session) *types.TradeOutcome {
	o := types.NewTradeOutcome(e.newID(), e.now())
	defer func() { o.FinishedAt = e.now() }()

	if sess == nil {
		o.Err = types.ErrNoSession
		return o
	}

	logger.Debug(ctx, "Starting strangle", "trade_id", o.TradeID, "instrument", e.cfg.Spot.Symbol)

	quote, err := e.quotes.AcquireQuote(ctx, sess, e.cfg.Spot, e.cfg.QuoteTimeout)
	if err != nil {
		logger.ErrorWithErr(ctx, "Spot quote unavailable", err, "trade_id", o.TradeID, "instrument", e.cfg.Spot.Symbol)
		o.Err = fmt.Errorf("spot quote: %w", err)
		return o
	}
	o.Quote = &quote

	o.Expiry = e.resolver.NextExpiry(todayIST(e.now()))

	legs, err := e.resolver.ResolveStrangleLegs(ctx, sess, quote.Price, o.Expiry)
	if err != nil {
		logger.ErrorWithErr(ctx, "Strangle legs unresolved", err, "trade_id", o.TradeID, "spot", quote.Price.String())
		o.Err = fmt.Errorf("resolve legs: %w", err)
		return o
	}
	o.Leg(types.Call).Contract = &legs.Call
	o.Leg(types.Put).Contract = &legs.Put

	legErrs := make([][]error, len(o.Legs))

	// Legs run independently; a failure on one never cancels the other.
	var g errgroup.Group
	for i, leg := range o.Legs {
		g.Go(func() error {
			legErrs[i] = e.runLeg(ctx, sess, o.TradeID, leg)
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for i, leg := range o.Legs {
		for _, w := range leg.Warnings {
			o.Warn(w)
		}
		failures = append(failures, legErrs[i]...)
	}
	e.risk.assess(ctx, o, failures)

	logger.Info(ctx, "Strangle finished",
		"trade_id", o.TradeID,
		"status", o.Status(),
		"live_legs", o.LiveLegs(),
		"warnings", len(o.Warnings),
	)
	return o
}

// runLeg drives one leg through entry, fill and stop. Every problem is
// recorded on the leg; the returned errors are the ones that left it dead.
func (e *Engine) runLeg(ctx context.Context, sess interfaces.Session, tradeID string, leg *types.LegOutcome) []error {
	c := *leg.Contract
	brk := sess.Broker()

	entry, err := e.orders.placeEntry(ctx, brk, tradeID, c)
	if err != nil {
		oerr := &types.OrderError{Leg: leg.OptionType, Stage: types.StageEntry, Symbol: c.Tradingsymbol, Err: err}
		leg.Warnings = append(leg.Warnings, oerr)
		return []error{oerr}
	}
	leg.Entry = &entry

	// The entry is on the venue now; the stop must follow even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	status, err := e.fills.ExecutedPrice(ctx, brk, entry.OrderID)
	switch {
	case err == nil && status.Dead():
		oerr := &types.OrderError{
			Leg: leg.OptionType, Stage: types.StageFill, Symbol: c.Tradingsymbol, OrderID: entry.OrderID,
			Err: fmt.Errorf("order %s: %s", status.Status, status.Message),
		}
		leg.Warnings = append(leg.Warnings, oerr)
		return []error{oerr}
	case err == nil && status.Filled():
		leg.ExecutedPrice = status.ExecutedPrice
		leg.FillConfirmed = true
	default:
		price, source := e.fallbackPrice(ctx, sess, c)
		leg.ExecutedPrice = price
		leg.Warnings = append(leg.Warnings, &types.FillUnknownWarning{
			Leg: leg.OptionType, OrderID: entry.OrderID, FallbackPrice: price, Err: err,
		})
		logger.Warn(ctx, "Fill unconfirmed, using fallback price",
			"symbol", c.Tradingsymbol,
			"order_id", entry.OrderID,
			"fallback_price", price.String(),
			"source", source,
		)
	}
	leg.Live = true

	trigger, limit, err := e.stops.stopPrices(leg.ExecutedPrice)
	if err != nil {
		leg.Warnings = append(leg.Warnings, &types.OrderError{
			Leg: leg.OptionType, Stage: types.StageStop, Symbol: c.Tradingsymbol, Err: err,
		})
		logger.Risk(ctx, c.Tradingsymbol, "STOP_NOT_PLACED", "trade_id", tradeID, "reason", err.Error())
		return nil
	}
	leg.StopTrigger, leg.StopLimit = trigger, limit

	stop, err := e.orders.placeStop(ctx, brk, tradeID, c, trigger, limit)
	if err != nil {
		leg.Warnings = append(leg.Warnings, &types.OrderError{
			Leg: leg.OptionType, Stage: types.StageStop, Symbol: c.Tradingsymbol, Err: err,
		})
		logger.Risk(ctx, c.Tradingsymbol, "STOP_NOT_PLACED", "trade_id", tradeID, "reason", err.Error())
		return nil
	}
	leg.Stop = &stop

	logger.Info(ctx, "Leg protected",
		"symbol", c.Tradingsymbol,
		"executed", leg.ExecutedPrice.String(),
		"trigger", trigger.String(),
		"limit", limit.String(),
		"stop_order_id", stop.OrderID,
	)
	return nil
}

// fallbackPrice prices an unconfirmed fill from the contract's last traded
// price when the feed delivers one, and from the configured constant otherwise.
func (e *Engine) fallbackPrice(ctx context.Context, sess interfaces.Session, c types.ContractSymbol) (decimal.Decimal, string) {
	if c.Token == 0 {
		return e.cfg.FallbackPrice, "config"
	}
	in := types.Instrument{Symbol: c.Exchange + ":" + c.Tradingsymbol, Token: c.Token}
	q, err := e.quotes.AcquireQuote(ctx, sess, in, e.cfg.QuoteTimeout)
	if err != nil {
		logger.Warn(ctx, "Contract quote unavailable", "symbol", in.Symbol, "error", err)
		return e.cfg.FallbackPrice, "config"
	}
	if !q.Price.IsPositive() {
		return e.cfg.FallbackPrice, "config"
	}
	return q.Price, "ltp"
}
