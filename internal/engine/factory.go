package engine

import (
	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/store"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
)

func New(cfg *store.Config, quotes interfaces.QuoteGateway, res interfaces.SymbolResolver, fills interfaces.FillPriceProvider) interfaces.Engine {
	return newEngine(ConfigFromStore(cfg), quotes, res, fills)
}

func ConfigFromStore(cfg *store.Config) Config {
	return Config{
		Spot:           types.Instrument{Symbol: cfg.Quote.Instrument, Token: cfg.Quote.Token},
		QuoteTimeout:   cfg.Quote.Timeout,
		Exchange:       cfg.Strangle.Exchange,
		Product:        cfg.Strangle.Product,
		Quantity:       cfg.Strangle.Quantity,
		FallbackPrice:  decimal.NewFromFloat(cfg.Fill.FallbackPrice),
		StopMultiplier: decimal.NewFromFloat(cfg.Stop.Multiplier),
		SlippageBuffer: decimal.NewFromFloat(cfg.Stop.SlippageBuffer),
		TickSize:       decimal.NewFromFloat(cfg.Stop.TickSize),
	}
}
