package engineobs

import (
	"context"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/trace"
	"kite-strangle-bot/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) ExecuteStrangleWithStops(ctx context.Context, sess interfaces.Session) *types.TradeOutcome {
	ctx, span := trace.StartSpan(ctx, "engine.ExecuteStrangleWithStops")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting strangle execution")

	outcome := oe.engine.ExecuteStrangleWithStops(ctx, sess)

	span.SetAttributes(trace.TradeAttributes(outcome)...)

	if outcome.Err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Strangle execution failed", outcome.Err,
			"trade_id", outcome.TradeID,
			"entry_orders", outcome.EntryOrders(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return outcome
	}

	logger.InfoSkip(ctx, 1, "Strangle execution completed",
		"trade_id", outcome.TradeID,
		"status", outcome.Status(),
		"live_legs", outcome.LiveLegs(),
		"warnings", len(outcome.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return outcome
}
