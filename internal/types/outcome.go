package types

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomePartial OutcomeStatus = "PARTIAL"
	OutcomeFailed  OutcomeStatus = "FAILED"
)

// LegOutcome is the state of one side of the strangle as far as the saga got.
type LegOutcome struct {
	OptionType    OptionType
	Contract      *ContractSymbol
	Entry         *OrderResp
	ExecutedPrice decimal.Decimal
	FillConfirmed bool
	Live          bool
	StopTrigger   decimal.Decimal
	StopLimit     decimal.Decimal
	Stop          *OrderResp
	Warnings      []error
}

// TradeOutcome is built incrementally; it is returned even when a stage fails.
type TradeOutcome struct {
	TradeID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Quote      *Quote
	Expiry     time.Time
	Legs       []*LegOutcome
	Warnings   []error
	Err        error
}

func NewTradeOutcome(id string, started time.Time) *TradeOutcome {
	return &TradeOutcome{
		TradeID:   id,
		StartedAt: started,
		Legs: []*LegOutcome{
			{OptionType: Call},
			{OptionType: Put},
		},
	}
}

func (o *TradeOutcome) Leg(t OptionType) *LegOutcome {
	for _, l := range o.Legs {
		if l.OptionType == t {
			return l
		}
	}
	return nil
}

func (o *TradeOutcome) Warn(err error) {
	if err != nil {
		o.Warnings = append(o.Warnings, err)
	}
}

func (o *TradeOutcome) EntryOrders() int {
	n := 0
	for _, l := range o.Legs {
		if l.Entry != nil {
			n++
		}
	}
	return n
}

func (o *TradeOutcome) LiveLegs() int {
	n := 0
	for _, l := range o.Legs {
		if l.Live {
			n++
		}
	}
	return n
}

func (o *TradeOutcome) Status() OutcomeStatus {
	switch {
	case o.Err != nil:
		return OutcomeFailed
	case len(o.Warnings) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// HasAuthFailure reports whether any stage failed because the venue rejected the session.
func (o *TradeOutcome) HasAuthFailure() bool {
	if IsAuthFailure(o.Err) {
		return true
	}
	for _, w := range o.Warnings {
		if IsAuthFailure(w) {
			return true
		}
	}
	return false
}

// OrderErrors returns the OrderError warnings of an outcome.
func OrderErrors(o *TradeOutcome) []*OrderError {
	var out []*OrderError
	for _, w := range o.Warnings {
		var oe *OrderError
		if errors.As(w, &oe) {
			out = append(out, oe)
		}
	}
	return out
}
