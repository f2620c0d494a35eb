package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

type Side string

const (
	Sell Side = "SELL"
	Buy  Side = "BUY"
)

type OrderType string

const (
	Market    OrderType = "MARKET"
	StopLimit OrderType = "SL"
)

// Instrument identifies something the push feed can stream.
type Instrument struct {
	Symbol string `json:"symbol"`
	Token  uint32 `json:"token"`
}

type Tick struct {
	Token uint32
	Price decimal.Decimal
	At    time.Time
}

type Quote struct {
	Instrument string          `json:"instrument"`
	Token      uint32          `json:"token"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PartialHandle is the venue state between password login and the second factor.
type PartialHandle struct {
	UserID    string
	RequestID string
	TwoFAType string
}

type ContractQuery struct {
	Underlying string
	Expiry     time.Time
	OptionType OptionType
	Strike     decimal.Decimal
}

type ContractSymbol struct {
	Underlying    string          `json:"underlying"`
	Expiry        time.Time       `json:"expiry"`
	Strike        decimal.Decimal `json:"strike"`
	OptionType    OptionType      `json:"option_type"`
	Tradingsymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Token         uint32          `json:"token"`
	LotSize       int             `json:"lot_size"`
	TickSize      decimal.Decimal `json:"tick_size"`
}

type StrangleLegs struct {
	Call ContractSymbol
	Put  ContractSymbol
}

type OrderReq struct {
	Symbol       string
	Exchange     string
	Side         Side
	OrderType    OrderType
	Product      string
	Quantity     int
	LimitPrice   decimal.Decimal
	TriggerPrice decimal.Decimal
	Tag          string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Venue order states reported by OrderStatus.
const (
	OrderComplete  = "COMPLETE"
	OrderRejected  = "REJECTED"
	OrderCancelled = "CANCELLED"
	OrderOpen      = "OPEN"
)

type OrderStatus struct {
	OrderID       string
	Status        string
	Message       string
	FilledQty     int
	ExecutedPrice decimal.Decimal
}

func (s OrderStatus) Filled() bool {
	return s.Status == OrderComplete && s.ExecutedPrice.IsPositive()
}

func (s OrderStatus) Dead() bool {
	return s.Status == OrderRejected || s.Status == OrderCancelled
}

type Position struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Product      string  `json:"product"`
	Quantity     int     `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	LastPrice    float64 `json:"last_price"`
	PnL          float64 `json:"pnl"`
}

type Holding struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Quantity     int     `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	LastPrice    float64 `json:"last_price"`
	PnL          float64 `json:"pnl"`
}
