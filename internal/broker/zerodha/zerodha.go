package zerodha

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"kite-strangle-bot/internal/interfaces"
	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

const (
	ModeLive   = "LIVE"
	ModeDryRun = "DRY_RUN"

	simulatedPrefix = "SIM-"
	maxTagLength    = 20
)

// kiteAPI is the subset of *kiteconnect.Client the broker uses.
type kiteAPI interface {
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	GetOrderHistory(orderID string) ([]kiteconnect.Order, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
	GetPositions() (kiteconnect.Positions, error)
	GetHoldings() (kiteconnect.Holdings, error)
	InvalidateAccessToken() (bool, error)
}

type Params struct {
	Mode     string
	UserID   string
	Exchange string
}

type simulatedOrder struct {
	req   types.OrderReq
	price decimal.Decimal
}

// Zerodha is an authenticated Kite Connect handle.
type Zerodha struct {
	p           Params
	kc          kiteAPI
	feed        interfaces.Feed
	instruments *instrumentDirectory

	simMu     sync.Mutex
	simOrders map[string]simulatedOrder

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params, kc kiteAPI, feed interfaces.Feed) *Zerodha {
	if p.Exchange == "" {
		p.Exchange = "NFO"
	}
	return &Zerodha{
		p:           p,
		kc:          kc,
		feed:        feed,
		instruments: newInstrumentDirectory(p.Exchange, kc.GetInstrumentsByExchange),
		simOrders:   make(map[string]simulatedOrder),
	}
}

func (z *Zerodha) dryRun() bool {
	return z.p.Mode == ModeDryRun
}

func (z *Zerodha) SearchInstrument(ctx context.Context, q types.ContractQuery) ([]types.ContractSymbol, error) {
	out, err := z.instruments.search(ctx, q)
	if err != nil {
		return nil, mapKiteError("instruments", err)
	}
	return out, nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if req.Exchange == "" {
		req.Exchange = z.p.Exchange
	}
	if len(req.Tag) > maxTagLength {
		req.Tag = req.Tag[:maxTagLength]
	}

	if z.dryRun() {
		return z.simulateOrder(ctx, req)
	}

	params := kiteconnect.OrderParams{
		Exchange:        req.Exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         req.Product,
		OrderType:       orderType(req.OrderType),
		TransactionType: transactionType(req.Side),
		Quantity:        req.Quantity,
		Tag:             req.Tag,
	}
	if req.OrderType == types.StopLimit {
		params.Price = req.LimitPrice.InexactFloat64()
		params.TriggerPrice = req.TriggerPrice.InexactFloat64()
	}

	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return types.OrderResp{}, mapKiteError("place_order", err)
	}

	logger.Trade(ctx, req.Symbol, string(req.Side), req.Quantity, req.LimitPrice.String(), resp.OrderID,
		"order_type", req.OrderType, "trigger", req.TriggerPrice.String(), "tag", req.Tag)
	return types.OrderResp{OrderID: resp.OrderID, Status: types.OrderOpen, Message: "ok"}, nil
}

// simulateOrder fills market orders at the venue LTP and leaves stop orders pending.
func (z *Zerodha) simulateOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	id := fmt.Sprintf("%s%d", simulatedPrefix, time.Now().UnixNano())

	price := req.LimitPrice
	if req.OrderType == types.Market {
		key := req.Exchange + ":" + req.Symbol
		ltp, err := z.kc.GetLTP(key)
		if err != nil {
			return types.OrderResp{}, mapKiteError("ltp", err)
		}
		q, ok := ltp[key]
		if !ok {
			return types.OrderResp{}, fmt.Errorf("no LTP for %s", key)
		}
		price = decimal.NewFromFloat(q.LastPrice)
	}

	z.simMu.Lock()
	z.simOrders[id] = simulatedOrder{req: req, price: price}
	z.simMu.Unlock()

	logger.Info(ctx, "Simulated order placed",
		"symbol", req.Symbol, "side", req.Side, "qty", req.Quantity, "order_id", id, "price", price.String())
	return types.OrderResp{OrderID: id, Status: "SIMULATED", Message: "dry-run"}, nil
}

func (z *Zerodha) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	if strings.HasPrefix(orderID, simulatedPrefix) {
		return z.simulatedStatus(orderID)
	}

	history, err := z.kc.GetOrderHistory(orderID)
	if err != nil {
		return types.OrderStatus{}, mapKiteError("order_history", err)
	}
	if len(history) == 0 {
		return types.OrderStatus{}, fmt.Errorf("order %s has no history", orderID)
	}

	last := history[len(history)-1]
	return types.OrderStatus{
		OrderID:       orderID,
		Status:        last.Status,
		Message:       last.StatusMessage,
		FilledQty:     int(last.FilledQuantity),
		ExecutedPrice: decimal.NewFromFloat(last.AveragePrice),
	}, nil
}

func (z *Zerodha) simulatedStatus(orderID string) (types.OrderStatus, error) {
	z.simMu.Lock()
	o, ok := z.simOrders[orderID]
	z.simMu.Unlock()
	if !ok {
		return types.OrderStatus{}, fmt.Errorf("unknown simulated order %s", orderID)
	}

	if o.req.OrderType != types.Market {
		return types.OrderStatus{OrderID: orderID, Status: "TRIGGER PENDING", Message: "dry-run"}, nil
	}
	return types.OrderStatus{
		OrderID:       orderID,
		Status:        types.OrderComplete,
		Message:       "dry-run",
		FilledQty:     o.req.Quantity,
		ExecutedPrice: o.price,
	}, nil
}

func (z *Zerodha) Positions(ctx context.Context) ([]types.Position, error) {
	pos, err := z.kc.GetPositions()
	if err != nil {
		return nil, mapKiteError("positions", err)
	}

	out := make([]types.Position, 0, len(pos.Net))
	for _, p := range pos.Net {
		out = append(out, types.Position{
			Symbol:       p.Tradingsymbol,
			Exchange:     p.Exchange,
			Product:      p.Product,
			Quantity:     int(p.Quantity),
			AveragePrice: p.AveragePrice,
			LastPrice:    p.LastPrice,
			PnL:          p.PnL,
		})
	}
	return out, nil
}

func (z *Zerodha) Holdings(ctx context.Context) ([]types.Holding, error) {
	holdings, err := z.kc.GetHoldings()
	if err != nil {
		return nil, mapKiteError("holdings", err)
	}

	out := make([]types.Holding, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, types.Holding{
			Symbol:       h.Tradingsymbol,
			Exchange:     h.Exchange,
			Quantity:     int(h.Quantity),
			AveragePrice: h.AveragePrice,
			LastPrice:    h.LastPrice,
			PnL:          h.PnL,
		})
	}
	return out, nil
}

func (z *Zerodha) Feed() interfaces.Feed {
	return z.feed
}

// Close stops the feed and invalidates the access token. Safe to call more than once.
func (z *Zerodha) Close(ctx context.Context) error {
	z.closeOnce.Do(func() {
		if z.feed != nil {
			z.feed.Stop(ctx)
		}
		if _, err := z.kc.InvalidateAccessToken(); err != nil {
			z.closeErr = mapKiteError("logout", err)
			logger.Warn(ctx, "Failed to invalidate access token", "user_id", z.p.UserID, "error", err)
		}
	})
	return z.closeErr
}

func orderType(t types.OrderType) string {
	if t == types.StopLimit {
		return kiteconnect.OrderTypeSL
	}
	return kiteconnect.OrderTypeMarket
}

func transactionType(s types.Side) string {
	if s == types.Buy {
		return kiteconnect.TransactionTypeBuy
	}
	return kiteconnect.TransactionTypeSell
}
