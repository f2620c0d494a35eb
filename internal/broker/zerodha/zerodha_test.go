package zerodha

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

type fakeKite struct {
	mu            sync.Mutex
	placed        []kiteconnect.OrderParams
	placeErr      error
	history       map[string][]kiteconnect.Order
	historyErr    error
	instruments   kiteconnect.Instruments
	instrumentHit int
	ltp           string
	positions     kiteconnect.Positions
	holdings      kiteconnect.Holdings
	invalidated   int
}

func (f *fakeKite) PlaceOrder(variety string, p kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return kiteconnect.OrderResponse{}, f.placeErr
	}
	f.placed = append(f.placed, p)
	return kiteconnect.OrderResponse{OrderID: "250101000000001"}, nil
}

func (f *fakeKite) GetOrderHistory(orderID string) ([]kiteconnect.Order, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[orderID], nil
}

func (f *fakeKite) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	f.mu.Lock()
	f.instrumentHit++
	f.mu.Unlock()
	return f.instruments, nil
}

func (f *fakeKite) GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error) {
	var q kiteconnect.QuoteLTP
	err := json.Unmarshal([]byte(f.ltp), &q)
	return q, err
}

func (f *fakeKite) GetPositions() (kiteconnect.Positions, error) { return f.positions, nil }

func (f *fakeKite) GetHoldings() (kiteconnect.Holdings, error) { return f.holdings, nil }

func (f *fakeKite) InvalidateAccessToken() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return true, nil
}

type stubFeed struct {
	stops int
}

func (s *stubFeed) Start(context.Context) error                 { return nil }
func (s *stubFeed) Stop(context.Context)                        { s.stops++ }
func (s *stubFeed) Subscribe(context.Context, []uint32) error   { return nil }
func (s *stubFeed) Unsubscribe(context.Context, []uint32) error { return nil }
func (s *stubFeed) OnTick(func(types.Tick))                     {}

func TestPlaceOrder_StopLimitCarriesPrices(t *testing.T) {
	kc := &fakeKite{}
	z := NewZerodha(Params{Mode: ModeLive}, kc, &stubFeed{})

	resp, err := z.PlaceOrder(context.Background(), types.OrderReq{
		Symbol:       "NIFTY25O2124850CE",
		Side:         types.Buy,
		OrderType:    types.StopLimit,
		Product:      "NRML",
		Quantity:     75,
		TriggerPrice: decimal.RequireFromString("150"),
		LimitPrice:   decimal.RequireFromString("160"),
		Tag:          "0123456789abcdef-0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "250101000000001", resp.OrderID)

	require.Len(t, kc.placed, 1)
	p := kc.placed[0]
	assert.Equal(t, "NFO", p.Exchange)
	assert.Equal(t, kiteconnect.OrderTypeSL, p.OrderType)
	assert.Equal(t, kiteconnect.TransactionTypeBuy, p.TransactionType)
	assert.Equal(t, 150.0, p.TriggerPrice)
	assert.Equal(t, 160.0, p.Price)
	assert.Len(t, p.Tag, maxTagLength)
}

func TestPlaceOrder_MarketSellHasNoPrice(t *testing.T) {
	kc := &fakeKite{}
	z := NewZerodha(Params{Mode: ModeLive}, kc, &stubFeed{})

	_, err := z.PlaceOrder(context.Background(), types.OrderReq{
		Symbol: "NIFTY25O2124450PE", Side: types.Sell, OrderType: types.Market, Product: "NRML", Quantity: 75,
	})
	require.NoError(t, err)
	require.Len(t, kc.placed, 1)
	assert.Equal(t, kiteconnect.OrderTypeMarket, kc.placed[0].OrderType)
	assert.Equal(t, kiteconnect.TransactionTypeSell, kc.placed[0].TransactionType)
	assert.Zero(t, kc.placed[0].Price)
	assert.Zero(t, kc.placed[0].TriggerPrice)
}

func TestPlaceOrder_TokenExceptionIsAuthError(t *testing.T) {
	kc := &fakeKite{placeErr: kiteconnect.NewError(kiteconnect.TokenError, "Incorrect `api_key` or `access_token`.", nil)}
	z := NewZerodha(Params{Mode: ModeLive}, kc, &stubFeed{})

	_, err := z.PlaceOrder(context.Background(), types.OrderReq{Symbol: "X", OrderType: types.Market})
	require.Error(t, err)

	var authErr *types.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "place_order", authErr.Stage)
}

func TestPlaceOrder_OtherErrorsAreWrapped(t *testing.T) {
	kc := &fakeKite{placeErr: kiteconnect.NewError(kiteconnect.InputError, "Insufficient margin", nil)}
	z := NewZerodha(Params{Mode: ModeLive}, kc, &stubFeed{})

	_, err := z.PlaceOrder(context.Background(), types.OrderReq{Symbol: "X", OrderType: types.Market})
	require.Error(t, err)
	assert.False(t, types.IsAuthFailure(err))
	assert.Contains(t, err.Error(), "Insufficient margin")
}

func TestOrderStatus_UsesLastHistoryEntry(t *testing.T) {
	kc := &fakeKite{history: map[string][]kiteconnect.Order{
		"1": {
			{Status: "OPEN PENDING"},
			{Status: "OPEN"},
			{Status: "COMPLETE", AveragePrice: 120.35, FilledQuantity: 75},
		},
	}}
	z := NewZerodha(Params{Mode: ModeLive}, kc, &stubFeed{})

	st, err := z.OrderStatus(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, st.Filled())
	assert.Equal(t, 75, st.FilledQty)
	assert.True(t, decimal.RequireFromString("120.35").Equal(st.ExecutedPrice))

	_, err = z.OrderStatus(context.Background(), "missing")
	assert.Error(t, err)
}

func TestDryRun_FillsMarketAtLTP(t *testing.T) {
	kc := &fakeKite{ltp: `{"NFO:NIFTY25O2124850CE":{"instrument_token":1,"last_price":118.5}}`}
	z := NewZerodha(Params{Mode: ModeDryRun}, kc, &stubFeed{})
	ctx := context.Background()

	resp, err := z.PlaceOrder(ctx, types.OrderReq{
		Symbol: "NIFTY25O2124850CE", Side: types.Sell, OrderType: types.Market, Quantity: 75,
	})
	require.NoError(t, err)
	assert.Contains(t, resp.OrderID, simulatedPrefix)
	assert.Empty(t, kc.placed)

	st, err := z.OrderStatus(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.True(t, st.Filled())
	assert.True(t, decimal.RequireFromString("118.5").Equal(st.ExecutedPrice))

	stop, err := z.PlaceOrder(ctx, types.OrderReq{
		Symbol: "NIFTY25O2124850CE", Side: types.Buy, OrderType: types.StopLimit, Quantity: 75,
		TriggerPrice: decimal.NewFromInt(148), LimitPrice: decimal.NewFromInt(158),
	})
	require.NoError(t, err)
	st, err = z.OrderStatus(ctx, stop.OrderID)
	require.NoError(t, err)
	assert.False(t, st.Filled())
	assert.False(t, st.Dead())
}

func TestPositionsAndHoldings(t *testing.T) {
	kc := &fakeKite{
		positions: kiteconnect.Positions{Net: []kiteconnect.Position{
			{Tradingsymbol: "NIFTY25O2124850CE", Exchange: "NFO", Product: "NRML", Quantity: -75, AveragePrice: 120, LastPrice: 100, PnL: 1500},
		}},
		holdings: kiteconnect.Holdings{
			{Tradingsymbol: "INFY", Exchange: "NSE", Quantity: 10, AveragePrice: 1500, LastPrice: 1520, PnL: 200},
		},
	}
	z := NewZerodha(Params{Mode: ModeLive}, kc, &stubFeed{})

	pos, err := z.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, -75, pos[0].Quantity)
	assert.Equal(t, 1500.0, pos[0].PnL)

	h, err := z.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "INFY", h[0].Symbol)
}

func TestClose_IsIdempotent(t *testing.T) {
	kc := &fakeKite{}
	feed := &stubFeed{}
	z := NewZerodha(Params{Mode: ModeLive}, kc, feed)

	require.NoError(t, z.Close(context.Background()))
	require.NoError(t, z.Close(context.Background()))
	assert.Equal(t, 1, feed.stops)
	assert.Equal(t, 1, kc.invalidated)
}

func TestConvertTick_FallsBackToReceiptTime(t *testing.T) {
	received := time.Date(2025, 10, 17, 9, 20, 0, 0, time.UTC)

	tick := convertTick(models.Tick{InstrumentToken: 256265, LastPrice: 24630.15}, received)
	assert.Equal(t, uint32(256265), tick.Token)
	assert.True(t, decimal.RequireFromString("24630.15").Equal(tick.Price))
	assert.Equal(t, received, tick.At)

	stamped := received.Add(-time.Second)
	tick = convertTick(models.Tick{InstrumentToken: 1, LastPrice: 1, Timestamp: models.Time{Time: stamped}}, received)
	assert.Equal(t, stamped, tick.At)
}
