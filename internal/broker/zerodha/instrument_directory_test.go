package zerodha

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

func nfoDump() kiteconnect.Instruments {
	expiry := models.Time{Time: time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)}
	later := models.Time{Time: time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC)}
	return kiteconnect.Instruments{
		{InstrumentToken: 10, Tradingsymbol: "NIFTY25O2124850CE", Name: "NIFTY", Expiry: expiry, StrikePrice: 24850, TickSize: 0.05, LotSize: 75, InstrumentType: "CE", Exchange: "NFO"},
		{InstrumentToken: 11, Tradingsymbol: "NIFTY25O2124450PE", Name: "NIFTY", Expiry: expiry, StrikePrice: 24450, TickSize: 0.05, LotSize: 75, InstrumentType: "PE", Exchange: "NFO"},
		{InstrumentToken: 12, Tradingsymbol: "NIFTY25O2824850CE", Name: "NIFTY", Expiry: later, StrikePrice: 24850, TickSize: 0.05, LotSize: 75, InstrumentType: "CE", Exchange: "NFO"},
		{InstrumentToken: 13, Tradingsymbol: "BANKNIFTY25O2824850CE", Name: "BANKNIFTY", Expiry: expiry, StrikePrice: 24850, TickSize: 0.05, LotSize: 35, InstrumentType: "CE", Exchange: "NFO"},
		{InstrumentToken: 14, Tradingsymbol: "NIFTY25OCTFUT", Name: "NIFTY", Expiry: expiry, InstrumentType: "FUT", Exchange: "NFO"},
	}
}

func TestInstrumentDirectory_Search(t *testing.T) {
	kc := &fakeKite{instruments: nfoDump()}
	d := newInstrumentDirectory("NFO", kc.GetInstrumentsByExchange)
	expiry := time.Date(2025, 10, 21, 0, 0, 0, 0, istLocation)

	got, err := d.search(context.Background(), types.ContractQuery{
		Underlying: "NIFTY", Expiry: expiry, OptionType: types.Call, Strike: decimal.NewFromInt(24850),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NIFTY25O2124850CE", got[0].Tradingsymbol)
	assert.Equal(t, uint32(10), got[0].Token)
	assert.Equal(t, 75, got[0].LotSize)
	assert.True(t, decimal.RequireFromString("0.05").Equal(got[0].TickSize))

	got, err = d.search(context.Background(), types.ContractQuery{
		Underlying: "NIFTY", Expiry: expiry, OptionType: types.Put, Strike: decimal.RequireFromString("24450.00"),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NIFTY25O2124450PE", got[0].Tradingsymbol)

	got, err = d.search(context.Background(), types.ContractQuery{
		Underlying: "NIFTY", Expiry: expiry, OptionType: types.Put, Strike: decimal.NewFromInt(24850),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInstrumentDirectory_CachesPerDay(t *testing.T) {
	kc := &fakeKite{instruments: nfoDump()}
	d := newInstrumentDirectory("NFO", kc.GetInstrumentsByExchange)
	now := time.Date(2025, 10, 17, 3, 45, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	q := types.ContractQuery{Underlying: "NIFTY", Expiry: time.Date(2025, 10, 21, 0, 0, 0, 0, istLocation), OptionType: types.Call, Strike: decimal.NewFromInt(24850)}
	for i := 0; i < 3; i++ {
		_, err := d.search(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, kc.instrumentHit)

	now = now.Add(24 * time.Hour)
	_, err := d.search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, kc.instrumentHit)
}

func TestInstrumentDirectory_EmptyDumpIsError(t *testing.T) {
	kc := &fakeKite{}
	d := newInstrumentDirectory("NFO", kc.GetInstrumentsByExchange)

	_, err := d.search(context.Background(), types.ContractQuery{Underlying: "NIFTY"})
	assert.Error(t, err)
}

func TestInstrumentDirectory_ConcurrentColdSearchesFetchOnce(t *testing.T) {
	var fetches atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	d := newInstrumentDirectory("NFO", func(string) (kiteconnect.Instruments, error) {
		if fetches.Add(1) == 1 {
			close(started)
		}
		<-release
		return nfoDump(), nil
	})

	q := types.ContractQuery{Underlying: "NIFTY", Expiry: time.Date(2025, 10, 21, 0, 0, 0, 0, istLocation), OptionType: types.Call, Strike: decimal.NewFromInt(24850)}
	results := make([][]types.ContractSymbol, 4)
	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.search(context.Background(), q)
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 1)
		assert.Equal(t, "NIFTY25O2124850CE", results[i][0].Tradingsymbol)
	}
}
