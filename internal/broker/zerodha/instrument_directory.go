package zerodha

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kite-strangle-bot/internal/types"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/sync/singleflight"
)

var istLocation = time.FixedZone("IST", 5*3600+1800)

type contractKey struct {
	name        string
	expiry      string
	optionType  types.OptionType
	strikePaise int64
}

func newContractKey(name string, expiry time.Time, t types.OptionType, strike decimal.Decimal) contractKey {
	return contractKey{
		name:        name,
		expiry:      expiry.Format(time.DateOnly),
		optionType:  t,
		strikePaise: strike.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
	}
}

// instrumentDirectory caches one exchange's instrument dump per IST trading day
// and indexes its options by underlying, expiry, type and strike.
type instrumentDirectory struct {
	exchange string
	fetch    func(exchange string) (kiteconnect.Instruments, error)
	now      func() time.Time
	loads    singleflight.Group

	mu        sync.RWMutex
	loadedOn  string
	contracts map[contractKey][]types.ContractSymbol
}

func newInstrumentDirectory(exchange string, fetch func(string) (kiteconnect.Instruments, error)) *instrumentDirectory {
	return &instrumentDirectory{
		exchange:  exchange,
		fetch:     fetch,
		now:       time.Now,
		contracts: make(map[contractKey][]types.ContractSymbol),
	}
}

func (d *instrumentDirectory) search(ctx context.Context, q types.ContractQuery) ([]types.ContractSymbol, error) {
	if err := d.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	found := d.contracts[newContractKey(q.Underlying, q.Expiry, q.OptionType, q.Strike)]
	out := make([]types.ContractSymbol, len(found))
	copy(out, found)
	return out, nil
}

func (d *instrumentDirectory) ensureLoaded(ctx context.Context) error {
	today := d.now().In(istLocation).Format(time.DateOnly)

	d.mu.RLock()
	fresh := d.loadedOn == today
	d.mu.RUnlock()
	if fresh {
		return nil
	}

	// Concurrent cold searches share one dump download.
	_, err, _ := d.loads.Do(today, func() (any, error) {
		d.mu.RLock()
		fresh := d.loadedOn == today
		d.mu.RUnlock()
		if fresh {
			return nil, nil
		}
		return nil, d.load(today)
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (d *instrumentDirectory) load(today string) error {
	instruments, err := d.fetch(d.exchange)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		return fmt.Errorf("empty instrument dump for %s", d.exchange)
	}

	contracts := make(map[contractKey][]types.ContractSymbol)
	for _, inst := range instruments {
		optType := types.OptionType(inst.InstrumentType)
		if optType != types.Call && optType != types.Put {
			continue
		}
		cs := toContractSymbol(inst)
		key := newContractKey(cs.Underlying, cs.Expiry, cs.OptionType, cs.Strike)
		contracts[key] = append(contracts[key], cs)
	}

	d.mu.Lock()
	d.contracts = contracts
	d.loadedOn = today
	d.mu.Unlock()
	return nil
}

func toContractSymbol(inst kiteconnect.Instrument) types.ContractSymbol {
	expiry := inst.Expiry.Time
	expiry = time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, istLocation)

	return types.ContractSymbol{
		Underlying:    inst.Name,
		Expiry:        expiry,
		Strike:        decimal.NewFromFloat(inst.StrikePrice),
		OptionType:    types.OptionType(inst.InstrumentType),
		Tradingsymbol: inst.Tradingsymbol,
		Exchange:      inst.Exchange,
		Token:         uint32(inst.InstrumentToken),
		LotSize:       int(inst.LotSize),
		TickSize:      decimal.NewFromFloat(inst.TickSize),
	}
}
