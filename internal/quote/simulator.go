package quote

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	minPrice     = decimal.RequireFromString("0.01")
	markFloor    = 0.98
	markSpread   = 0.08
	hundred      = decimal.NewFromInt(100)
	reversionPct = decimal.RequireFromString("0.01")
)

// Simulator is a Provider whose prices follow a bounded random walk that
// drifts back toward each instrument's base price. Prices live in process
// memory and restart from base on boot.
type Simulator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	volatility decimal.Decimal
	price      map[string]decimal.Decimal
	open       map[string]decimal.Decimal
	updated    map[string]time.Time
	now        func() time.Time
}

// NewSimulator creates a simulator. volatility bounds each tick's move as a
// fraction of the current price. seed 0 picks a time-based seed.
func NewSimulator(volatility float64, seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulator{
		rng:        rand.New(rand.NewSource(seed)),
		volatility: decimal.NewFromFloat(volatility),
		price:      make(map[string]decimal.Decimal, len(instruments)),
		open:       make(map[string]decimal.Decimal, len(instruments)),
		updated:    make(map[string]time.Time, len(instruments)),
		now:        time.Now,
	}
	now := s.now()
	for _, in := range instruments {
		s.price[in.Symbol] = in.BasePrice
		s.open[in.Symbol] = in.BasePrice
		s.updated[in.Symbol] = now
	}
	return s
}

func (s *Simulator) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := s.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

func (s *Simulator) Quote(_ context.Context, symbol string) (Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.price[sym]; !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
	}
	return s.quoteLocked(sym), nil
}

func (s *Simulator) Quotes(_ context.Context) ([]Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Quote, 0, len(s.price))
	for _, in := range Instruments() {
		out = append(out, s.quoteLocked(in.Symbol))
	}
	return out, nil
}

// Tick advances every price by one random-walk step and returns the new
// quotes.
func (s *Simulator) Tick() []Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Quote, 0, len(s.price))
	for _, in := range Instruments() {
		cur := s.price[in.Symbol]
		shock := decimal.NewFromFloat(s.rng.Float64()*2 - 1)
		step := cur.Mul(s.volatility).Mul(shock)
		pull := in.BasePrice.Sub(cur).Mul(reversionPct)

		next := cur.Add(step).Add(pull).Round(2)
		if next.LessThan(minPrice) {
			next = minPrice
		}
		s.price[in.Symbol] = next
		s.updated[in.Symbol] = now
		out = append(out, s.quoteLocked(in.Symbol))
	}
	return out
}

// Run ticks every interval and hands each batch to fn until ctx is done.
func (s *Simulator) Run(ctx context.Context, every time.Duration, fn func([]Quote)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes := s.Tick()
			if fn != nil {
				fn(quotes)
			}
		}
	}
}

// Mark values a holding at its cost basis scaled by a random factor in
// [0.98, 1.06).
func (s *Simulator) Mark(_ string, costBasis decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	f := markFloor + s.rng.Float64()*markSpread
	s.mu.Unlock()
	return costBasis.Mul(decimal.NewFromFloat(f).Truncate(4))
}

func (s *Simulator) quoteLocked(sym string) Quote {
	in, _ := Lookup(sym)
	price := s.price[sym]
	change := price.Sub(s.open[sym])
	pct := decimal.Zero
	if !s.open[sym].IsZero() {
		pct = change.Div(s.open[sym]).Mul(hundred).Round(2)
	}
	return Quote{
		Symbol:        sym,
		Name:          in.Name,
		Price:         price,
		Change:        change,
		ChangePercent: pct,
		UpdatedAt:     s.updated[sym],
	}
}
