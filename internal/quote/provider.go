package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price for one instrument.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Provider returns current prices. Symbols are normalised by the provider.
type Provider interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Quote(ctx context.Context, symbol string) (Quote, error)
	Quotes(ctx context.Context) ([]Quote, error)
}

// Marker values a holding for the cached portfolio value.
type Marker interface {
	Mark(symbol string, costBasis decimal.Decimal) decimal.Decimal
}

// Static serves fixed prices and marks every holding at cost. Used in
// tests and when simulation is disabled.
type Static struct {
	prices map[string]decimal.Decimal
}

// NewStatic creates a provider over the given prices. A nil map uses the
// catalog base prices.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	if prices == nil {
		prices = make(map[string]decimal.Decimal, len(instruments))
		for _, in := range instruments {
			prices[in.Symbol] = in.BasePrice
		}
	}
	return &Static{prices: prices}
}

func (s *Static) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := s.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

func (s *Static) Quote(_ context.Context, symbol string) (Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}
	p, ok := s.prices[sym]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
	}
	in, _ := Lookup(sym)
	return Quote{Symbol: sym, Name: in.Name, Price: p}, nil
}

func (s *Static) Quotes(ctx context.Context) ([]Quote, error) {
	var out []Quote
	for _, in := range Instruments() {
		if q, err := s.Quote(ctx, in.Symbol); err == nil {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *Static) Mark(_ string, costBasis decimal.Decimal) decimal.Decimal {
	return costBasis
}

// Search returns the quotes whose symbol or name contains q, ignoring case.
// An empty q matches everything.
func Search(qs []Quote, q string) []Quote {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]Quote, 0, len(qs))
	for _, qt := range qs {
		if q == "" || strings.Contains(strings.ToLower(qt.Symbol), q) || strings.Contains(strings.ToLower(qt.Name), q) {
			out = append(out, qt)
		}
	}
	return out
}
