// Package quote provides stock prices to the ledger: symbol normalisation,
// the instrument catalog, a random-walk simulator, and the mark policy used
// for portfolio valuation.
package quote

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Supported exchange suffixes. A bare symbol means NSE.
const (
	ExchangeNSE = "NS"
	ExchangeBSE = "BO"
)

// symbolRegex matches: {SYMBOL}[.{exchange}]
// Example: RELIANCE, M&M.NS, BAJAJ-AUTO.BO
var symbolRegex = regexp.MustCompile(
	`^([A-Z][A-Z0-9&-]{0,19})(?:\.([A-Z]{2}))?$`,
)

var (
	ErrInvalidSymbol   = errors.New("quote: invalid symbol format")
	ErrUnknownSymbol   = errors.New("quote: unknown symbol")
	ErrInvalidExchange = errors.New("quote: unsupported exchange")
)

// NormalizeSymbol trims, upper-cases and validates a user-supplied symbol,
// dropping any exchange suffix.
func NormalizeSymbol(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	matches := symbolRegex.FindStringSubmatch(s)
	if matches == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	if ex := matches[2]; ex != "" && ex != ExchangeNSE && ex != ExchangeBSE {
		return "", fmt.Errorf("%w: %s", ErrInvalidExchange, ex)
	}
	return matches[1], nil
}

// Instrument is a tradable stock in the catalog.
type Instrument struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Sector    string          `json:"sector"`
	BasePrice decimal.Decimal `json:"base_price"`
}

func inst(symbol, name, sector string, base int64) Instrument {
	return Instrument{Symbol: symbol, Name: name, Sector: sector, BasePrice: decimal.NewFromInt(base)}
}

var instruments = []Instrument{
	inst("RELIANCE", "Reliance Industries", "Energy", 2450),
	inst("TCS", "Tata Consultancy Services", "IT", 3650),
	inst("INFY", "Infosys", "IT", 1520),
	inst("HDFCBANK", "HDFC Bank", "Banking", 1680),
	inst("ICICIBANK", "ICICI Bank", "Banking", 1050),
	inst("SBIN", "State Bank of India", "Banking", 620),
	inst("WIPRO", "Wipro", "IT", 450),
	inst("BHARTIARTL", "Bharti Airtel", "Telecom", 1320),
	inst("TATASTEEL", "Tata Steel", "Metals", 135),
	inst("KOTAKBANK", "Kotak Mahindra Bank", "Banking", 1780),
	inst("LT", "Larsen & Toubro", "Infrastructure", 3200),
	inst("MARUTI", "Maruti Suzuki", "Automobile", 10800),
	inst("ASIANPAINT", "Asian Paints", "Consumer", 2850),
	inst("TITAN", "Titan Company", "Consumer", 3150),
	inst("BAJFINANCE", "Bajaj Finance", "Financial Services", 6800),
}

// Instruments returns the catalog sorted by symbol.
func Instruments() []Instrument {
	out := append([]Instrument(nil), instruments...)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Lookup returns the instrument for a normalised symbol.
func Lookup(symbol string) (Instrument, bool) {
	for _, in := range instruments {
		if in.Symbol == symbol {
			return in, true
		}
	}
	return Instrument{}, false
}
