package ledger

import (
	"context"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Position is one holding valued at the live quote.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Invested     decimal.Decimal `json:"invested"`
	MarketValue  decimal.Decimal `json:"market_value"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPercent   decimal.Decimal `json:"pnl_percent"`
}

// Snapshot is a user's portfolio computed on read.
type Snapshot struct {
	UserID       string          `json:"user_id"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
	Invested     decimal.Decimal `json:"invested"`
	MarketValue  decimal.Decimal `json:"market_value"`
	TotalValue   decimal.Decimal `json:"total_value"`
	PnL          decimal.Decimal `json:"pnl"`
	Growth       decimal.Decimal `json:"growth_percent"` // vs starting balance
	Positions    []Position      `json:"positions"`
	CashDisplay  string          `json:"cash_display"`
	TotalDisplay string          `json:"total_display"`
}

// CashShare returns cash as a fraction of total value, or 1 when the
// portfolio is empty.
func (s Snapshot) CashShare() decimal.Decimal {
	if !s.TotalValue.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return s.CashBalance.Div(s.TotalValue)
}

// Portfolio builds the user's snapshot from stored holdings and live
// quotes. A symbol without a quote is valued at cost.
func (s *Service) Portfolio(ctx context.Context, userID string) (*Snapshot, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		UserID:      u.ID,
		CashBalance: u.CashBalance,
		Positions:   make([]Position, 0, len(holdings)),
	}
	for _, h := range holdings {
		snap.Positions = append(snap.Positions, s.position(ctx, h))
	}
	for _, p := range snap.Positions {
		snap.Invested = snap.Invested.Add(p.Invested)
		snap.MarketValue = snap.MarketValue.Add(p.MarketValue)
	}
	snap.PnL = snap.MarketValue.Sub(snap.Invested)
	snap.TotalValue = snap.CashBalance.Add(snap.MarketValue)
	if s.startingBalance.IsPositive() {
		snap.Growth = snap.TotalValue.Sub(s.startingBalance).Div(s.startingBalance).Mul(hundred).Round(2)
	}
	snap.CashDisplay = FormatINR(snap.CashBalance)
	snap.TotalDisplay = FormatINR(snap.TotalValue)
	return snap, nil
}

func (s *Service) position(ctx context.Context, h model.Holding) Position {
	price := h.AvgPrice
	if s.prices != nil {
		if p, err := s.prices.GetPrice(ctx, h.Symbol); err == nil {
			price = p
		}
	}
	invested := h.Invested()
	value := price.Mul(decimal.NewFromInt(h.Quantity))
	pnl := value.Sub(invested)
	pct := decimal.Zero
	if invested.IsPositive() {
		pct = pnl.Div(invested).Mul(hundred).Round(2)
	}
	return Position{
		Symbol:       h.Symbol,
		Quantity:     h.Quantity,
		AvgPrice:     h.AvgPrice,
		CurrentPrice: price,
		Invested:     invested.Round(2),
		MarketValue:  value.Round(2),
		PnL:          pnl.Round(2),
		PnLPercent:   pct,
	}
}

// FormatINR renders an amount as rupees, e.g. "₹100,000.00".
func FormatINR(amount decimal.Decimal) string {
	cur := money.GetCurrency(money.INR)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, money.INR).Display()
}
