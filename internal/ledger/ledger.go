// Package ledger executes trades against a user's cash and holdings and
// keeps the append-only transaction log.
//
// A trade is one store transaction: the user row is locked first, then the
// holding row, so trades for the same user serialise while trades for
// different users proceed in parallel.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/metrics"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/quote"
	"github.com/finsim/ledger-engine/internal/store"
)

var (
	ErrInvalidInput         = errors.New("ledger: invalid input")
	ErrInsufficientFunds    = errors.New("ledger: insufficient funds")
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")
	ErrUserNotFound         = errors.New("ledger: user not found")
)

const (
	// MaxQuantity is the default cap on shares per trade.
	MaxQuantity int64 = 1_000_000_000
	// PriceScale is the number of decimal places a trade price may carry.
	PriceScale = 4
)

// AfterTradeFunc runs once a trade has committed. Its error is logged and
// never undoes the trade.
type AfterTradeFunc func(ctx context.Context, userID string) error

// Options configures a Service. Zero values pick defaults.
type Options struct {
	StartingBalance decimal.Decimal
	MaxQuantity     int64 // per trade; 0 means MaxQuantity
	Logger          *slog.Logger
	Now             func() time.Time
}

// Service is the portfolio ledger.
type Service struct {
	store           store.Store
	prices          quote.Provider
	marker          quote.Marker
	log             *slog.Logger
	now             func() time.Time
	startingBalance decimal.Decimal
	maxQuantity     int64
	afterTrade      []AfterTradeFunc
}

// NewService creates a ledger over st. prices serves live quotes for
// snapshots; marker values holdings for the cached portfolio value.
func NewService(st store.Store, prices quote.Provider, marker quote.Marker, opts Options) *Service {
	s := &Service{
		store:           st,
		prices:          prices,
		marker:          marker,
		log:             opts.Logger,
		now:             opts.Now,
		startingBalance: opts.StartingBalance,
		maxQuantity:     opts.MaxQuantity,
	}
	if s.maxQuantity <= 0 {
		s.maxQuantity = MaxQuantity
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.startingBalance.IsZero() {
		s.startingBalance = model.StartingBalance
	}
	return s
}

// OnTrade registers fn to run after every executed (non-replayed) trade.
func (s *Service) OnTrade(fn AfterTradeFunc) {
	s.afterTrade = append(s.afterTrade, fn)
}

// StartingBalance returns the cash a new account opens with.
func (s *Service) StartingBalance() decimal.Decimal {
	return s.startingBalance
}

// TradeRequest is the input to ExecuteTrade.
type TradeRequest struct {
	UserID    string
	Symbol    string
	Side      model.Side
	Quantity  int64
	Price     decimal.Decimal
	RequestID string // optional idempotency key, unique per user
}

// TradeResult describes the state after a trade.
type TradeResult struct {
	Transaction    model.Transaction `json:"transaction"`
	CashBalance    decimal.Decimal   `json:"cash_balance"`
	Holding        *model.Holding    `json:"holding,omitempty"` // nil when the position was closed
	PortfolioValue decimal.Decimal   `json:"portfolio_value"`
	Replayed       bool              `json:"replayed"`
}

// CreateUser opens an account with the starting balance.
func (s *Service) CreateUser(ctx context.Context, name, email string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	u := &model.User{
		ID:             uuid.New().String(),
		Name:           name,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		CashBalance:    s.startingBalance,
		PortfolioValue: s.startingBalance,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user created", "user", u.ID)
	return u, nil
}

// ExecuteTrade applies one BUY or SELL atomically. A repeated RequestID
// returns the original result without executing again; reusing it for a
// different symbol, side or quantity fails with store.ErrConflict.
func (s *Service) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	start := time.Now()

	req, err := normalize(req, s.maxQuantity)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	var res *TradeResult
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, req.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
		}
		if err != nil {
			return err
		}

		if req.RequestID != "" {
			prior, err := tx.FindTransactionByRequestID(ctx, req.UserID, req.RequestID)
			if err == nil {
				if prior.Symbol != req.Symbol || prior.Side != req.Side || prior.Quantity != req.Quantity {
					return fmt.Errorf("%w: request id %q was used for %s %d %s",
						store.ErrConflict, req.RequestID, prior.Side, prior.Quantity, prior.Symbol)
				}
				res, err = s.replay(ctx, tx, user, prior)
				return err
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		res, err = s.apply(ctx, tx, user, req)
		return err
	})
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectReason(err)).Inc()
		s.log.Info("trade rejected",
			"user", req.UserID, "symbol", req.Symbol, "side", req.Side,
			"qty", req.Quantity, "reason", err.Error())
		return nil, err
	}
	if res.Replayed {
		s.log.Info("trade replayed", "user", req.UserID, "request_id", req.RequestID, "trade_id", res.Transaction.ID)
		return res, nil
	}

	side := string(req.Side)
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	s.log.Info("trade executed",
		"trade_id", res.Transaction.ID,
		"user", req.UserID,
		"symbol", req.Symbol,
		"side", side,
		"qty", req.Quantity,
		"price", req.Price.String(),
		"cash", res.CashBalance.String(),
	)

	for _, fn := range s.afterTrade {
		if err := fn(ctx, req.UserID); err != nil {
			s.log.Error("after-trade hook failed", "user", req.UserID, "error", err)
		}
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, tx store.Tx, user *model.User, req TradeRequest) (*TradeResult, error) {
	qty := decimal.NewFromInt(req.Quantity)
	total := req.Price.Mul(qty)
	cash := user.CashBalance
	now := s.now().UTC()

	h, err := tx.GetHolding(ctx, user.ID, req.Symbol)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	exists := err == nil

	switch req.Side {
	case model.SideBuy:
		if total.GreaterThan(cash) {
			return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, total, cash)
		}
		if exists {
			if h.Quantity > math.MaxInt64-req.Quantity {
				return nil, fmt.Errorf("%w: position in %s would exceed %d shares", ErrInvalidInput, req.Symbol, int64(math.MaxInt64))
			}
			h.AvgPrice = WeightedAverage(h.AvgPrice, h.Quantity, req.Price, req.Quantity)
			h.Quantity += req.Quantity
		} else {
			h = &model.Holding{UserID: user.ID, Symbol: req.Symbol, Quantity: req.Quantity, AvgPrice: req.Price}
		}
		h.UpdatedAt = now
		if err := tx.UpsertHolding(ctx, h); err != nil {
			return nil, fmt.Errorf("upsert holding: %w", err)
		}
		cash = cash.Sub(total)

	case model.SideSell:
		if !exists || h.Quantity < req.Quantity {
			have := int64(0)
			if exists {
				have = h.Quantity
			}
			return nil, fmt.Errorf("%w: selling %d %s, holding %d", ErrInsufficientHoldings, req.Quantity, req.Symbol, have)
		}
		h.Quantity -= req.Quantity
		h.UpdatedAt = now
		if h.Quantity == 0 {
			if err := tx.DeleteHolding(ctx, user.ID, req.Symbol); err != nil {
				return nil, fmt.Errorf("delete holding: %w", err)
			}
			h = nil
		} else if err := tx.UpsertHolding(ctx, h); err != nil {
			return nil, fmt.Errorf("upsert holding: %w", err)
		}
		cash = cash.Add(total)
	}

	holdings, err := tx.ListHoldings(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	value := Valuate(cash, holdings, s.marker)

	t := model.Transaction{
		ID:                  uuid.New().String(),
		UserID:              user.ID,
		Symbol:              req.Symbol,
		Side:                req.Side,
		Quantity:            req.Quantity,
		Price:               req.Price,
		RequestID:           req.RequestID,
		ExecutedAt:          now,
		CashAfter:           cash,
		PortfolioValueAfter: value,
	}
	if err := tx.InsertTransaction(ctx, &t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := tx.SetBalances(ctx, user.ID, cash, value); err != nil {
		return nil, fmt.Errorf("set balances: %w", err)
	}

	return &TradeResult{
		Transaction:    t,
		CashBalance:    cash,
		Holding:        h,
		PortfolioValue: value,
	}, nil
}

// replay rebuilds the result of an executed trade. Balances come from the
// transaction; the holding is the current one.
func (s *Service) replay(ctx context.Context, tx store.Tx, user *model.User, prior *model.Transaction) (*TradeResult, error) {
	res := &TradeResult{
		Transaction:    *prior,
		CashBalance:    prior.CashAfter,
		PortfolioValue: prior.PortfolioValueAfter,
		Replayed:       true,
	}
	h, err := tx.GetHolding(ctx, user.ID, prior.Symbol)
	switch {
	case err == nil:
		res.Holding = h
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return res, nil
}

// Transactions returns the newest limit entries of the user's log.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

func (s *Service) user(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return u, err
}

// WeightedAverage returns (oldAvg×oldQty + price×qty) / (oldQty+qty).
func WeightedAverage(oldAvg decimal.Decimal, oldQty int64, price decimal.Decimal, qty int64) decimal.Decimal {
	total := decimal.NewFromInt(oldQty).Add(decimal.NewFromInt(qty))
	if total.IsZero() {
		return decimal.Zero
	}
	num := oldAvg.Mul(decimal.NewFromInt(oldQty)).Add(price.Mul(decimal.NewFromInt(qty)))
	return num.Div(total)
}

// Valuate returns cash plus every holding marked by m.
func Valuate(cash decimal.Decimal, holdings []model.Holding, m quote.Marker) decimal.Decimal {
	total := cash
	for _, h := range holdings {
		mark := h.AvgPrice
		if m != nil {
			mark = m.Mark(h.Symbol, h.AvgPrice)
		}
		total = total.Add(mark.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total.Round(2)
}

func normalize(req TradeRequest, maxQty int64) (TradeRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return req, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	sym, err := quote.NormalizeSymbol(req.Symbol)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	req.Symbol = sym

	switch model.Side(strings.ToUpper(strings.TrimSpace(string(req.Side)))) {
	case model.SideBuy:
		req.Side = model.SideBuy
	case model.SideSell:
		req.Side = model.SideSell
	default:
		return req, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidInput)
	}

	if req.Quantity <= 0 {
		return req, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if req.Quantity > maxQty {
		return req, fmt.Errorf("%w: quantity must be at most %d", ErrInvalidInput, maxQty)
	}
	if !req.Price.IsPositive() {
		return req, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if !req.Price.Equal(req.Price.Truncate(PriceScale)) {
		return req, fmt.Errorf("%w: price has more than %d decimal places", ErrInvalidInput, PriceScale)
	}
	req.Price = req.Price.Truncate(PriceScale)
	req.RequestID = strings.TrimSpace(req.RequestID)
	if len(req.RequestID) > 128 {
		return req, fmt.Errorf("%w: request id too long", ErrInvalidInput)
	}
	return req, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, store.ErrConflict):
		return "idempotency_conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
