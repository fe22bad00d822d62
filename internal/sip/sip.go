// Package sip projects systematic investment plans: a fixed amount
// invested at the end of every month, compounding monthly at an expected
// annual return.
package sip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/metrics"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/store"
)

var (
	ErrInvalidInput = errors.New("sip: invalid input")
	ErrUserNotFound = errors.New("sip: user not found")
)

// MaxMonths is the longest plan accepted (50 years).
const MaxMonths = 600

var (
	maxAmount   = decimal.NewFromInt(10_000_000)
	maxReturn   = decimal.NewFromInt(50)
	monthlyRate = decimal.NewFromInt(1200) // annual percent -> monthly fraction
)

// Plan is the input to a projection.
type Plan struct {
	FundName       string          `json:"fund_name"`
	MonthlyAmount  decimal.Decimal `json:"monthly_amount"`
	DurationMonths int             `json:"duration_months"`
	ExpectedReturn decimal.Decimal `json:"expected_return"` // annual, percent
}

// Projection is the outcome of a plan. Values are rounded to paise.
type Projection struct {
	FutureValue   decimal.Decimal  `json:"future_value"`
	TotalInvested decimal.Decimal  `json:"total_invested"`
	Profit        decimal.Decimal  `json:"profit"`
	Series        []model.SIPPoint `json:"series"`
}

// Project computes the value after every month. The final value equals
// amount × ((1+i)^n − 1) / i with i the monthly rate.
func Project(p Plan) (Projection, error) {
	if err := validate(p); err != nil {
		return Projection{}, err
	}

	growth := decimal.NewFromInt(1).Add(p.ExpectedReturn.Div(monthlyRate))
	value := decimal.Zero
	series := make([]model.SIPPoint, 0, p.DurationMonths)
	for m := 1; m <= p.DurationMonths; m++ {
		value = value.Mul(growth).Add(p.MonthlyAmount)
		series = append(series, model.SIPPoint{Month: m, Value: value.Round(2)})
	}

	fv := value.Round(2)
	invested := p.MonthlyAmount.Mul(decimal.NewFromInt(int64(p.DurationMonths))).Round(2)
	return Projection{
		FutureValue:   fv,
		TotalInvested: invested,
		Profit:        fv.Sub(invested),
		Series:        series,
	}, nil
}

func validate(p Plan) error {
	switch {
	case strings.TrimSpace(p.FundName) == "":
		return fmt.Errorf("%w: fund name is required", ErrInvalidInput)
	case len(p.FundName) > 100:
		return fmt.Errorf("%w: fund name too long", ErrInvalidInput)
	case !p.MonthlyAmount.IsPositive():
		return fmt.Errorf("%w: monthly amount must be positive", ErrInvalidInput)
	case p.MonthlyAmount.GreaterThan(maxAmount):
		return fmt.Errorf("%w: monthly amount must be at most %s", ErrInvalidInput, maxAmount)
	case p.DurationMonths <= 0 || p.DurationMonths > MaxMonths:
		return fmt.Errorf("%w: duration must be 1..%d months", ErrInvalidInput, MaxMonths)
	case p.ExpectedReturn.IsNegative() || p.ExpectedReturn.GreaterThan(maxReturn):
		return fmt.Errorf("%w: expected return must be 0..%s percent", ErrInvalidInput, maxReturn)
	}
	return nil
}

// Service saves projections per user.
type Service struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates a Service over st.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, log: logger, now: time.Now}
}

// Simulate projects p and stores the result for userID.
func (s *Service) Simulate(ctx context.Context, userID string, p Plan) (*model.SIPSimulation, error) {
	proj, err := Project(p)
	if err != nil {
		return nil, err
	}
	sim := &model.SIPSimulation{
		ID:             uuid.New().String(),
		UserID:         userID,
		FundName:       strings.TrimSpace(p.FundName),
		MonthlyAmount:  p.MonthlyAmount,
		DurationMonths: p.DurationMonths,
		ExpectedReturn: p.ExpectedReturn,
		FutureValue:    proj.FutureValue,
		TotalInvested:  proj.TotalInvested,
		Profit:         proj.Profit,
		Series:         proj.Series,
		CreatedAt:      s.now().UTC(),
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockUser(ctx, userID); errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		} else if err != nil {
			return err
		}
		return tx.InsertSIPSimulation(ctx, sim)
	})
	if err != nil {
		return nil, err
	}

	metrics.SIPSimulations.Inc()
	s.log.Info("sip simulated", "user", userID, "fund", sim.FundName,
		"months", sim.DurationMonths, "future_value", sim.FutureValue.String())
	return sim, nil
}

// Simulations returns the user's saved projections, newest first.
func (s *Service) Simulations(ctx context.Context, userID string) ([]model.SIPSimulation, error) {
	return s.store.ListSIPSimulations(ctx, userID)
}
