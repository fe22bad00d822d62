package sip_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/sip"
	"github.com/finsim/ledger-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProject_MonthlyCompounding(t *testing.T) {
	proj, err := sip.Project(sip.Plan{
		FundName: "Nifty 50 Index", MonthlyAmount: d("1000"), DurationMonths: 12, ExpectedReturn: d("12"),
	})
	require.NoError(t, err)

	// 1000 × (1.01^12 − 1) / 0.01
	assert.True(t, proj.FutureValue.Equal(d("12682.50")), "fv: %s", proj.FutureValue)
	assert.True(t, proj.TotalInvested.Equal(d("12000")))
	assert.True(t, proj.Profit.Equal(d("682.50")), "profit: %s", proj.Profit)

	require.Len(t, proj.Series, 12)
	assert.Equal(t, 1, proj.Series[0].Month)
	assert.True(t, proj.Series[0].Value.Equal(d("1000")))
	assert.True(t, proj.Series[1].Value.Equal(d("2010")))
	assert.True(t, proj.Series[11].Value.Equal(proj.FutureValue))
	for i := 1; i < len(proj.Series); i++ {
		assert.True(t, proj.Series[i].Value.GreaterThan(proj.Series[i-1].Value))
	}
}

func TestProject_ZeroReturnIsPlainSaving(t *testing.T) {
	proj, err := sip.Project(sip.Plan{FundName: "Liquid", MonthlyAmount: d("500"), DurationMonths: 24, ExpectedReturn: d("0")})
	require.NoError(t, err)
	assert.True(t, proj.FutureValue.Equal(d("12000")))
	assert.True(t, proj.Profit.IsZero())
}

func TestProject_Validation(t *testing.T) {
	valid := sip.Plan{FundName: "Flexi Cap", MonthlyAmount: d("1000"), DurationMonths: 12, ExpectedReturn: d("10")}
	tests := []struct {
		name   string
		mutate func(p *sip.Plan)
	}{
		{"missing fund", func(p *sip.Plan) { p.FundName = "  " }},
		{"zero amount", func(p *sip.Plan) { p.MonthlyAmount = decimal.Zero }},
		{"huge amount", func(p *sip.Plan) { p.MonthlyAmount = d("10000001") }},
		{"zero months", func(p *sip.Plan) { p.DurationMonths = 0 }},
		{"too many months", func(p *sip.Plan) { p.DurationMonths = sip.MaxMonths + 1 }},
		{"negative return", func(p *sip.Plan) { p.ExpectedReturn = d("-1") }},
		{"absurd return", func(p *sip.Plan) { p.ExpectedReturn = d("51") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := sip.Project(p)
			require.ErrorIs(t, err, sip.ErrInvalidInput)
		})
	}
}

func TestService_SimulateStoresProjection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateUser(ctx, &model.User{ID: "u1", Name: "Meera", CashBalance: model.StartingBalance, CreatedAt: time.Now()}))
	svc := sip.NewService(st, nil)

	first, err := svc.Simulate(ctx, "u1", sip.Plan{FundName: " Bluechip ", MonthlyAmount: d("2000"), DurationMonths: 6, ExpectedReturn: d("8")})
	require.NoError(t, err)
	assert.Equal(t, "Bluechip", first.FundName)
	assert.NotEmpty(t, first.ID)
	assert.Len(t, first.Series, 6)

	second, err := svc.Simulate(ctx, "u1", sip.Plan{FundName: "Midcap", MonthlyAmount: d("1000"), DurationMonths: 3, ExpectedReturn: d("15")})
	require.NoError(t, err)

	sims, err := svc.Simulations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sims, 2)
	assert.Equal(t, second.ID, sims[0].ID)
	assert.Equal(t, first.ID, sims[1].ID)
	assert.Len(t, sims[1].Series, 6)

	_, err = svc.Simulate(ctx, "ghost", sip.Plan{FundName: "Midcap", MonthlyAmount: d("1000"), DurationMonths: 3, ExpectedReturn: d("15")})
	require.ErrorIs(t, err, sip.ErrUserNotFound)

	_, err = svc.Simulate(ctx, "u1", sip.Plan{FundName: "Midcap", DurationMonths: 3})
	require.ErrorIs(t, err, sip.ErrInvalidInput)
	sims, err = svc.Simulations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sims, 2, "rejected plans are not stored")
}
