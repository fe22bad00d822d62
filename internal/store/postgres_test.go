package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/store"
)

func newPostgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	st := store.NewPostgresStore(pool)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestPostgresStore_TradeRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newPostgresStore(t)

	uid := uuid.NewString()
	require.NoError(t, st.CreateUser(ctx, &model.User{
		ID: uid, Name: "pg", CashBalance: decimal.NewFromInt(1000), CreatedAt: time.Now(),
	}))

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockUser(ctx, uid); err != nil {
			return err
		}
		if _, err := tx.GetHolding(ctx, uid, "TCS"); !assert.ErrorIs(t, err, store.ErrNotFound) {
			return err
		}
		if err := tx.UpsertHolding(ctx, &model.Holding{
			UserID: uid, Symbol: "TCS", Quantity: 3, AvgPrice: decimal.RequireFromString("100.3333333333"), UpdatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &model.Transaction{
			ID: uuid.NewString(), UserID: uid, Symbol: "TCS", Side: model.SideBuy,
			Quantity: 3, Price: decimal.RequireFromString("100.1234"), RequestID: "r1", ExecutedAt: time.Now(),
			CashAfter: decimal.RequireFromString("699.6298"), PortfolioValueAfter: decimal.RequireFromString("999.9"),
		})
	})
	require.NoError(t, err)

	var prior *model.Transaction
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		var err error
		prior, err = tx.FindTransactionByRequestID(ctx, uid, "r1")
		return err
	}))
	assert.Equal(t, "100.1234", prior.Price.String())
	assert.Equal(t, "699.6298", prior.CashAfter.String())
	assert.Equal(t, "999.9", prior.PortfolioValueAfter.String())

	holdings, err := st.ListHoldings(ctx, uid)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "100.3333333333", holdings[0].AvgPrice.String())

	err = st.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertTransaction(ctx, &model.Transaction{
			ID: uuid.NewString(), UserID: uid, Symbol: "TCS", Side: model.SideBuy,
			Quantity: 1, Price: decimal.NewFromInt(100), RequestID: "r1", ExecutedAt: time.Now(),
		})
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	act, err := st.GetActivity(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), act.TransactionCount)
	assert.Equal(t, int64(1), act.HoldingCount)
}

func TestPostgresStore_SIPSimulations(t *testing.T) {
	ctx := context.Background()
	st := newPostgresStore(t)

	uid := uuid.NewString()
	require.NoError(t, st.CreateUser(ctx, &model.User{
		ID: uid, Name: "pg", CashBalance: decimal.NewFromInt(1000), CreatedAt: time.Now(),
	}))

	sim := &model.SIPSimulation{
		ID: uuid.NewString(), UserID: uid, FundName: "Nifty 50 Index",
		MonthlyAmount: decimal.NewFromInt(1000), DurationMonths: 2, ExpectedReturn: decimal.NewFromInt(12),
		FutureValue: decimal.NewFromInt(2010), TotalInvested: decimal.NewFromInt(2000), Profit: decimal.NewFromInt(10),
		Series: []model.SIPPoint{
			{Month: 1, Value: decimal.NewFromInt(1000)},
			{Month: 2, Value: decimal.NewFromInt(2010)},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error { return tx.InsertSIPSimulation(ctx, sim) }))

	sims, err := st.ListSIPSimulations(ctx, uid)
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "Nifty 50 Index", sims[0].FundName)
	require.Len(t, sims[0].Series, 2)
	assert.True(t, sims[0].Series[1].Value.Equal(decimal.NewFromInt(2010)))
}
