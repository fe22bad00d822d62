package progress_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/store"
)

type env struct {
	ctx    context.Context
	store  *store.MemoryStore
	engine *progress.Engine
	userID string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateUser(ctx, &model.User{
		ID:             "u1",
		Name:           "Meera",
		CashBalance:    model.StartingBalance,
		PortfolioValue: model.StartingBalance,
		CreatedAt:      time.Now(),
	}))
	eng := progress.NewEngine(st, catalog.Default(), progress.Options{})
	return &env{ctx: ctx, store: st, engine: eng, userID: "u1"}
}

// seed runs fn in a store transaction; used to fake ledger and academy
// activity without going through those services.
func (e *env) seed(t *testing.T, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, e.store.InTx(e.ctx, fn))
}

func (e *env) addTrades(t *testing.T, n int) {
	e.seed(t, func(tx store.Tx) error {
		for i := 0; i < n; i++ {
			err := tx.InsertTransaction(e.ctx, &model.Transaction{
				ID: fmt.Sprintf("t-%d-%d", time.Now().UnixNano(), i), UserID: e.userID,
				Symbol: "TCS", Side: model.SideBuy, Quantity: 1, Price: decimal.NewFromInt(1),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *env) points(t *testing.T) int64 {
	u, err := e.store.GetUser(e.ctx, e.userID)
	require.NoError(t, err)
	return u.TotalPoints
}

func (e *env) row(t *testing.T, challengeID int64) *model.ChallengeProgress {
	rows, err := e.store.ListChallengeProgress(e.ctx, e.userID)
	require.NoError(t, err)
	for i := range rows {
		if rows[i].ChallengeID == challengeID {
			return &rows[i]
		}
	}
	return nil
}

func TestCompute(t *testing.T) {
	start := decimal.NewFromInt(100000)
	ch := func(kind model.ChallengeKind, target int64) model.Challenge {
		return model.Challenge{Kind: kind, Target: target}
	}
	tests := []struct {
		name  string
		ch    model.Challenge
		act   model.Activity
		value string
		want  int
	}{
		{"first trade none", ch(model.KindFirstTrade, 1), model.Activity{}, "100000", 0},
		{"first trade done", ch(model.KindFirstTrade, 1), model.Activity{TransactionCount: 3}, "100000", 100},
		{"builder partial", ch(model.KindPortfolioBuilder, 5), model.Activity{HoldingCount: 2}, "100000", 40},
		{"builder capped", ch(model.KindPortfolioBuilder, 5), model.Activity{HoldingCount: 9}, "100000", 100},
		{"consistency floor", ch(model.KindConsistency, 3), model.Activity{TransactionCount: 1}, "100000", 33},
		{"knowledge", ch(model.KindKnowledge, 5), model.Activity{CompletedLessons: 4}, "100000", 80},
		{"quiz", ch(model.KindQuiz, 3), model.Activity{PassedQuizzes: 2}, "100000", 66},
		{"profit loss clamps to zero", ch(model.KindProfit, 100), model.Activity{}, "90000", 0},
		{"profit growth", ch(model.KindProfit, 100), model.Activity{}, "112500", 12},
		{"profit capped", ch(model.KindProfit, 100), model.Activity{}, "250000", 100},
		{"unknown kind", ch("other", 1), model.Activity{TransactionCount: 10}, "100000", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := progress.Compute(tt.ch, tt.act, decimal.RequireFromString(tt.value), start)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecompute_NothingToDoCreatesNoRows(t *testing.T) {
	e := newEnv(t)
	done, err := e.engine.Recompute(e.ctx, e.userID)
	require.NoError(t, err)
	assert.Empty(t, done)

	rows, err := e.store.ListChallengeProgress(e.ctx, e.userID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecompute_AwardsOnceAndIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 1)

	done, err := e.engine.Recompute(e.ctx, e.userID)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, model.KindFirstTrade, done[0].Challenge.Kind)
	assert.Equal(t, int64(50), e.points(t))

	first := e.row(t, 1)
	require.NotNil(t, first)
	assert.Equal(t, model.StatusCompleted, first.Status)
	require.NotNil(t, first.CompletedAt)

	// Consistency auto-started at 10%.
	cons := e.row(t, 3)
	require.NotNil(t, cons)
	assert.Equal(t, model.StatusInProgress, cons.Status)
	assert.Equal(t, 10, cons.Progress)

	before, _ := e.store.ListChallengeProgress(e.ctx, e.userID)
	done, err = e.engine.Recompute(e.ctx, e.userID)
	require.NoError(t, err)
	assert.Empty(t, done)
	after, _ := e.store.ListChallengeProgress(e.ctx, e.userID)
	assert.Equal(t, before, after)
	assert.Equal(t, int64(50), e.points(t))
}

func TestRecompute_KindFilter(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 1)

	done, err := e.engine.Recompute(e.ctx, e.userID, model.KindKnowledge)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.Nil(t, e.row(t, 1), "first trade is outside the filter")
}

func TestRecompute_ConcurrentAwardsExactlyOnce(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	completions := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := e.engine.Recompute(e.ctx, e.userID, progress.TradeKinds...)
			assert.NoError(t, err)
			mu.Lock()
			completions += len(done)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// First trade (50) and consistent investor (150).
	assert.Equal(t, 2, completions)
	assert.Equal(t, int64(200), e.points(t))
}

func TestRecompute_ProgressNeverDecreases(t *testing.T) {
	e := newEnv(t)
	e.seed(t, func(tx store.Tx) error {
		for _, sym := range []string{"TCS", "INFY", "SBIN"} {
			if err := tx.UpsertHolding(e.ctx, &model.Holding{UserID: e.userID, Symbol: sym, Quantity: 1, AvgPrice: decimal.NewFromInt(1)}); err != nil {
				return err
			}
		}
		return nil
	})
	_, err := e.engine.Recompute(e.ctx, e.userID, model.KindPortfolioBuilder)
	require.NoError(t, err)
	assert.Equal(t, 60, e.row(t, 2).Progress)

	e.seed(t, func(tx store.Tx) error { return tx.DeleteHolding(e.ctx, e.userID, "TCS") })
	_, err = e.engine.Recompute(e.ctx, e.userID, model.KindPortfolioBuilder)
	require.NoError(t, err)
	assert.Equal(t, 60, e.row(t, 2).Progress)

	views, err := e.engine.List(e.ctx, e.userID)
	require.NoError(t, err)
	assert.Equal(t, 60, views[1].Progress)
}

func TestStart_IsIdempotent(t *testing.T) {
	e := newEnv(t)

	v, err := e.engine.Start(e.ctx, e.userID, 4)
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusInProgress), v.Status)
	assert.Equal(t, 0, v.Progress)
	require.NotNil(t, v.StartedAt)

	again, err := e.engine.Start(e.ctx, e.userID, 4)
	require.NoError(t, err)
	assert.Equal(t, *v.StartedAt, *again.StartedAt)
}

func TestStart_CompletesImmediatelyWhenAlreadyMet(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 1)

	v, err := e.engine.Start(e.ctx, e.userID, 1)
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusCompleted), v.Status)
	assert.Equal(t, int64(50), e.points(t))
}

func TestStart_UnknownChallenge(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Start(e.ctx, e.userID, 99)
	require.ErrorIs(t, err, progress.ErrChallengeNotFound)
}

func TestStart_UnknownUser(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Start(e.ctx, "ghost", 1)
	require.ErrorIs(t, err, progress.ErrUserNotFound)
}

func TestUpdate_AlreadyCompleted(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 1)

	v, err := e.engine.Update(e.ctx, e.userID, 1)
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusCompleted), v.Status)

	_, err = e.engine.Update(e.ctx, e.userID, 1)
	require.ErrorIs(t, err, progress.ErrChallengeAlreadyCompleted)
	assert.Equal(t, int64(50), e.points(t))
}

func TestList_MergesCatalogAndStoredRows(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 2)
	_, err := e.engine.Start(e.ctx, e.userID, 3)
	require.NoError(t, err)

	views, err := e.engine.List(e.ctx, e.userID)
	require.NoError(t, err)
	require.Len(t, views, 6)

	byID := map[int64]progress.View{}
	for _, v := range views {
		byID[v.ID] = v
	}
	// Not started, but computed progress is shown.
	assert.Equal(t, progress.StatusNotStarted, byID[1].Status)
	assert.Equal(t, 100, byID[1].Progress)
	assert.Equal(t, string(model.StatusInProgress), byID[3].Status)
	assert.Equal(t, 20, byID[3].Progress)
	assert.Equal(t, progress.StatusNotStarted, byID[6].Status)
}

func TestOnComplete_FiresAfterCommit(t *testing.T) {
	e := newEnv(t)
	e.addTrades(t, 1)

	var got []progress.Completion
	e.engine.OnComplete(func(_ context.Context, c progress.Completion) { got = append(got, c) })

	require.NoError(t, e.engine.AfterTrade(e.ctx, e.userID))
	require.Len(t, got, 1)
	assert.Equal(t, int64(50), got[0].Points)
}
