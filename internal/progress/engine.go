// Package progress derives challenge completion from ledger, lesson and
// quiz state and awards each challenge's points exactly once.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/metrics"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/store"
)

var (
	ErrChallengeNotFound         = errors.New("progress: challenge not found")
	ErrChallengeAlreadyCompleted = errors.New("progress: challenge already completed")
	ErrUserNotFound              = errors.New("progress: user not found")
)

// TradeKinds are the challenge kinds a trade can move.
var TradeKinds = []model.ChallengeKind{
	model.KindFirstTrade,
	model.KindPortfolioBuilder,
	model.KindConsistency,
	model.KindProfit,
}

// StatusNotStarted is reported for catalog challenges without a stored row.
const StatusNotStarted = "NOT_STARTED"

// Completion is emitted once per IN_PROGRESS to COMPLETED transition.
type Completion struct {
	UserID      string          `json:"user_id"`
	Challenge   model.Challenge `json:"challenge"`
	Points      int64           `json:"points"`
	CompletedAt time.Time       `json:"completed_at"`
}

// View is a catalog challenge merged with the user's stored and computed
// progress.
type View struct {
	model.Challenge
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	StartingBalance decimal.Decimal
	Logger          *slog.Logger
	Now             func() time.Time
}

// Engine is the progress engine.
type Engine struct {
	store           store.Store
	catalog         *catalog.Catalog
	log             *slog.Logger
	now             func() time.Time
	startingBalance decimal.Decimal
	onComplete      []func(context.Context, Completion)
}

// NewEngine creates an engine over st and the challenge catalog.
func NewEngine(st store.Store, cat *catalog.Catalog, opts Options) *Engine {
	e := &Engine{
		store:           st,
		catalog:         cat,
		log:             opts.Logger,
		now:             opts.Now,
		startingBalance: opts.StartingBalance,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.startingBalance.IsZero() {
		e.startingBalance = model.StartingBalance
	}
	return e
}

// OnComplete registers fn to run after a completion has committed.
func (e *Engine) OnComplete(fn func(context.Context, Completion)) {
	e.onComplete = append(e.onComplete, fn)
}

// AfterTrade recomputes the trade-driven kinds. It matches the ledger's
// after-trade hook signature.
func (e *Engine) AfterTrade(ctx context.Context, userID string) error {
	_, err := e.Recompute(ctx, userID, TradeKinds...)
	return err
}

// Recompute derives progress for every challenge of the given kinds (all
// when none are given). Rows are created once progress is above zero and
// never move backwards; a COMPLETED row is left untouched. Calling it again
// without a state change is a no-op.
func (e *Engine) Recompute(ctx context.Context, userID string, kinds ...model.ChallengeKind) ([]Completion, error) {
	challenges := e.catalog.ChallengesOfKind(kinds...)
	if len(challenges) == 0 {
		return nil, nil
	}

	var done []Completion
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		user, err := e.lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		done, err = e.apply(ctx, tx, user, challenges, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, done)
	return done, nil
}

// Start creates an IN_PROGRESS row for the challenge and brings it up to
// date. Starting again returns the existing row.
func (e *Engine) Start(ctx context.Context, userID string, challengeID int64) (*View, error) {
	ch, ok := e.catalog.Challenge(challengeID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChallengeNotFound, challengeID)
	}

	var done []Completion
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		user, err := e.lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = tx.GetChallengeProgress(ctx, userID, challengeID)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		done, err = e.apply(ctx, tx, user, []model.Challenge{ch}, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, done)
	return e.Get(ctx, userID, challengeID)
}

// Update recomputes a single challenge on request. It fails with
// ErrChallengeAlreadyCompleted once the challenge is done.
func (e *Engine) Update(ctx context.Context, userID string, challengeID int64) (*View, error) {
	ch, ok := e.catalog.Challenge(challengeID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChallengeNotFound, challengeID)
	}

	var done []Completion
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		user, err := e.lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		row, err := tx.GetChallengeProgress(ctx, userID, challengeID)
		if err == nil && row.Status == model.StatusCompleted {
			return fmt.Errorf("%w: %s", ErrChallengeAlreadyCompleted, ch.Title)
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		done, err = e.apply(ctx, tx, user, []model.Challenge{ch}, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, done)
	return e.Get(ctx, userID, challengeID)
}

// List returns every catalog challenge merged with the user's progress.
func (e *Engine) List(ctx context.Context, userID string) ([]View, error) {
	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	act, err := e.store.GetActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListChallengeProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored := make(map[int64]model.ChallengeProgress, len(rows))
	for _, r := range rows {
		stored[r.ChallengeID] = r
	}

	challenges := e.catalog.Challenges()
	views := make([]View, 0, len(challenges))
	for _, ch := range challenges {
		v := View{Challenge: ch, Status: StatusNotStarted}
		computed := Compute(ch, act, user.PortfolioValue, e.startingBalance)
		v.Progress = computed
		if r, ok := stored[ch.ID]; ok {
			v.Status = string(r.Status)
			started := r.StartedAt
			v.StartedAt = &started
			v.CompletedAt = r.CompletedAt
			if r.Status == model.StatusCompleted || r.Progress > computed {
				v.Progress = r.Progress
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// Get returns the merged view of one challenge.
func (e *Engine) Get(ctx context.Context, userID string, challengeID int64) (*View, error) {
	if _, ok := e.catalog.Challenge(challengeID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrChallengeNotFound, challengeID)
	}
	views, err := e.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		if views[i].ID == challengeID {
			return &views[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrChallengeNotFound, challengeID)
}

func (e *Engine) lockUser(ctx context.Context, tx store.Tx, userID string) (*model.User, error) {
	user, err := tx.LockUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return user, err
}

// apply runs inside a transaction that already holds the user lock, so the
// COMPLETED check and the point award cannot race.
func (e *Engine) apply(ctx context.Context, tx store.Tx, user *model.User, challenges []model.Challenge, create bool) ([]Completion, error) {
	act, err := tx.GetActivity(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	var done []Completion
	for _, ch := range challenges {
		pct := Compute(ch, act, user.PortfolioValue, e.startingBalance)

		row, err := tx.GetChallengeProgress(ctx, user.ID, ch.ID)
		isNew := errors.Is(err, store.ErrNotFound)
		switch {
		case isNew:
			if pct == 0 && !create {
				continue
			}
			row = &model.ChallengeProgress{
				UserID:      user.ID,
				ChallengeID: ch.ID,
				Status:      model.StatusInProgress,
				StartedAt:   now,
			}
		case err != nil:
			return nil, err
		case row.Status == model.StatusCompleted:
			continue
		}

		changed := isNew
		if pct > row.Progress {
			row.Progress = pct
			changed = true
		}
		if row.Progress >= 100 {
			row.Progress = 100
			row.Status = model.StatusCompleted
			row.CompletedAt = &now
			if err := tx.AddPoints(ctx, user.ID, ch.RewardPoints); err != nil {
				return nil, fmt.Errorf("award points: %w", err)
			}
			done = append(done, Completion{UserID: user.ID, Challenge: ch, Points: ch.RewardPoints, CompletedAt: now})
			changed = true
		}
		if !changed {
			continue
		}
		if err := tx.SaveChallengeProgress(ctx, row); err != nil {
			return nil, fmt.Errorf("save progress: %w", err)
		}
	}
	return done, nil
}

func (e *Engine) publish(ctx context.Context, done []Completion) {
	for _, c := range done {
		metrics.ChallengesCompleted.WithLabelValues(string(c.Challenge.Kind)).Inc()
		metrics.PointsAwarded.WithLabelValues("challenge").Add(float64(c.Points))
		e.log.Info("challenge completed",
			"user", c.UserID,
			"challenge", c.Challenge.ID,
			"kind", c.Challenge.Kind,
			"points", c.Points,
		)
		for _, fn := range e.onComplete {
			fn(ctx, c)
		}
	}
}
