package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so read queries
// are shared between the store and its transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, COALESCE(email, ''), cash_balance::TEXT, total_points, portfolio_value::TEXT, created_at`

const txColumns = `id, user_id, symbol, side, quantity, price::TEXT, COALESCE(request_id, ''), executed_at,
	cash_after::TEXT, portfolio_value_after::TEXT`

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, cash_balance, total_points, portfolio_value, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4::NUMERIC, $5, $6::NUMERIC, $7)`,
		u.ID, u.Name, u.Email, u.CashBalance.String(), u.TotalPoints, u.PortfolioValue.String(), u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", u.ID, ErrConflict)
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) TopUsers(ctx context.Context, by RankBy, limit int) ([]model.User, error) {
	order := `total_points DESC`
	if by == RankByPortfolio {
		order = `portfolio_value DESC`
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY `+order+`, created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	return listHoldings(ctx, s.pool, userID)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+`
		 FROM transactions WHERE user_id = $1
		 ORDER BY executed_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) ListChallengeProgress(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, challenge_id, status, progress, started_at, completed_at
		 FROM challenge_progress WHERE user_id = $1 ORDER BY challenge_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ChallengeProgress
	for rows.Next() {
		var p model.ChallengeProgress
		if err := rows.Scan(&p.UserID, &p.ChallengeID, &p.Status, &p.Progress, &p.StartedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetActivity(ctx context.Context, userID string) (model.Activity, error) {
	return getActivity(ctx, s.pool, userID)
}

func (s *PostgresStore) ListQuizAttempts(ctx context.Context, userID string) ([]model.QuizAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, quiz_id, score, total, passed, attempted_at
		 FROM quiz_attempts WHERE user_id = $1 ORDER BY attempted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.QuizAttempt
	for rows.Next() {
		var a model.QuizAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.Score, &a.Total, &a.Passed, &a.AttemptedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListCertificates(ctx context.Context, userID string) ([]model.Certificate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT certificate_id, user_id, quiz_id, attempt_id, name, title, issued_at
		 FROM certificates WHERE user_id = $1 ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListSIPSimulations(ctx context.Context, userID string) ([]model.SIPSimulation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, fund_name, monthly_amount::TEXT, duration_months, expected_return::TEXT,
			future_value::TEXT, total_invested::TEXT, profit::TEXT, series, created_at
		 FROM sip_simulations WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []model.SIPSimulation
	for rows.Next() {
		var sim model.SIPSimulation
		var amount, ret, fv, invested, profit string
		var series []byte
		if err := rows.Scan(&sim.ID, &sim.UserID, &sim.FundName, &amount, &sim.DurationMonths, &ret,
			&fv, &invested, &profit, &series, &sim.CreatedAt); err != nil {
			return nil, err
		}
		sim.MonthlyAmount, _ = decimal.NewFromString(amount)
		sim.ExpectedReturn, _ = decimal.NewFromString(ret)
		sim.FutureValue, _ = decimal.NewFromString(fv)
		sim.TotalInvested, _ = decimal.NewFromString(invested)
		sim.Profit, _ = decimal.NewFromString(profit)
		if err := json.Unmarshal(series, &sim.Series); err != nil {
			return nil, fmt.Errorf("sip %s series: %w", sim.ID, err)
		}
		sims = append(sims, sim)
	}
	return sims, rows.Err()
}

// InTx runs fn at READ COMMITTED. Isolation between concurrent units for
// the same user comes from the FOR UPDATE lock taken in LockUser.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Transaction operations ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockUser(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, t.tx, id, true)
}

func (t *pgTx) SetBalances(ctx context.Context, userID string, cash, portfolioValue decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE users SET cash_balance = $2::NUMERIC, portfolio_value = $3::NUMERIC WHERE id = $1`,
		userID, cash.String(), portfolioValue.String())
	return err
}

func (t *pgTx) AddPoints(ctx context.Context, userID string, points int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE users SET total_points = total_points + $2 WHERE id = $1`, userID, points)
	return err
}

func (t *pgTx) GetHolding(ctx context.Context, userID, symbol string) (*model.Holding, error) {
	var h model.Holding
	var avg string
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, symbol, quantity, avg_price::TEXT, updated_at
		 FROM holdings WHERE user_id = $1 AND symbol = $2 FOR UPDATE`, userID, symbol).
		Scan(&h.UserID, &h.Symbol, &h.Quantity, &avg, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get holding %s/%s: %w", userID, symbol, err)
	}
	h.AvgPrice, _ = decimal.NewFromString(avg)
	return &h, nil
}

func (t *pgTx) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	return listHoldings(ctx, t.tx, userID)
}

func (t *pgTx) UpsertHolding(ctx context.Context, h *model.Holding) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO holdings (user_id, symbol, quantity, avg_price, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (user_id, symbol)
		 DO UPDATE SET quantity = EXCLUDED.quantity, avg_price = EXCLUDED.avg_price, updated_at = EXCLUDED.updated_at`,
		h.UserID, h.Symbol, h.Quantity, h.AvgPrice.String(), h.UpdatedAt)
	return err
}

func (t *pgTx) DeleteHolding(ctx context.Context, userID, symbol string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, symbol, side, quantity, price, request_id, executed_at,
			cash_after, portfolio_value_after)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, NULLIF($7, ''), $8, $9::NUMERIC, $10::NUMERIC)`,
		tr.ID, tr.UserID, tr.Symbol, tr.Side, tr.Quantity, tr.Price.String(), tr.RequestID, tr.ExecutedAt,
		tr.CashAfter.String(), tr.PortfolioValueAfter.String())
	if isUniqueViolation(err) {
		return fmt.Errorf("request %s: %w", tr.RequestID, ErrConflict)
	}
	return err
}

func (t *pgTx) FindTransactionByRequestID(ctx context.Context, userID, requestID string) (*model.Transaction, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+txColumns+`
		 FROM transactions WHERE user_id = $1 AND request_id = $2`, userID, requestID)
	tr, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	return tr, err
}

func (t *pgTx) GetActivity(ctx context.Context, userID string) (model.Activity, error) {
	return getActivity(ctx, t.tx, userID)
}

func (t *pgTx) GetChallengeProgress(ctx context.Context, userID string, challengeID int64) (*model.ChallengeProgress, error) {
	var p model.ChallengeProgress
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, challenge_id, status, progress, started_at, completed_at
		 FROM challenge_progress WHERE user_id = $1 AND challenge_id = $2 FOR UPDATE`, userID, challengeID).
		Scan(&p.UserID, &p.ChallengeID, &p.Status, &p.Progress, &p.StartedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("progress %s/%d: %w", userID, challengeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s/%d: %w", userID, challengeID, err)
	}
	return &p, nil
}

func (t *pgTx) SaveChallengeProgress(ctx context.Context, p *model.ChallengeProgress) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO challenge_progress (user_id, challenge_id, status, progress, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, challenge_id)
		 DO UPDATE SET status = EXCLUDED.status, progress = EXCLUDED.progress, completed_at = EXCLUDED.completed_at`,
		p.UserID, p.ChallengeID, p.Status, p.Progress, p.StartedAt, p.CompletedAt)
	return err
}

func (t *pgTx) InsertLessonCompletion(ctx context.Context, userID string, lessonID int64, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO lesson_completions (user_id, lesson_id, completed_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, userID, lessonID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) InsertQuizAttempt(ctx context.Context, a *model.QuizAttempt) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO quiz_attempts (id, user_id, quiz_id, score, total, passed, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.QuizID, a.Score, a.Total, a.Passed, a.AttemptedAt)
	return err
}

func (t *pgTx) GetCertificateByQuiz(ctx context.Context, userID string, quizID int64) (*model.Certificate, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT certificate_id, user_id, quiz_id, attempt_id, name, title, issued_at
		 FROM certificates WHERE user_id = $1 AND quiz_id = $2`, userID, quizID)
	c, err := scanCertificate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("certificate %s/%d: %w", userID, quizID, ErrNotFound)
	}
	return c, err
}

func (t *pgTx) InsertCertificate(ctx context.Context, c *model.Certificate) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO certificates (certificate_id, user_id, quiz_id, attempt_id, name, title, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.CertificateID, c.UserID, c.QuizID, c.AttemptID, c.Name, c.Title, c.IssuedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("certificate %s: %w", c.CertificateID, ErrConflict)
	}
	return err
}

// --- Shared queries ---

func getUser(ctx context.Context, q querier, id string, lock bool) (*model.User, error) {
	sql := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	u, err := scanUser(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func listHoldings(ctx context.Context, q querier, userID string) ([]model.Holding, error) {
	rows, err := q.Query(ctx,
		`SELECT user_id, symbol, quantity, avg_price::TEXT, updated_at
		 FROM holdings WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var avg string
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &avg, &h.UpdatedAt); err != nil {
			return nil, err
		}
		h.AvgPrice, _ = decimal.NewFromString(avg)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func getActivity(ctx context.Context, q querier, userID string) (model.Activity, error) {
	var a model.Activity
	err := q.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM transactions WHERE user_id = $1),
			(SELECT COUNT(*) FROM holdings WHERE user_id = $1),
			(SELECT COUNT(*) FROM lesson_completions WHERE user_id = $1),
			(SELECT COUNT(*) FROM quiz_attempts WHERE user_id = $1 AND passed)`, userID).
		Scan(&a.TransactionCount, &a.HoldingCount, &a.CompletedLessons, &a.PassedQuizzes)
	if err != nil {
		return a, fmt.Errorf("activity %s: %w", userID, err)
	}
	return a, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var cash, pv string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &cash, &u.TotalPoints, &pv, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CashBalance, _ = decimal.NewFromString(cash)
	u.PortfolioValue, _ = decimal.NewFromString(pv)
	return &u, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	var price, cash, value string
	if err := row.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &price, &t.RequestID, &t.ExecutedAt,
		&cash, &value); err != nil {
		return nil, err
	}
	t.Price, _ = decimal.NewFromString(price)
	t.CashAfter, _ = decimal.NewFromString(cash)
	t.PortfolioValueAfter, _ = decimal.NewFromString(value)
	return &t, nil
}

func scanCertificate(row pgx.Row) (*model.Certificate, error) {
	var c model.Certificate
	if err := row.Scan(&c.CertificateID, &c.UserID, &c.QuizID, &c.AttemptID, &c.Name, &c.Title, &c.IssuedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (t *pgTx) InsertSIPSimulation(ctx context.Context, sim *model.SIPSimulation) error {
	series, err := json.Marshal(sim.Series)
	if err != nil {
		return fmt.Errorf("encode sip series: %w", err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO sip_simulations (id, user_id, fund_name, monthly_amount, duration_months, expected_return,
			future_value, total_invested, profit, series, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		sim.ID, sim.UserID, sim.FundName, sim.MonthlyAmount.String(), sim.DurationMonths, sim.ExpectedReturn.String(),
		sim.FutureValue.String(), sim.TotalInvested.String(), sim.Profit.String(), series, sim.CreatedAt)
	return err
}
