// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// RankBy selects the ordering of TopUsers.
type RankBy string

const (
	RankByPoints    RankBy = "points"
	RankByPortfolio RankBy = "portfolio"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Every multi-row mutation goes
// through InTx.
type Store interface {
	// --- User operations ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, user *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListUserIDs returns every user ID, oldest first.
	ListUserIDs(ctx context.Context) ([]string, error)

	// TopUsers returns up to limit users ordered by points or portfolio value.
	TopUsers(ctx context.Context, by RankBy, limit int) ([]model.User, error)

	// --- Portfolio reads ---

	// ListHoldings returns the user's holdings ordered by symbol.
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// ListTransactions returns the newest limit transactions for a user.
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)

	// --- Progress and academy reads ---

	ListChallengeProgress(ctx context.Context, userID string) ([]model.ChallengeProgress, error)
	GetActivity(ctx context.Context, userID string) (model.Activity, error)
	ListQuizAttempts(ctx context.Context, userID string) ([]model.QuizAttempt, error)
	ListCertificates(ctx context.Context, userID string) ([]model.Certificate, error)

	// ListSIPSimulations returns the user's saved SIP projections, newest first.
	ListSIPSimulations(ctx context.Context, userID string) ([]model.SIPSimulation, error)

	// --- Atomic units ---

	// InTx runs fn inside one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside InTx. Callers lock the user
// row first, then any holding rows.
type Tx interface {
	// LockUser loads the user row and holds a write lock on it until the
	// transaction ends.
	LockUser(ctx context.Context, id string) (*model.User, error)

	// SetBalances writes the user's cash balance and cached portfolio value.
	SetBalances(ctx context.Context, userID string, cash, portfolioValue decimal.Decimal) error

	// AddPoints increments the user's points.
	AddPoints(ctx context.Context, userID string, points int64) error

	// GetHolding loads and locks one holding. Returns ErrNotFound when absent.
	GetHolding(ctx context.Context, userID, symbol string) (*model.Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)
	UpsertHolding(ctx context.Context, h *model.Holding) error
	DeleteHolding(ctx context.Context, userID, symbol string) error

	// InsertTransaction appends to the log. Returns ErrConflict when the
	// request ID was already used by this user.
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	FindTransactionByRequestID(ctx context.Context, userID, requestID string) (*model.Transaction, error)

	GetActivity(ctx context.Context, userID string) (model.Activity, error)

	// GetChallengeProgress loads and locks a progress row. Returns
	// ErrNotFound when the user has not started the challenge.
	GetChallengeProgress(ctx context.Context, userID string, challengeID int64) (*model.ChallengeProgress, error)
	SaveChallengeProgress(ctx context.Context, p *model.ChallengeProgress) error

	// InsertLessonCompletion records a completed lesson and reports whether
	// it was new.
	InsertLessonCompletion(ctx context.Context, userID string, lessonID int64, at time.Time) (bool, error)

	InsertQuizAttempt(ctx context.Context, a *model.QuizAttempt) error
	GetCertificateByQuiz(ctx context.Context, userID string, quizID int64) (*model.Certificate, error)
	InsertCertificate(ctx context.Context, c *model.Certificate) error

	InsertSIPSimulation(ctx context.Context, sim *model.SIPSimulation) error
}
