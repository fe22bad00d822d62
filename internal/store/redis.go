package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsim/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Keys for every user touched inside InTx are dropped after the commit.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.set(ctx, userKey(u.ID), u)
	return nil
}

func (s *CachedStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tracked := &trackingTx{}
	err := s.primary.InTx(ctx, func(tx Tx) error {
		tracked.Tx = tx
		return fn(tracked)
	})
	if err != nil {
		return err
	}
	for _, uid := range tracked.users() {
		s.invalidate(ctx, uid)
	}
	return nil
}

// trackingTx records which users a transaction locked.
type trackingTx struct {
	Tx
	mu      sync.Mutex
	touched []string
}

func (t *trackingTx) LockUser(ctx context.Context, id string) (*model.User, error) {
	t.mu.Lock()
	t.touched = append(t.touched, id)
	t.mu.Unlock()
	return t.Tx.LockUser(ctx, id)
}

func (t *trackingTx) users() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.touched
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if s.get(ctx, userKey(id), &u) {
		return &u, nil
	}

	// Cache miss: read from primary.
	got, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, userKey(id), got)
	return got, nil
}

func (s *CachedStore) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	var holdings []model.Holding
	if s.get(ctx, holdingsKey(userID), &holdings) {
		return holdings, nil
	}

	holdings, err := s.primary.ListHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.set(ctx, holdingsKey(userID), holdings)
	return holdings, nil
}

func (s *CachedStore) ListChallengeProgress(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	var progress []model.ChallengeProgress
	if s.get(ctx, progressKeyFor(userID), &progress) {
		return progress, nil
	}

	progress, err := s.primary.ListChallengeProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.set(ctx, progressKeyFor(userID), progress)
	return progress, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.primary.ListUserIDs(ctx)
}

func (s *CachedStore) TopUsers(ctx context.Context, by RankBy, limit int) ([]model.User, error) {
	return s.primary.TopUsers(ctx, by, limit)
}

func (s *CachedStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, userID, limit)
}

func (s *CachedStore) GetActivity(ctx context.Context, userID string) (model.Activity, error) {
	return s.primary.GetActivity(ctx, userID)
}

func (s *CachedStore) ListQuizAttempts(ctx context.Context, userID string) ([]model.QuizAttempt, error) {
	return s.primary.ListQuizAttempts(ctx, userID)
}

func (s *CachedStore) ListCertificates(ctx context.Context, userID string) ([]model.Certificate, error) {
	return s.primary.ListCertificates(ctx, userID)
}

func (s *CachedStore) ListSIPSimulations(ctx context.Context, userID string) ([]model.SIPSimulation, error) {
	return s.primary.ListSIPSimulations(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) get(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	s.rdb.Del(ctx, userKey(userID), holdingsKey(userID), progressKeyFor(userID))
}

func userKey(id string) string         { return fmt.Sprintf("user:%s", id) }
func holdingsKey(uid string) string    { return fmt.Sprintf("holdings:%s", uid) }
func progressKeyFor(uid string) string { return fmt.Sprintf("progress:%s", uid) }
