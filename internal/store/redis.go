package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/engine/internal/model"
)

// Compile-time interface check.
var _ Store = (*CachedStore)(nil)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot read paths: accounts, a user's positions, and latest
// quotes. Mutations go to the primary store and invalidate the affected
// keys; reads check Redis first and fall back to the primary.
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

// --- Read-through ---

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, accountKey(userID), a)
	return a, nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, positionsKey(userID), positions)
	return positions, nil
}

func (s *CachedStore) LatestQuote(ctx context.Context, ticker string) (*model.Quote, error) {
	data, err := s.rdb.Get(ctx, quoteKey(ticker)).Bytes()
	if err == nil {
		var q model.Quote
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	q, err := s.primary.LatestQuote(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, quoteKey(ticker), q)
	return q, nil
}

// --- Mutations (write to primary, invalidate) ---

func (s *CachedStore) EnsureAccount(ctx context.Context, userID string) (*model.Account, error) {
	a, err := s.primary.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, accountKey(userID), a)
	return a, nil
}

func (s *CachedStore) SavePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.SavePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.UserID))
	return nil
}

func (s *CachedStore) SaveQuote(ctx context.Context, q *model.Quote) error {
	if err := s.primary.SaveQuote(ctx, q); err != nil {
		return err
	}
	s.rdb.Del(ctx, quoteKey(q.Ticker))
	return nil
}

func (s *CachedStore) ApplyExecution(ctx context.Context, batch *model.ExecutionBatch) error {
	if err := s.primary.ApplyExecution(ctx, batch); err != nil {
		return err
	}
	if a := batch.Account; a != nil {
		s.rdb.Del(ctx, accountKey(a.UserID), positionsKey(a.UserID))
	}
	if q := batch.Quote; q != nil {
		s.rdb.Del(ctx, quoteKey(q.Ticker))
	}
	return nil
}

func (s *CachedStore) ApplyClose(ctx context.Context, batch *model.CloseBatch) error {
	if err := s.primary.ApplyClose(ctx, batch); err != nil {
		return err
	}
	if a := batch.Account; a != nil {
		s.rdb.Del(ctx, accountKey(a.UserID), positionsKey(a.UserID))
	}
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.primary.GetOrdersByUser(ctx, userID)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, ticker string, pt model.PositionType) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, ticker, pt)
}

func (s *CachedStore) GetPositionByID(ctx context.Context, id string) (*model.Position, error) {
	return s.primary.GetPositionByID(ctx, id)
}

func (s *CachedStore) ListAllPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListAllPositions(ctx)
}

func (s *CachedStore) ListPositionsOpenedBefore(ctx context.Context, cutoff time.Time) ([]model.Position, error) {
	return s.primary.ListPositionsOpenedBefore(ctx, cutoff)
}

func (s *CachedStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.GetTransactionsByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func accountKey(uid string) string   { return fmt.Sprintf("account:%s", uid) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
func quoteKey(ticker string) string  { return fmt.Sprintf("quote:%s", ticker) }
