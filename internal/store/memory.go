package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/papertrade/engine/internal/model"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*model.Account
	accountOrder []string // creation order for ListAccounts
	orders       []model.Order
	positions    map[string]*model.Position
	transactions []model.Transaction
	quotes       map[string][]model.Quote
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		positions: make(map[string]*model.Position),
		quotes:    make(map[string][]model.Quote),
	}
}

func (s *MemoryStore) EnsureAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[userID]; ok {
		cp := *a
		return &cp, nil
	}

	now := time.Now().UTC()
	a := &model.Account{
		UserID:      userID,
		CashBalance: model.StartingCash,
		BuyingPower: model.StartingCash,
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.accounts[userID] = a
	s.accountOrder = append(s.accountOrder, userID)

	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accountOrder))
	for _, uid := range s.accountOrder {
		accounts = append(accounts, *s.accounts[uid])
	}
	return accounts, nil
}

func (s *MemoryStore) GetOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	// Newest first.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, ticker string, pt model.PositionType) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.UserID == userID && p.Ticker == ticker && p.PositionType == pt {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPositionByID(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OpenedAt.Before(result[j].OpenedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListAllPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		result = append(result, *p)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OpenedAt.Before(result[j].OpenedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListPositionsOpenedBefore(_ context.Context, cutoff time.Time) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.OpenedAt.Before(cutoff) {
			result = append(result, *p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OpenedAt.Before(result[j].OpenedAt)
	})
	return result, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ExecutedAt.After(result[j].ExecutedAt)
	})
	return result, nil
}

func (s *MemoryStore) SaveQuote(_ context.Context, q *model.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes[q.Ticker] = append(s.quotes[q.Ticker], *q)
	return nil
}

func (s *MemoryStore) LatestQuote(_ context.Context, ticker string) (*model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.quotes[ticker]
	if len(history) == 0 {
		return nil, ErrNotFound
	}

	latest := history[0]
	for _, q := range history[1:] {
		if q.Ts.After(latest.Ts) {
			latest = q
		}
	}
	return &latest, nil
}

// ApplyExecution applies the whole batch under one lock acquisition, so a
// concurrent reader never observes a partially applied execution.
func (s *MemoryStore) ApplyExecution(_ context.Context, batch *model.ExecutionBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := batch.Account; a != nil {
		cp := *a
		s.accounts[a.UserID] = &cp
	}
	for _, o := range batch.Orders {
		s.orders = append(s.orders, *o)
	}
	for _, p := range batch.Positions {
		cp := *p
		s.positions[p.ID] = &cp
	}
	for _, tx := range batch.Transactions {
		s.transactions = append(s.transactions, *tx)
	}
	if q := batch.Quote; q != nil {
		s.quotes[q.Ticker] = append(s.quotes[q.Ticker], *q)
	}
	return nil
}

func (s *MemoryStore) ApplyClose(_ context.Context, batch *model.CloseBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := batch.Account; a != nil {
		cp := *a
		s.accounts[a.UserID] = &cp
	}
	if batch.DeletePosition {
		delete(s.positions, batch.PositionID)
	} else if p := batch.Position; p != nil {
		cp := *p
		s.positions[p.ID] = &cp
	}
	if tx := batch.Transaction; tx != nil {
		s.transactions = append(s.transactions, *tx)
	}
	return nil
}
