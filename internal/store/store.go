// Package store defines the persistence interface for the paper trading
// ledger. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/papertrade/engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the ledger persistence interface. Mutations produced by a single
// execute or close call are applied through the batch methods, which commit
// all rows together or none at all.
type Store interface {
	// --- Accounts ---

	// EnsureAccount returns the account for userID, creating it with the
	// starting balance on first interaction.
	EnsureAccount(ctx context.Context, userID string) (*model.Account, error)

	// GetAccount retrieves an account; ErrNotFound if it was never created.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// ListAccounts returns all accounts in creation order.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// --- Orders ---

	// GetOrdersByUser returns a user's orders, newest first.
	GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	// --- Positions ---

	// GetPosition retrieves the open position for (user, ticker, type);
	// ErrNotFound if none exists.
	GetPosition(ctx context.Context, userID, ticker string, pt model.PositionType) (*model.Position, error)

	// GetPositionByID retrieves a position by its ID.
	GetPositionByID(ctx context.Context, id string) (*model.Position, error)

	// ListPositionsByUser returns all open positions for a user.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// ListAllPositions returns every open position across all users.
	ListAllPositions(ctx context.Context) ([]model.Position, error)

	// ListPositionsOpenedBefore returns positions opened strictly before
	// the cutoff, for the performance evaluator.
	ListPositionsOpenedBefore(ctx context.Context, cutoff time.Time) ([]model.Position, error)

	// SavePosition upserts a single position row. Used by the portfolio
	// read path to persist refreshed valuations.
	SavePosition(ctx context.Context, p *model.Position) error

	// --- Transactions ---

	// GetTransactionsByUser returns a user's transactions, newest first.
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// --- Price cache ---

	// SaveQuote appends a price observation. History is retained.
	SaveQuote(ctx context.Context, q *model.Quote) error

	// LatestQuote returns the most recent cached price for a ticker;
	// ErrNotFound if the ticker has never been quoted.
	LatestQuote(ctx context.Context, ticker string) (*model.Quote, error)

	// --- Atomic mutations ---

	// ApplyExecution commits every row written by one execute_trade call.
	ApplyExecution(ctx context.Context, batch *model.ExecutionBatch) error

	// ApplyClose commits every row written by one close_position call.
	ApplyClose(ctx context.Context, batch *model.CloseBatch) error
}
