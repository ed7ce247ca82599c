package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
)

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id      TEXT PRIMARY KEY,
			cash_balance NUMERIC NOT NULL,
			margin_used  NUMERIC NOT NULL DEFAULT 0,
			buying_power NUMERIC NOT NULL,
			total_pnl    NUMERIC NOT NULL DEFAULT 0,
			day_pnl      NUMERIC NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			ticker          TEXT NOT NULL,
			order_type      TEXT NOT NULL,
			position_type   TEXT NOT NULL,
			quantity        NUMERIC NOT NULL,
			price           NUMERIC NOT NULL,
			stop_price      NUMERIC NOT NULL DEFAULT 0,
			status          TEXT NOT NULL,
			strategy_id     TEXT NOT NULL DEFAULT '',
			belief          TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL,
			filled_at       TIMESTAMPTZ NOT NULL,
			filled_price    NUMERIC NOT NULL,
			filled_quantity NUMERIC NOT NULL,
			commission      NUMERIC NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			ticker         TEXT NOT NULL,
			position_type  TEXT NOT NULL,
			quantity       NUMERIC NOT NULL,
			avg_price      NUMERIC NOT NULL,
			current_price  NUMERIC NOT NULL,
			market_value   NUMERIC NOT NULL,
			unrealized_pnl NUMERIC NOT NULL,
			realized_pnl   NUMERIC NOT NULL DEFAULT 0,
			day_pnl        NUMERIC NOT NULL DEFAULT 0,
			strategy_id    TEXT NOT NULL DEFAULT '',
			belief         TEXT NOT NULL DEFAULT '',
			opened_at      TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, ticker, position_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_user ON positions (user_id)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			order_id         TEXT NOT NULL DEFAULT '',
			ticker           TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			quantity         NUMERIC NOT NULL,
			price            NUMERIC NOT NULL,
			amount           NUMERIC NOT NULL,
			commission       NUMERIC NOT NULL,
			net_amount       NUMERIC NOT NULL,
			executed_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, executed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS quotes (
			ticker TEXT NOT NULL,
			price  NUMERIC NOT NULL,
			bid    NUMERIC NOT NULL DEFAULT 0,
			ask    NUMERIC NOT NULL DEFAULT 0,
			volume BIGINT NOT NULL DEFAULT 0,
			ts     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (ticker, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_ticker_ts ON quotes (ticker, ts DESC)`,
	}

	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Accounts ---

func (s *PostgresStore) EnsureAccount(ctx context.Context, userID string) (*model.Account, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, cash_balance, margin_used, buying_power, total_pnl, day_pnl, created_at, last_updated)
		 VALUES ($1, $2::NUMERIC, 0, $2::NUMERIC, 0, 0, $3, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, model.StartingCash.String(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure account %s: %w", userID, err)
	}
	return s.GetAccount(ctx, userID)
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, cash_balance::TEXT, margin_used::TEXT, buying_power::TEXT,
		        total_pnl::TEXT, day_pnl::TEXT, created_at, last_updated
		 FROM accounts WHERE user_id = $1`, userID)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, cash_balance::TEXT, margin_used::TEXT, buying_power::TEXT,
		        total_pnl::TEXT, day_pnl::TEXT, created_at, last_updated
		 FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// --- Orders ---

func (s *PostgresStore) GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, ticker, order_type, position_type,
		        quantity::TEXT, price::TEXT, stop_price::TEXT, status, strategy_id, belief,
		        created_at, filled_at, filled_price::TEXT, filled_quantity::TEXT, commission::TEXT
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// --- Positions ---

const positionColumns = `id, user_id, ticker, position_type,
	quantity::TEXT, avg_price::TEXT, current_price::TEXT, market_value::TEXT,
	unrealized_pnl::TEXT, realized_pnl::TEXT, day_pnl::TEXT,
	strategy_id, belief, opened_at, updated_at`

func (s *PostgresStore) GetPosition(ctx context.Context, userID, ticker string, pt model.PositionType) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE user_id = $1 AND ticker = $2 AND position_type = $3`,
		userID, ticker, string(pt))

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get position %s/%s/%s: %w", userID, ticker, pt, err)
	}
	return p, nil
}

func (s *PostgresStore) GetPositionByID(ctx context.Context, id string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY opened_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *PostgresStore) ListAllPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions ORDER BY opened_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *PostgresStore) ListPositionsOpenedBefore(ctx context.Context, cutoff time.Time) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE opened_at < $1 ORDER BY opened_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *PostgresStore) SavePosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx, upsertPositionSQL, upsertPositionArgs(p)...)
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.ID, err)
	}
	return nil
}

// --- Transactions ---

func (s *PostgresStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, order_id, ticker, transaction_type,
		        quantity::TEXT, price::TEXT, amount::TEXT, commission::TEXT, net_amount::TEXT, executed_at
		 FROM transactions WHERE user_id = $1 ORDER BY executed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// --- Price cache ---

func (s *PostgresStore) SaveQuote(ctx context.Context, q *model.Quote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quotes (ticker, price, bid, ask, volume, ts)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6)
		 ON CONFLICT (ticker, ts) DO NOTHING`,
		q.Ticker, q.Price.String(), q.Bid.String(), q.Ask.String(), q.Volume, q.Ts,
	)
	return err
}

func (s *PostgresStore) LatestQuote(ctx context.Context, ticker string) (*model.Quote, error) {
	var q model.Quote
	var price, bid, ask string

	err := s.pool.QueryRow(ctx,
		`SELECT ticker, price::TEXT, bid::TEXT, ask::TEXT, volume, ts
		 FROM quotes WHERE ticker = $1 ORDER BY ts DESC LIMIT 1`, ticker).
		Scan(&q.Ticker, &price, &bid, &ask, &q.Volume, &q.Ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest quote %s: %w", ticker, err)
	}

	q.Price = mustDecimal(price)
	q.Bid = mustDecimal(bid)
	q.Ask = mustDecimal(ask)
	return &q, nil
}

// --- Atomic mutations ---

// ApplyExecution writes all rows of one execution inside a single
// transaction; a failure on any row rolls back the whole call.
func (s *PostgresStore) ApplyExecution(ctx context.Context, batch *model.ExecutionBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin execution tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if a := batch.Account; a != nil {
		if err := updateAccountTx(ctx, tx, a); err != nil {
			return err
		}
	}
	for _, o := range batch.Orders {
		if _, err := tx.Exec(ctx,
			`INSERT INTO orders (id, user_id, ticker, order_type, position_type,
			                     quantity, price, stop_price, status, strategy_id, belief,
			                     created_at, filled_at, filled_price, filled_quantity, commission)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11,
			         $12, $13, $14::NUMERIC, $15::NUMERIC, $16::NUMERIC)`,
			o.ID, o.UserID, o.Ticker, string(o.OrderType), string(o.PositionType),
			o.Quantity.String(), o.Price.String(), o.StopPrice.String(),
			string(o.Status), o.StrategyID, o.Belief,
			o.CreatedAt, o.FilledAt, o.FilledPrice.String(), o.FilledQty.String(), o.Commission.String(),
		); err != nil {
			return fmt.Errorf("insert order %s: %w", o.ID, err)
		}
	}
	for _, p := range batch.Positions {
		if _, err := tx.Exec(ctx, upsertPositionSQL, upsertPositionArgs(p)...); err != nil {
			return fmt.Errorf("upsert position %s: %w", p.ID, err)
		}
	}
	for _, t := range batch.Transactions {
		if err := insertTransactionTx(ctx, tx, t); err != nil {
			return err
		}
	}
	if q := batch.Quote; q != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO quotes (ticker, price, bid, ask, volume, ts)
			 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6)
			 ON CONFLICT (ticker, ts) DO NOTHING`,
			q.Ticker, q.Price.String(), q.Bid.String(), q.Ask.String(), q.Volume, q.Ts,
		); err != nil {
			return fmt.Errorf("cache quote %s: %w", q.Ticker, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ApplyClose(ctx context.Context, batch *model.CloseBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin close tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if a := batch.Account; a != nil {
		if err := updateAccountTx(ctx, tx, a); err != nil {
			return err
		}
	}
	if batch.DeletePosition {
		if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE id = $1`, batch.PositionID); err != nil {
			return fmt.Errorf("delete position %s: %w", batch.PositionID, err)
		}
	} else if p := batch.Position; p != nil {
		if _, err := tx.Exec(ctx, upsertPositionSQL, upsertPositionArgs(p)...); err != nil {
			return fmt.Errorf("upsert position %s: %w", p.ID, err)
		}
	}
	if t := batch.Transaction; t != nil {
		if err := insertTransactionTx(ctx, tx, t); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- SQL helpers ---

const upsertPositionSQL = `
	INSERT INTO positions (id, user_id, ticker, position_type,
	                       quantity, avg_price, current_price, market_value,
	                       unrealized_pnl, realized_pnl, day_pnl,
	                       strategy_id, belief, opened_at, updated_at)
	VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
	        $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12, $13, $14, $15)
	ON CONFLICT (id) DO UPDATE SET
		quantity = EXCLUDED.quantity,
		avg_price = EXCLUDED.avg_price,
		current_price = EXCLUDED.current_price,
		market_value = EXCLUDED.market_value,
		unrealized_pnl = EXCLUDED.unrealized_pnl,
		realized_pnl = EXCLUDED.realized_pnl,
		day_pnl = EXCLUDED.day_pnl,
		updated_at = EXCLUDED.updated_at`

func upsertPositionArgs(p *model.Position) []interface{} {
	return []interface{}{
		p.ID, p.UserID, p.Ticker, string(p.PositionType),
		p.Quantity.String(), p.AvgPrice.String(), p.CurrentPrice.String(), p.MarketValue.String(),
		p.UnrealizedPnL.String(), p.RealizedPnL.String(), p.DayPnL.String(),
		p.StrategyID, p.Belief, p.OpenedAt, p.UpdatedAt,
	}
}

func updateAccountTx(ctx context.Context, tx pgx.Tx, a *model.Account) error {
	_, err := tx.Exec(ctx,
		`UPDATE accounts
		 SET cash_balance = $2::NUMERIC, margin_used = $3::NUMERIC, buying_power = $4::NUMERIC,
		     total_pnl = $5::NUMERIC, day_pnl = $6::NUMERIC, last_updated = $7
		 WHERE user_id = $1`,
		a.UserID, a.CashBalance.String(), a.MarginUsed.String(), a.BuyingPower.String(),
		a.TotalPnL.String(), a.DayPnL.String(), a.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.UserID, err)
	}
	return nil
}

func insertTransactionTx(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, order_id, ticker, transaction_type,
		                           quantity, price, amount, commission, net_amount, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11)`,
		t.ID, t.UserID, t.OrderID, t.Ticker, string(t.Type),
		t.Quantity.String(), t.Price.String(), t.Amount.String(),
		t.Commission.String(), t.NetAmount.String(), t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	return nil
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func mustDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	var cash, margin, bp, totalPnL, dayPnL string

	if err := row.Scan(&a.UserID, &cash, &margin, &bp, &totalPnL, &dayPnL,
		&a.CreatedAt, &a.LastUpdated); err != nil {
		return nil, err
	}

	a.CashBalance = mustDecimal(cash)
	a.MarginUsed = mustDecimal(margin)
	a.BuyingPower = mustDecimal(bp)
	a.TotalPnL = mustDecimal(totalPnL)
	a.DayPnL = mustDecimal(dayPnL)
	return &a, nil
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var orderType, posType, status string
	var qty, price, stopPrice, filledPrice, filledQty, comm string

	if err := row.Scan(&o.ID, &o.UserID, &o.Ticker, &orderType, &posType,
		&qty, &price, &stopPrice, &status, &o.StrategyID, &o.Belief,
		&o.CreatedAt, &o.FilledAt, &filledPrice, &filledQty, &comm); err != nil {
		return nil, err
	}

	o.OrderType = model.OrderType(orderType)
	o.PositionType = model.PositionType(posType)
	o.Status = model.OrderStatus(status)
	o.Quantity = mustDecimal(qty)
	o.Price = mustDecimal(price)
	o.StopPrice = mustDecimal(stopPrice)
	o.FilledPrice = mustDecimal(filledPrice)
	o.FilledQty = mustDecimal(filledQty)
	o.Commission = mustDecimal(comm)
	return &o, nil
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var p model.Position
	var posType string
	var qty, avg, cur, mv, upnl, rpnl, dpnl string

	if err := row.Scan(&p.ID, &p.UserID, &p.Ticker, &posType,
		&qty, &avg, &cur, &mv, &upnl, &rpnl, &dpnl,
		&p.StrategyID, &p.Belief, &p.OpenedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.PositionType = model.PositionType(posType)
	p.Quantity = mustDecimal(qty)
	p.AvgPrice = mustDecimal(avg)
	p.CurrentPrice = mustDecimal(cur)
	p.MarketValue = mustDecimal(mv)
	p.UnrealizedPnL = mustDecimal(upnl)
	p.RealizedPnL = mustDecimal(rpnl)
	p.DayPnL = mustDecimal(dpnl)
	return &p, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var txType string
	var qty, price, amount, comm, net string

	if err := row.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Ticker, &txType,
		&qty, &price, &amount, &comm, &net, &t.ExecutedAt); err != nil {
		return nil, err
	}

	t.Type = model.TransactionType(txType)
	t.Quantity = mustDecimal(qty)
	t.Price = mustDecimal(price)
	t.Amount = mustDecimal(amount)
	t.Commission = mustDecimal(comm)
	t.NetAmount = mustDecimal(net)
	return &t, nil
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}
