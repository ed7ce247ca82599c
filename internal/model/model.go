// Package model defines the core domain types shared across the paper
// trading engine. All monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Engine-wide constants. These mirror the product's simulated brokerage
// rules and are deliberately not configurable per user.
var (
	// StartingCash is the virtual balance every account begins with.
	StartingCash = decimal.NewFromInt(100_000)

	// DefaultInvestment is the notional used to size a leg when the
	// strategy gives no explicit quantity.
	DefaultInvestment = decimal.NewFromInt(1_000)

	// CommissionRate is the proportional commission charged per fill.
	CommissionRate = decimal.NewFromFloat(0.005)

	// MinCommission is the floor applied to every commission charge.
	MinCommission = decimal.NewFromInt(1)

	// MarginRequirement is the fraction of short notional reserved as
	// collateral.
	MarginRequirement = decimal.NewFromFloat(0.25)

	// OptionPremiumRate estimates an option premium as a fraction of spot.
	OptionPremiumRate = decimal.NewFromFloat(0.05)

	// OptionContractMultiplier is the shares-per-contract multiplier.
	OptionContractMultiplier = decimal.NewFromInt(100)
)

// OrderType distinguishes how an order is priced. Only market orders are
// exercised by the executor; the remaining types exist for the order schema.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// PositionType is the direction or instrument class of a position.
type PositionType string

const (
	PositionLong   PositionType = "long"
	PositionShort  PositionType = "short"
	PositionCall   PositionType = "call"
	PositionPut    PositionType = "put"
	PositionSpread PositionType = "spread"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// TransactionType labels every cash-moving event.
type TransactionType string

const (
	TxBuy        TransactionType = "BUY"
	TxSell       TransactionType = "SELL"
	TxSellShort  TransactionType = "SELL_SHORT"
	TxBuyToCover TransactionType = "BUY_TO_COVER"
)

// Account is the per-user cash and margin ledger. Created lazily on first
// interaction with StartingCash; never deleted.
type Account struct {
	UserID      string          `json:"user_id" db:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	EquityValue decimal.Decimal `json:"equity_value" db:"equity_value"` // derived on read
	MarginUsed  decimal.Decimal `json:"margin_used" db:"margin_used"`
	BuyingPower decimal.Decimal `json:"buying_power" db:"buying_power"`
	TotalPnL    decimal.Decimal `json:"total_pnl" db:"total_pnl"`
	DayPnL      decimal.Decimal `json:"day_pnl" db:"day_pnl"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	LastUpdated time.Time       `json:"last_updated" db:"last_updated"`
}

// Order is one executed leg. Created pending, transitioned to filled
// immediately (no matching latency is modeled), immutable once filled.
type Order struct {
	ID           string          `json:"order_id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Ticker       string          `json:"ticker" db:"ticker"`
	OrderType    OrderType       `json:"order_type" db:"order_type"`
	PositionType PositionType    `json:"position_type" db:"position_type"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	StopPrice    decimal.Decimal `json:"stop_price" db:"stop_price"`
	Status       OrderStatus     `json:"status" db:"status"`
	StrategyID   string          `json:"strategy_id" db:"strategy_id"`
	Belief       string          `json:"belief" db:"belief"` // free text, opaque to the engine
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	FilledAt     time.Time       `json:"filled_at" db:"filled_at"`
	FilledPrice  decimal.Decimal `json:"filled_price" db:"filled_price"`
	FilledQty    decimal.Decimal `json:"filled_quantity" db:"filled_quantity"`
	Commission   decimal.Decimal `json:"commission" db:"commission"`
}

// Position is the aggregate holding for one (user, ticker, position type)
// key. Multiple fills into the same key average together; destroyed on
// full close.
type Position struct {
	ID            string          `json:"position_id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Ticker        string          `json:"ticker" db:"ticker"`
	PositionType  PositionType    `json:"position_type" db:"position_type"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price" db:"avg_price"`
	CurrentPrice  decimal.Decimal `json:"current_price" db:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value" db:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	DayPnL        decimal.Decimal `json:"day_pnl" db:"day_pnl"`
	StrategyID    string          `json:"strategy_id" db:"strategy_id"`
	Belief        string          `json:"belief" db:"belief"`
	OpenedAt      time.Time       `json:"opened_at" db:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable audit record of a cash-moving event.
// Never updated or deleted.
type Transaction struct {
	ID         string          `json:"transaction_id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	Ticker     string          `json:"ticker" db:"ticker"`
	Type       TransactionType `json:"transaction_type" db:"transaction_type"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Amount     decimal.Decimal `json:"amount" db:"amount"` // quantity * price
	Commission decimal.Decimal `json:"commission" db:"commission"`
	NetAmount  decimal.Decimal `json:"net_amount" db:"net_amount"`
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// Quote is a price-cache entry. Append-only and keyed by (ticker, ts) so
// price history is retained; the latest entry per ticker serves as the
// fallback when the live oracle is unavailable.
type Quote struct {
	Ticker string          `json:"ticker" db:"ticker"`
	Price  decimal.Decimal `json:"price" db:"price"`
	Bid    decimal.Decimal `json:"bid" db:"bid"`
	Ask    decimal.Decimal `json:"ask" db:"ask"`
	Volume int64           `json:"volume" db:"volume"`
	Ts     time.Time       `json:"ts" db:"ts"`
}

// StrategyLeg is one leg of a trading strategy. Action is matched by
// keyword: containing "buy" opens long, "sell" opens short; anything else
// is skipped. Quantity may be zero, in which case buy legs are sized from
// the strategy's investment amount.
type StrategyLeg struct {
	Action   string          `json:"action"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Strategy is the executor input: a ticker plus one or more legs.
type Strategy struct {
	ID               string          `json:"strategy_id"`
	Ticker           string          `json:"ticker"`
	Legs             []StrategyLeg   `json:"legs"`
	InvestmentAmount decimal.Decimal `json:"investment_amount"` // zero → DefaultInvestment
}

// ExecutionResult is the success payload of execute_trade.
type ExecutionResult struct {
	Orders         []Order         `json:"orders"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
}

// CloseResult is the success payload of close_position.
type CloseResult struct {
	PositionID  string          `json:"position_id"`
	Ticker      string          `json:"ticker"`
	ClosedQty   decimal.Decimal `json:"closed_quantity"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	Commission  decimal.Decimal `json:"commission"`
	NetProceeds decimal.Decimal `json:"net_proceeds"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	FullyClosed bool            `json:"fully_closed"`
}

// Portfolio is the live valuation of a user's full position set.
type Portfolio struct {
	Account            Account         `json:"account"`
	Positions          []Position      `json:"positions"`
	OpenPositions      int             `json:"open_positions"`
	TotalEquity        decimal.Decimal `json:"total_equity"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalReturn        decimal.Decimal `json:"total_return"`
	TotalReturnPct     decimal.Decimal `json:"total_return_pct"`
	Grade              string          `json:"grade"`
}

// LeaderboardEntry ranks one account by return percentage.
type LeaderboardEntry struct {
	Rank       int             `json:"rank"`
	UserID     string          `json:"user_id"`
	TotalValue decimal.Decimal `json:"total_value"`
	ReturnPct  decimal.Decimal `json:"return_pct"`
	Grade      string          `json:"grade"`
}

// OutcomeLabel classifies a matured position's performance.
type OutcomeLabel string

const (
	OutcomeGood    OutcomeLabel = "good"
	OutcomeBad     OutcomeLabel = "bad"
	OutcomeNeutral OutcomeLabel = "neutral"
)

// Outcome is one labeled performance record emitted by the evaluator for
// the external feedback pipeline.
type Outcome struct {
	PositionID    string          `json:"position_id"`
	UserID        string          `json:"user_id"`
	Ticker        string          `json:"ticker"`
	StrategyID    string          `json:"strategy_id"`
	Belief        string          `json:"belief"`
	Label         OutcomeLabel    `json:"label"`
	PnLPct        decimal.Decimal `json:"pnl_pct"`
	AutoGenerated bool            `json:"auto_generated"`
	EvaluatedAt   time.Time       `json:"evaluated_at"`
}

// ExecutionBatch is the full set of rows written by one execute_trade call.
// Stores apply it atomically: all rows commit together or none do.
type ExecutionBatch struct {
	Account      *Account
	Orders       []*Order
	Positions    []*Position
	Transactions []*Transaction
	Quote        *Quote
}

// CloseBatch is the full set of rows written by one close_position call.
type CloseBatch struct {
	Account        *Account
	Position       *Position // updated row for a partial close; ignored when DeletePosition
	PositionID     string
	DeletePosition bool
	Transaction    *Transaction
}
