// Package trade implements the engine's public operations: executing
// multi-leg strategies, closing positions, portfolio valuation, and the
// leaderboard.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/book"
	"github.com/papertrade/engine/internal/commission"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/pricing"
	"github.com/papertrade/engine/internal/store"
)

var (
	// ErrInvalidStrategy is returned when a strategy names no ticker or
	// carries no executable leg. No state is mutated.
	ErrInvalidStrategy = errors.New("trade: invalid strategy")

	// ErrInsufficientBuyingPower is returned when the total cost of all
	// legs exceeds the account's buying power. No state is mutated.
	ErrInsufficientBuyingPower = errors.New("trade: insufficient buying power")
)

// Service executes trades against the ledger store. A single mutex
// serializes all mutations (execute, close) across every user; reads run
// concurrently and observe the state after the last completed mutation.
// For horizontal scaling this would shard per user, but one coarse lock is
// the documented contract of this engine.
type Service struct {
	store    store.Store
	resolver *pricing.Resolver
	mu       sync.Mutex
	wsHub    *WSHub // optional hub for real-time fill broadcasts
}

// NewService creates a new trade service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, resolver *pricing.Resolver, hub *WSHub) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		wsHub:    hub,
	}
}

// plannedLeg is one leg after sizing and costing, before any write.
type plannedLeg struct {
	action     string
	posType    model.PositionType
	txType     model.TransactionType
	quantity   decimal.Decimal
	fillPrice  decimal.Decimal // per-unit fill price (spot, or estimated contract premium)
	cost       decimal.Decimal // capital reserved: full notional for longs, margin for shorts
	commission decimal.Decimal
}

// isOptionAction reports whether a leg trades an option rather than the
// underlying equity.
func isOptionAction(action string) bool {
	return strings.Contains(action, "call") || strings.Contains(action, "put")
}

// planLegs sizes and costs every executable leg of the strategy at the
// given spot price. Legs whose action matches neither "buy" nor "sell"
// are skipped.
func planLegs(strat model.Strategy, spot decimal.Decimal) []plannedLeg {
	investment := strat.InvestmentAmount
	if investment.LessThanOrEqual(decimal.Zero) {
		investment = model.DefaultInvestment
	}

	var legs []plannedLeg
	for _, leg := range strat.Legs {
		action := strings.ToLower(leg.Action)

		// Per-unit cost: spot for equities, estimated premium for options
		// (a flat fraction of spot, times the contract multiplier).
		unitCost := spot
		if isOptionAction(action) {
			unitCost = spot.Mul(model.OptionPremiumRate).Mul(model.OptionContractMultiplier)
		}

		var planned plannedLeg
		switch {
		case strings.Contains(action, "buy"):
			qty := leg.Quantity
			if qty.LessThanOrEqual(decimal.Zero) {
				qty = investment.Div(unitCost).Floor()
				if qty.LessThan(decimal.NewFromInt(1)) {
					qty = decimal.NewFromInt(1)
				}
			}
			posType := model.PositionLong
			if strings.Contains(action, "call") {
				posType = model.PositionCall
			} else if strings.Contains(action, "put") {
				posType = model.PositionPut
			}
			planned = plannedLeg{
				action:    action,
				posType:   posType,
				txType:    model.TxBuy,
				quantity:  qty,
				fillPrice: unitCost,
				cost:      qty.Mul(unitCost),
			}

		case strings.Contains(action, "sell"):
			qty := leg.Quantity
			if qty.LessThanOrEqual(decimal.Zero) {
				qty = decimal.NewFromInt(1)
			}
			planned = plannedLeg{
				action:    action,
				posType:   model.PositionShort,
				txType:    model.TxSellShort,
				quantity:  qty,
				fillPrice: unitCost,
				cost:      qty.Mul(unitCost).Mul(model.MarginRequirement),
			}

		default:
			// Unrecognized action: skipped, not an error.
			slog.Debug("skipping unrecognized leg action", "action", leg.Action)
			continue
		}

		planned.commission = commission.Amount(planned.quantity, planned.fillPrice)
		legs = append(legs, planned)
	}
	return legs
}

// Execute validates and executes a multi-leg strategy as one atomic
// operation: the buying-power check covers the sum of all legs, and either
// every leg's order/position/transaction commits or nothing does.
func (s *Service) Execute(ctx context.Context, userID string, strat model.Strategy, belief string) (*model.ExecutionResult, error) {
	if userID == "" || strat.Ticker == "" || len(strat.Legs) == 0 {
		metrics.TradeRejections.WithLabelValues("invalid_strategy").Inc()
		return nil, fmt.Errorf("%w: ticker and at least one leg are required", ErrInvalidStrategy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.store.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	spot, source := s.resolver.Resolve(ctx, strat.Ticker)
	metrics.PriceLookups.WithLabelValues(string(source)).Inc()

	legs := planLegs(strat, spot)
	if len(legs) == 0 {
		metrics.TradeRejections.WithLabelValues("invalid_strategy").Inc()
		return nil, fmt.Errorf("%w: no executable legs", ErrInvalidStrategy)
	}

	// All-or-nothing affordability check before any write.
	totalCost := decimal.Zero
	for _, leg := range legs {
		totalCost = totalCost.Add(leg.cost).Add(leg.commission)
	}
	if totalCost.GreaterThan(account.BuyingPower) {
		metrics.TradeRejections.WithLabelValues("insufficient_buying_power").Inc()
		return nil, fmt.Errorf("%w: need %s, have %s",
			ErrInsufficientBuyingPower, totalCost, account.BuyingPower)
	}

	now := time.Now().UTC()
	batch := &model.ExecutionBatch{Account: account}
	result := &model.ExecutionResult{ExecutionPrice: spot}

	// Positions touched by this execution, keyed by (ticker, type), so a
	// strategy with two legs on the same key averages within the call.
	touched := make(map[model.PositionType]*model.Position)

	for _, leg := range legs {
		order := &model.Order{
			ID:           uuid.New().String(),
			UserID:       userID,
			Ticker:       strat.Ticker,
			OrderType:    model.OrderTypeMarket,
			PositionType: leg.posType,
			Quantity:     leg.quantity,
			Price:        leg.fillPrice,
			Status:       model.OrderStatusFilled,
			StrategyID:   strat.ID,
			Belief:       belief,
			CreatedAt:    now,
			FilledAt:     now,
			FilledPrice:  leg.fillPrice,
			FilledQty:    leg.quantity,
			Commission:   leg.commission,
		}
		batch.Orders = append(batch.Orders, order)
		result.Orders = append(result.Orders, *order)

		pos, err := s.upsertPosition(ctx, touched, order)
		if err != nil {
			return nil, err
		}
		touched[leg.posType] = pos

		amount := leg.quantity.Mul(leg.fillPrice)
		batch.Transactions = append(batch.Transactions, &model.Transaction{
			ID:         uuid.New().String(),
			UserID:     userID,
			OrderID:    order.ID,
			Ticker:     strat.Ticker,
			Type:       leg.txType,
			Quantity:   leg.quantity,
			Price:      leg.fillPrice,
			Amount:     amount,
			Commission: leg.commission,
			NetAmount:  amount.Add(leg.commission),
			ExecutedAt: now,
		})

		// Cash is debited per leg by the capital that leg actually
		// consumes: full notional for longs, the margin reserve for
		// shorts, plus commission either way.
		legTotal := leg.cost.Add(leg.commission)
		account.CashBalance = account.CashBalance.Sub(legTotal)
		account.BuyingPower = account.BuyingPower.Sub(legTotal)
		if leg.posType == model.PositionShort {
			account.MarginUsed = account.MarginUsed.Add(leg.cost)
		}

		metrics.TradesTotal.WithLabelValues(string(leg.posType)).Inc()
	}

	for _, pos := range touched {
		batch.Positions = append(batch.Positions, pos)
	}
	account.LastUpdated = now
	result.TotalCost = totalCost

	// Cache the execution price for the fallback chain.
	batch.Quote = &model.Quote{
		Ticker: strat.Ticker,
		Price:  spot,
		Ts:     now,
	}

	if err := s.store.ApplyExecution(ctx, batch); err != nil {
		return nil, fmt.Errorf("apply execution: %w", err)
	}

	slog.Info("strategy executed",
		"user", userID,
		"ticker", strat.Ticker,
		"legs", len(legs),
		"total_cost", totalCost.String(),
		"price", spot.String(),
		"price_source", string(source),
	)

	if s.wsHub != nil {
		for _, o := range result.Orders {
			s.wsHub.Broadcast(WSMessage{
				Type:         "order_filled",
				UserID:       userID,
				Ticker:       strat.Ticker,
				PositionType: string(o.PositionType),
				Quantity:     o.FilledQty.String(),
				Price:        o.FilledPrice.String(),
			})
		}
	}

	return result, nil
}

// upsertPosition folds an order fill into the existing position for
// (user, ticker, type), or creates a new one. Positions already touched
// earlier in the same execution are averaged in memory, not re-read.
func (s *Service) upsertPosition(ctx context.Context, touched map[model.PositionType]*model.Position, order *model.Order) (*model.Position, error) {
	existing := touched[order.PositionType]
	if existing == nil {
		p, err := s.store.GetPosition(ctx, order.UserID, order.Ticker, order.PositionType)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get position: %w", err)
		}
		existing = p
	}

	now := order.FilledAt

	if existing == nil {
		mv := book.MarketValue(order.FilledQty, order.FilledPrice)
		return &model.Position{
			ID:            uuid.New().String(),
			UserID:        order.UserID,
			Ticker:        order.Ticker,
			PositionType:  order.PositionType,
			Quantity:      order.FilledQty,
			AvgPrice:      order.FilledPrice,
			CurrentPrice:  order.FilledPrice,
			MarketValue:   mv,
			UnrealizedPnL: decimal.Zero,
			StrategyID:    order.StrategyID,
			Belief:        order.Belief,
			OpenedAt:      now,
			UpdatedAt:     now,
		}, nil
	}

	avg := book.AverageEntry(existing.Quantity, existing.AvgPrice, order.FilledQty, order.FilledPrice)
	existing.Quantity = existing.Quantity.Add(order.FilledQty)
	existing.AvgPrice = avg
	existing.CurrentPrice = order.FilledPrice
	existing.MarketValue = book.MarketValue(existing.Quantity, order.FilledPrice)
	existing.UnrealizedPnL = book.UnrealizedPnL(existing.PositionType, existing.Quantity, avg, order.FilledPrice)
	existing.UpdatedAt = now
	return existing, nil
}

// Close realizes P&L on a position at the current price. A quantity of
// zero (or >= the position size) closes fully and deletes the row; a
// smaller quantity closes partially, leaving the average price intact.
func (s *Service) Close(ctx context.Context, userID, positionID string, qty decimal.Decimal) (*model.CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.store.GetPositionByID(ctx, positionID)
	if err != nil {
		return nil, err // store.ErrNotFound maps to the not-found reply
	}
	if userID != "" && pos.UserID != userID {
		return nil, store.ErrNotFound
	}

	account, err := s.store.EnsureAccount(ctx, pos.UserID)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	price, source := s.resolver.Resolve(ctx, pos.Ticker)
	metrics.PriceLookups.WithLabelValues(string(source)).Inc()

	fullClose := qty.LessThanOrEqual(decimal.Zero) || qty.GreaterThanOrEqual(pos.Quantity)
	if fullClose {
		qty = pos.Quantity
	}

	realized := book.RealizedPnL(pos.PositionType, qty, pos.AvgPrice, price)
	proceeds := qty.Mul(price)
	comm := commission.Amount(qty, price)
	net := proceeds.Sub(comm)

	txType := model.TxSell
	if pos.PositionType == model.PositionShort {
		txType = model.TxBuyToCover
	}

	now := time.Now().UTC()
	account.CashBalance = account.CashBalance.Add(net)
	account.BuyingPower = account.BuyingPower.Add(net)
	account.TotalPnL = account.TotalPnL.Add(realized)
	if pos.PositionType == model.PositionShort {
		released := qty.Mul(pos.AvgPrice).Mul(model.MarginRequirement)
		account.MarginUsed = account.MarginUsed.Sub(released)
		if account.MarginUsed.IsNegative() {
			account.MarginUsed = decimal.Zero
		}
	}
	account.LastUpdated = now

	batch := &model.CloseBatch{
		Account:    account,
		PositionID: pos.ID,
		Transaction: &model.Transaction{
			ID:         uuid.New().String(),
			UserID:     pos.UserID,
			Ticker:     pos.Ticker,
			Type:       txType,
			Quantity:   qty,
			Price:      price,
			Amount:     proceeds,
			Commission: comm,
			NetAmount:  net,
			ExecutedAt: now,
		},
	}

	if fullClose {
		batch.DeletePosition = true
	} else {
		pos.Quantity = pos.Quantity.Sub(qty)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.CurrentPrice = price
		pos.MarketValue = book.MarketValue(pos.Quantity, price)
		pos.UnrealizedPnL = book.UnrealizedPnL(pos.PositionType, pos.Quantity, pos.AvgPrice, price)
		pos.UpdatedAt = now
		batch.Position = pos
	}

	if err := s.store.ApplyClose(ctx, batch); err != nil {
		return nil, fmt.Errorf("apply close: %w", err)
	}

	kind := "full"
	if !fullClose {
		kind = "partial"
	}
	metrics.ClosesTotal.WithLabelValues(kind).Inc()

	slog.Info("position closed",
		"user", pos.UserID,
		"ticker", pos.Ticker,
		"position_type", string(pos.PositionType),
		"quantity", qty.String(),
		"price", price.String(),
		"realized_pnl", realized.String(),
		"kind", kind,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "position_closed",
			UserID:       pos.UserID,
			Ticker:       pos.Ticker,
			PositionType: string(pos.PositionType),
			Quantity:     qty.String(),
			Price:        price.String(),
		})
	}

	return &model.CloseResult{
		PositionID:  pos.ID,
		Ticker:      pos.Ticker,
		ClosedQty:   qty,
		ClosePrice:  price,
		Proceeds:    proceeds,
		Commission:  comm,
		NetProceeds: net,
		RealizedPnL: realized,
		FullyClosed: fullClose,
	}, nil
}

// Portfolio recomputes the live valuation of a user's full position set.
// Each position is re-priced through the resolver and the refreshed row is
// persisted; a price or persistence failure for one position never blocks
// the rest of the aggregation.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	account, err := s.store.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	positions, err := s.store.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	totalEquity := decimal.Zero
	totalUnrealized := decimal.Zero
	now := time.Now().UTC()

	for i := range positions {
		p := &positions[i]

		price, source := s.resolver.Resolve(ctx, p.Ticker)
		metrics.PriceLookups.WithLabelValues(string(source)).Inc()

		p.CurrentPrice = price
		p.MarketValue = book.MarketValue(p.Quantity, price)
		p.UnrealizedPnL = book.UnrealizedPnL(p.PositionType, p.Quantity, p.AvgPrice, price)
		p.UpdatedAt = now

		if err := s.store.SavePosition(ctx, p); err != nil {
			slog.Warn("failed to persist refreshed position", "position", p.ID, "err", err)
		}

		totalEquity = totalEquity.Add(p.MarketValue)
		totalUnrealized = totalUnrealized.Add(p.UnrealizedPnL)
	}

	account.EquityValue = totalEquity
	totalValue := account.CashBalance.Add(totalEquity)
	totalReturn := totalValue.Sub(model.StartingCash)
	returnPct := book.ReturnPct(totalValue, model.StartingCash)

	return &model.Portfolio{
		Account:            *account,
		Positions:          positions,
		OpenPositions:      len(positions),
		TotalEquity:        totalEquity,
		TotalUnrealizedPnL: totalUnrealized,
		TotalValue:         totalValue,
		TotalReturn:        totalReturn,
		TotalReturnPct:     returnPct,
		Grade:              book.Grade(returnPct),
	}, nil
}

// maxLeaderboardEntries caps the leaderboard size.
const maxLeaderboardEntries = 25

// Leaderboard ranks all accounts by return percentage, descending. Ties
// keep account creation order (stable sort). Positions are valued at their
// stored market value; the portfolio read path keeps those fresh.
func (s *Service) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(accounts))
	for _, a := range accounts {
		positions, err := s.store.ListPositionsByUser(ctx, a.UserID)
		if err != nil {
			return nil, fmt.Errorf("list positions for %s: %w", a.UserID, err)
		}

		equity := decimal.Zero
		for _, p := range positions {
			equity = equity.Add(p.MarketValue)
		}

		totalValue := a.CashBalance.Add(equity)
		returnPct := book.ReturnPct(totalValue, model.StartingCash)

		entries = append(entries, model.LeaderboardEntry{
			UserID:     a.UserID,
			TotalValue: totalValue,
			ReturnPct:  returnPct,
			Grade:      book.Grade(returnPct),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ReturnPct.GreaterThan(entries[j].ReturnPct)
	})

	if len(entries) > maxLeaderboardEntries {
		entries = entries[:maxLeaderboardEntries]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
