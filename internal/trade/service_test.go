package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/pricing"
	"github.com/papertrade/engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fakeOracle serves fixed prices and errors for unknown tickers, so the
// resolver's fallback chain stays out of these tests unless asked for.
type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fakeOracle) GetPrice(_ context.Context, ticker string) (decimal.Decimal, error) {
	if p, ok := f.prices[ticker]; ok {
		return p, nil
	}
	return decimal.Zero, errors.New("no quote")
}

type testEnv struct {
	router *chi.Mux
	store  *store.MemoryStore
	oracle *fakeOracle
	svc    *Service
}

func newTestEnv() *testEnv {
	oracle := &fakeOracle{prices: map[string]decimal.Decimal{
		"AAPL": d(100),
	}}
	ms := store.NewMemoryStore()
	resolver := pricing.NewResolver(oracle, ms, time.Second)
	svc := NewService(ms, resolver, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/trades", svc.HandleExecute)
	r.Post("/api/v1/positions/{positionID}/close", svc.HandleClose)
	r.Get("/api/v1/portfolio/{userID}", svc.HandlePortfolio)
	r.Get("/api/v1/leaderboard", svc.HandleLeaderboard)
	r.Get("/api/v1/users/{userID}/orders", svc.HandleOrders)
	r.Get("/api/v1/users/{userID}/transactions", svc.HandleTransactions)

	return &testEnv{router: r, store: ms, oracle: oracle, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) execute(t *testing.T, userID, ticker string, legs []model.StrategyLeg) *model.ExecutionResult {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/trades", ExecuteRequest{
		UserID:   userID,
		Strategy: model.Strategy{Ticker: ticker, Legs: legs},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute returned %d: %s", rec.Code, rec.Body.String())
	}
	var result model.ExecutionResult
	decodeInto(t, rec, &result)
	return &result
}

func (e *testEnv) account(t *testing.T, userID string) *model.Account {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a
}

func (e *testEnv) onlyPosition(t *testing.T, userID string) model.Position {
	t.Helper()
	positions, err := e.store.ListPositionsByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected exactly 1 position, got %d", len(positions))
	}
	return positions[0]
}

func TestExecute_BuySizedFromInvestment(t *testing.T) {
	env := newTestEnv()

	// Price 100, default investment 1000: quantity floor(1000/100) = 10.
	// Commission max(10*100*0.005, 1) = 5.
	result := env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy"}})

	if len(result.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(result.Orders))
	}
	order := result.Orders[0]
	if !order.FilledQty.Equal(d(10)) {
		t.Errorf("expected quantity 10, got %s", order.FilledQty)
	}
	if !order.Commission.Equal(d(5)) {
		t.Errorf("expected commission 5, got %s", order.Commission)
	}
	if !result.TotalCost.Equal(d(1005)) {
		t.Errorf("expected total cost 1005, got %s", result.TotalCost)
	}

	account := env.account(t, "user1")
	if !account.CashBalance.Equal(d(98_995)) {
		t.Errorf("expected cash 98995, got %s", account.CashBalance)
	}
	if !account.BuyingPower.Equal(d(98_995)) {
		t.Errorf("expected buying power 98995, got %s", account.BuyingPower)
	}

	pos := env.onlyPosition(t, "user1")
	if pos.PositionType != model.PositionLong {
		t.Errorf("expected long position, got %s", pos.PositionType)
	}
	if !pos.AvgPrice.Equal(d(100)) {
		t.Errorf("expected avg price 100, got %s", pos.AvgPrice)
	}
}

func TestExecute_ExplicitQuantity(t *testing.T) {
	env := newTestEnv()
	env.oracle.prices["MSFT"] = d(200)

	result := env.execute(t, "user1", "MSFT", []model.StrategyLeg{
		{Action: "buy", Quantity: d(5)},
	})

	// 5*200 = 1000 plus commission max(5*200*0.005, 1) = 5.
	if !result.TotalCost.Equal(d(1005)) {
		t.Errorf("expected total cost 1005, got %s", result.TotalCost)
	}
	if !result.Orders[0].FilledQty.Equal(d(5)) {
		t.Errorf("expected quantity 5, got %s", result.Orders[0].FilledQty)
	}
}

func TestExecute_MinimumCommission(t *testing.T) {
	env := newTestEnv()
	env.oracle.prices["PENNY"] = d(2)

	result := env.execute(t, "user1", "PENNY", []model.StrategyLeg{
		{Action: "buy", Quantity: d(10)},
	})

	// 10*2*0.005 = 0.10, floored to the 1.00 minimum.
	if !result.Orders[0].Commission.Equal(d(1)) {
		t.Errorf("expected minimum commission 1, got %s", result.Orders[0].Commission)
	}
}

func TestExecute_OptionLegSizing(t *testing.T) {
	env := newTestEnv()

	// Spot 100: estimated premium 100*0.05*100 = 500 per contract.
	// Default investment 1000: quantity floor(1000/500) = 2 contracts.
	result := env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy_call"}})

	order := result.Orders[0]
	if !order.FilledQty.Equal(d(2)) {
		t.Errorf("expected 2 contracts, got %s", order.FilledQty)
	}
	if !order.FilledPrice.Equal(d(500)) {
		t.Errorf("expected fill price 500, got %s", order.FilledPrice)
	}
	if order.PositionType != model.PositionCall {
		t.Errorf("expected call position, got %s", order.PositionType)
	}

	// 2*500 = 1000 plus commission max(2*500*0.005, 1) = 5.
	if !result.TotalCost.Equal(d(1005)) {
		t.Errorf("expected total cost 1005, got %s", result.TotalCost)
	}
}

func TestExecute_ShortMarginCost(t *testing.T) {
	env := newTestEnv()

	result := env.execute(t, "user1", "AAPL", []model.StrategyLeg{
		{Action: "sell", Quantity: d(10)},
	})

	// Short 10 @ 100: margin 1000*0.25 = 250, commission 5.
	if !result.TotalCost.Equal(d(255)) {
		t.Errorf("expected total cost 255, got %s", result.TotalCost)
	}

	account := env.account(t, "user1")
	if !account.CashBalance.Equal(d(99_745)) {
		t.Errorf("expected cash 99745, got %s", account.CashBalance)
	}
	if !account.MarginUsed.Equal(d(250)) {
		t.Errorf("expected margin used 250, got %s", account.MarginUsed)
	}

	pos := env.onlyPosition(t, "user1")
	if pos.PositionType != model.PositionShort {
		t.Errorf("expected short position, got %s", pos.PositionType)
	}

	txs, _ := env.store.GetTransactionsByUser(context.Background(), "user1")
	if len(txs) != 1 || txs[0].Type != model.TxSellShort {
		t.Fatalf("expected one SELL_SHORT transaction, got %+v", txs)
	}
}

func TestExecute_MultiLegSpread(t *testing.T) {
	env := newTestEnv()

	result := env.execute(t, "user1", "AAPL", []model.StrategyLeg{
		{Action: "buy", Quantity: d(10)},
		{Action: "sell", Quantity: d(10)},
	})

	if len(result.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(result.Orders))
	}

	// Long leg 1000 + 5 commission, short leg 250 margin + 5 commission.
	if !result.TotalCost.Equal(d(1260)) {
		t.Errorf("expected total cost 1260, got %s", result.TotalCost)
	}

	positions, _ := env.store.ListPositionsByUser(context.Background(), "user1")
	if len(positions) != 2 {
		t.Errorf("expected 2 positions, got %d", len(positions))
	}
}

func TestExecute_SkipsUnrecognizedLegs(t *testing.T) {
	env := newTestEnv()

	result := env.execute(t, "user1", "AAPL", []model.StrategyLeg{
		{Action: "hold"},
		{Action: "buy", Quantity: d(1)},
	})

	if len(result.Orders) != 1 {
		t.Errorf("expected the hold leg to be skipped, got %d orders", len(result.Orders))
	}
}

func TestExecute_AveragingAcrossFills(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})

	env.oracle.prices["AAPL"] = d(110)
	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})

	// (10*100 + 10*110) / 20 = 105.
	pos := env.onlyPosition(t, "user1")
	if !pos.Quantity.Equal(d(20)) {
		t.Errorf("expected quantity 20, got %s", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(d(105)) {
		t.Errorf("expected avg price 105, got %s", pos.AvgPrice)
	}
}

func TestExecute_InsufficientBuyingPower(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/trades", ExecuteRequest{
		UserID: "user1",
		Strategy: model.Strategy{
			Ticker: "AAPL",
			Legs:   []model.StrategyLeg{{Action: "buy", Quantity: d(10_000)}},
		},
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var errResp errorResponse
	decodeInto(t, rec, &errResp)
	if errResp.Reason != "insufficient_buying_power" {
		t.Errorf("expected reason insufficient_buying_power, got %q", errResp.Reason)
	}

	// The rejection must leave the ledger untouched.
	account := env.account(t, "user1")
	if !account.CashBalance.Equal(model.StartingCash) {
		t.Errorf("cash mutated on rejected trade: %s", account.CashBalance)
	}
	orders, _ := env.store.GetOrdersByUser(context.Background(), "user1")
	if len(orders) != 0 {
		t.Errorf("orders written on rejected trade: %d", len(orders))
	}
	positions, _ := env.store.ListPositionsByUser(context.Background(), "user1")
	if len(positions) != 0 {
		t.Errorf("positions written on rejected trade: %d", len(positions))
	}
}

func TestExecute_InvalidStrategy(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name     string
		strategy model.Strategy
	}{
		{"missing ticker", model.Strategy{Legs: []model.StrategyLeg{{Action: "buy"}}}},
		{"no legs", model.Strategy{Ticker: "AAPL"}},
		{"no executable legs", model.Strategy{Ticker: "AAPL", Legs: []model.StrategyLeg{{Action: "hold"}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/trades", ExecuteRequest{
				UserID:   "user1",
				Strategy: tc.strategy,
			})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var errResp errorResponse
			decodeInto(t, rec, &errResp)
			if errResp.Reason != "invalid_strategy" {
				t.Errorf("expected reason invalid_strategy, got %q", errResp.Reason)
			}
		})
	}
}

func TestClose_LongWithProfit(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})
	pos := env.onlyPosition(t, "user1")

	env.oracle.prices["AAPL"] = d(110)
	rec := env.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close", CloseRequest{UserID: "user1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close returned %d: %s", rec.Code, rec.Body.String())
	}

	var result model.CloseResult
	decodeInto(t, rec, &result)

	// Realized (110-100)*10 = 100; commission 10*110*0.005 = 5.50.
	if !result.RealizedPnL.Equal(d(100)) {
		t.Errorf("expected realized pnl 100, got %s", result.RealizedPnL)
	}
	if !result.Commission.Equal(d(5.5)) {
		t.Errorf("expected commission 5.50, got %s", result.Commission)
	}
	if !result.NetProceeds.Equal(d(1094.5)) {
		t.Errorf("expected net proceeds 1094.50, got %s", result.NetProceeds)
	}
	if !result.FullyClosed {
		t.Error("expected position fully closed")
	}

	// Cash basis check: net proceeds minus cost basis equals realized pnl
	// less the closing commission.
	basis := result.ClosedQty.Mul(pos.AvgPrice)
	if !result.NetProceeds.Sub(basis).Equal(result.RealizedPnL.Sub(result.Commission)) {
		t.Errorf("cash delta %s does not match realized pnl net of commission",
			result.NetProceeds.Sub(basis))
	}

	account := env.account(t, "user1")
	// 100000 - 1005 (open) + 1094.50 (close) = 100089.50.
	if !account.CashBalance.Equal(d(100_089.5)) {
		t.Errorf("expected cash 100089.50, got %s", account.CashBalance)
	}
	if !account.TotalPnL.Equal(d(100)) {
		t.Errorf("expected total pnl 100, got %s", account.TotalPnL)
	}

	positions, _ := env.store.ListPositionsByUser(context.Background(), "user1")
	if len(positions) != 0 {
		t.Errorf("position should be removed after full close, got %d", len(positions))
	}

	// History is newest first, so the closing SELL leads.
	txs, _ := env.store.GetTransactionsByUser(context.Background(), "user1")
	if len(txs) != 2 || txs[0].Type != model.TxSell || txs[1].Type != model.TxBuy {
		t.Fatalf("expected SELL then BUY in history, got %+v", txs)
	}
}

func TestClose_ShortProfitsFromDrop(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "sell", Quantity: d(10)}})
	pos := env.onlyPosition(t, "user1")

	env.oracle.prices["AAPL"] = d(90)
	rec := env.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close", CloseRequest{UserID: "user1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close returned %d: %s", rec.Code, rec.Body.String())
	}

	var result model.CloseResult
	decodeInto(t, rec, &result)

	// Short realized (100-90)*10 = 100.
	if !result.RealizedPnL.Equal(d(100)) {
		t.Errorf("expected realized pnl 100, got %s", result.RealizedPnL)
	}

	account := env.account(t, "user1")
	if !account.MarginUsed.Equal(decimal.Zero) {
		t.Errorf("expected margin fully released, got %s", account.MarginUsed)
	}

	txs, _ := env.store.GetTransactionsByUser(context.Background(), "user1")
	if len(txs) != 2 || txs[0].Type != model.TxBuyToCover {
		t.Fatalf("expected closing BUY_TO_COVER transaction, got %+v", txs)
	}
}

func TestClose_Partial(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})
	pos := env.onlyPosition(t, "user1")

	env.oracle.prices["AAPL"] = d(110)
	rec := env.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close", CloseRequest{
		UserID:   "user1",
		Quantity: d(4),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close returned %d: %s", rec.Code, rec.Body.String())
	}

	var result model.CloseResult
	decodeInto(t, rec, &result)
	if result.FullyClosed {
		t.Error("partial close reported as full")
	}
	if !result.RealizedPnL.Equal(d(40)) {
		t.Errorf("expected realized pnl 40, got %s", result.RealizedPnL)
	}

	remaining := env.onlyPosition(t, "user1")
	if !remaining.Quantity.Equal(d(6)) {
		t.Errorf("expected remaining quantity 6, got %s", remaining.Quantity)
	}
	if !remaining.AvgPrice.Equal(d(100)) {
		t.Errorf("partial close must not move avg price, got %s", remaining.AvgPrice)
	}
	if !remaining.RealizedPnL.Equal(d(40)) {
		t.Errorf("expected accumulated realized pnl 40, got %s", remaining.RealizedPnL)
	}
}

func TestClose_OverCloseIsFullClose(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})
	pos := env.onlyPosition(t, "user1")

	rec := env.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close", CloseRequest{
		UserID:   "user1",
		Quantity: d(50),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close returned %d: %s", rec.Code, rec.Body.String())
	}

	var result model.CloseResult
	decodeInto(t, rec, &result)
	if !result.FullyClosed || !result.ClosedQty.Equal(d(10)) {
		t.Errorf("expected full close of 10, got closed=%s fully=%v", result.ClosedQty, result.FullyClosed)
	}
}

func TestClose_NotFound(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/positions/no-such-id/close", CloseRequest{UserID: "user1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var errResp errorResponse
	decodeInto(t, rec, &errResp)
	if errResp.Reason != "position_not_found" {
		t.Errorf("expected reason position_not_found, got %q", errResp.Reason)
	}
}

func TestClose_WrongUser(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})
	pos := env.onlyPosition(t, "user1")

	rec := env.do(t, http.MethodPost, "/api/v1/positions/"+pos.ID+"/close", CloseRequest{UserID: "intruder"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's position, got %d", rec.Code)
	}
}

func TestPortfolio_Invariant(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})
	env.oracle.prices["AAPL"] = d(120)

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/user1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio returned %d: %s", rec.Code, rec.Body.String())
	}

	var p model.Portfolio
	decodeInto(t, rec, &p)

	if p.OpenPositions != 1 {
		t.Errorf("expected 1 open position, got %d", p.OpenPositions)
	}
	if !p.Positions[0].CurrentPrice.Equal(d(120)) {
		t.Errorf("expected repriced position at 120, got %s", p.Positions[0].CurrentPrice)
	}
	if !p.Positions[0].UnrealizedPnL.Equal(d(200)) {
		t.Errorf("expected unrealized pnl 200, got %s", p.Positions[0].UnrealizedPnL)
	}

	// cash + sum(market_value) == total_value.
	sum := p.Account.CashBalance
	for _, pos := range p.Positions {
		sum = sum.Add(pos.MarketValue)
	}
	if !sum.Equal(p.TotalValue) {
		t.Errorf("cash + market values %s != total value %s", sum, p.TotalValue)
	}

	// Second read with an unchanged price must produce identical totals.
	rec2 := env.do(t, http.MethodGet, "/api/v1/portfolio/user1", nil)
	var p2 model.Portfolio
	decodeInto(t, rec2, &p2)
	if !p2.TotalValue.Equal(p.TotalValue) || !p2.TotalReturnPct.Equal(p.TotalReturnPct) {
		t.Errorf("portfolio read is not idempotent: %s vs %s", p.TotalValue, p2.TotalValue)
	}
}

func TestPortfolio_NewUser(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/fresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio returned %d: %s", rec.Code, rec.Body.String())
	}

	var p model.Portfolio
	decodeInto(t, rec, &p)

	if !p.TotalValue.Equal(model.StartingCash) {
		t.Errorf("expected total value %s, got %s", model.StartingCash, p.TotalValue)
	}
	if !p.TotalReturnPct.Equal(decimal.Zero) {
		t.Errorf("expected zero return, got %s", p.TotalReturnPct)
	}
	if p.Grade != "C" {
		t.Errorf("expected grade C at zero return, got %q", p.Grade)
	}
}

func TestLeaderboard_Ordering(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Three accounts with returns of +12%, -3%, and +30% on starting cash.
	seeds := []struct {
		user string
		cash float64
	}{
		{"alice", 112_000},
		{"bob", 97_000},
		{"carol", 130_000},
	}
	for _, s := range seeds {
		a, err := env.store.EnsureAccount(ctx, s.user)
		if err != nil {
			t.Fatalf("ensure %s: %v", s.user, err)
		}
		a.CashBalance = d(s.cash)
		if err := env.store.ApplyExecution(ctx, &model.ExecutionBatch{Account: a}); err != nil {
			t.Fatalf("seed %s: %v", s.user, err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard returned %d: %s", rec.Code, rec.Body.String())
	}

	var entries []model.LeaderboardEntry
	decodeInto(t, rec, &entries)

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	wantOrder := []string{"carol", "alice", "bob"}
	wantGrades := []string{"A+", "B+", "D"}
	for i := range wantOrder {
		if entries[i].UserID != wantOrder[i] {
			t.Errorf("rank %d: expected %s, got %s", i+1, wantOrder[i], entries[i].UserID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("expected rank %d, got %d", i+1, entries[i].Rank)
		}
		if entries[i].Grade != wantGrades[i] {
			t.Errorf("rank %d: expected grade %s, got %s", i+1, wantGrades[i], entries[i].Grade)
		}
	}
}

func TestLeaderboard_CappedAt25(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		if _, err := env.store.EnsureAccount(ctx, "user"+strconv.Itoa(i)); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	var entries []model.LeaderboardEntry
	decodeInto(t, rec, &entries)

	if len(entries) != 25 {
		t.Errorf("expected leaderboard capped at 25, got %d", len(entries))
	}
}

func TestOrderAndTransactionHistory(t *testing.T) {
	env := newTestEnv()

	env.execute(t, "user1", "AAPL", []model.StrategyLeg{{Action: "buy", Quantity: d(10)}})

	rec := env.do(t, http.MethodGet, "/api/v1/users/user1/orders", nil)
	var orders []model.Order
	decodeInto(t, rec, &orders)
	if len(orders) != 1 || orders[0].Status != model.OrderStatusFilled {
		t.Fatalf("expected one filled order, got %+v", orders)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/users/user1/transactions", nil)
	var txs []model.Transaction
	decodeInto(t, rec, &txs)
	if len(txs) != 1 || txs[0].Type != model.TxBuy {
		t.Fatalf("expected one BUY transaction, got %+v", txs)
	}

	// History endpoints return empty arrays, not null, for unknown users.
	rec = env.do(t, http.MethodGet, "/api/v1/users/nobody/orders", nil)
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array for unknown user, got %q", body)
	}
}
