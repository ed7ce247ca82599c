// Package book implements the position bookkeeping math: weighted-average
// entry prices, mark-to-market valuation, realized and unrealized P&L, and
// the performance grade scale.
//
// Everything here is pure and stateless — positions are passed as arguments,
// never stored. All monetary values use shopspring/decimal.
package book

import (
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// AverageEntry returns the weighted average entry price after adding
// fillQty at fillPrice to an existing position of oldQty at oldAvg:
//
//	(oldQty*oldAvg + fillQty*fillPrice) / (oldQty + fillQty)
func AverageEntry(oldQty, oldAvg, fillQty, fillPrice decimal.Decimal) decimal.Decimal {
	total := oldQty.Add(fillQty)
	if total.IsZero() {
		return fillPrice
	}
	return oldQty.Mul(oldAvg).Add(fillQty.Mul(fillPrice)).Div(total)
}

// MarketValue returns quantity * currentPrice.
func MarketValue(quantity, currentPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(currentPrice)
}

// sideSign returns +1 for long-like exposure and -1 for short. Calls and
// puts are premium-long instruments, so they mark like longs.
func sideSign(pt model.PositionType) decimal.Decimal {
	if pt == model.PositionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// UnrealizedPnL returns the mark-to-market P&L of an open position:
// (currentPrice - avgPrice) * quantity, with the sign flipped for shorts.
func UnrealizedPnL(pt model.PositionType, quantity, avgPrice, currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Sub(avgPrice).Mul(quantity).Mul(sideSign(pt))
}

// RealizedPnL returns the P&L locked in by closing quantity units at
// closePrice. Same formula as UnrealizedPnL; kept separate because close
// paths and mark paths diverge in what quantity they pass.
func RealizedPnL(pt model.PositionType, quantity, avgPrice, closePrice decimal.Decimal) decimal.Decimal {
	return closePrice.Sub(avgPrice).Mul(quantity).Mul(sideSign(pt))
}

// PnLPct returns the percentage move from avgPrice to currentPrice,
// sign-flipped for shorts. Zero if avgPrice is zero.
func PnLPct(pt model.PositionType, avgPrice, currentPrice decimal.Decimal) decimal.Decimal {
	if avgPrice.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(avgPrice).Div(avgPrice).Mul(hundred).Mul(sideSign(pt))
}

// ReturnPct returns (totalValue - startingBalance) / startingBalance * 100.
func ReturnPct(totalValue, startingBalance decimal.Decimal) decimal.Decimal {
	if startingBalance.IsZero() {
		return decimal.Zero
	}
	return totalValue.Sub(startingBalance).Div(startingBalance).Mul(hundred)
}

// gradeThresholds maps a minimum return percentage (inclusive) to a letter
// grade, checked in descending order.
var gradeThresholds = []struct {
	min   decimal.Decimal
	grade string
}{
	{decimal.NewFromInt(20), "A+"},
	{decimal.NewFromInt(15), "A"},
	{decimal.NewFromInt(10), "B+"},
	{decimal.NewFromInt(5), "B"},
	{decimal.NewFromInt(0), "C"},
	{decimal.NewFromInt(-5), "D"},
}

// Grade converts a return percentage into a letter grade.
func Grade(returnPct decimal.Decimal) string {
	for _, th := range gradeThresholds {
		if returnPct.GreaterThanOrEqual(th.min) {
			return th.grade
		}
	}
	return "F"
}
