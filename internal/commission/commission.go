// Package commission implements the engine's flat commission schedule.
//
// All monetary values use shopspring/decimal — never float64 for money.
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
)

// Amount returns the commission for a fill of quantity units at price:
// max(quantity * price * rate, minimum). Pure, never fails.
func Amount(quantity, price decimal.Decimal) decimal.Decimal {
	c := quantity.Mul(price).Mul(model.CommissionRate)
	if c.LessThan(model.MinCommission) {
		return model.MinCommission
	}
	return c
}
