package ledger

import (
	"github.com/shopspring/decimal"
)

// ConversionFunc maps a payment amount in minor currency units to credit
// units. Implementations must be pure and deterministic.
type ConversionFunc func(amountCents int64) int64

// DefaultConversion grants rate credits per whole currency unit, truncating
// toward zero. At the default rate of 100 one cent converts to exactly one
// credit; lower rates drop the remainder.
func DefaultConversion(creditRate int64) ConversionFunc {
	rate := decimal.NewFromInt(creditRate)
	hundred := decimal.NewFromInt(100)
	return func(amountCents int64) int64 {
		credits := decimal.NewFromInt(amountCents).Mul(rate).Div(hundred)
		return credits.IntPart()
	}
}
