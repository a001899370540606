package tools

import (
	"github.com/shopspring/decimal"
)

const BILLION int64 = 1000000000

// Round rounds half away from zero to the given number of places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Percent returns part/total*100 rounded to two places, 0 for an empty total.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2).
		InexactFloat64()
}

// Sum adds floats without accumulating binary rounding error.
func Sum(values ...float64) decimal.Decimal {
	s := decimal.Zero
	for _, v := range values {
		s = s.Add(decimal.NewFromFloat(v))
	}
	return s
}

// UnitsNanoToFloat converts a units+nano fixed point pair (T-Invest
// Quotation/MoneyValue) to float.
func UnitsNanoToFloat(units int64, nano int32) float64 {
	return decimal.NewFromInt(units).
		Add(decimal.New(int64(nano), 0).Div(decimal.NewFromInt(BILLION))).
		InexactFloat64()
}
