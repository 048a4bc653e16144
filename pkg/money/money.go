package money

import "github.com/shopspring/decimal"

// Tolerance is the maximum absolute difference two amounts may show and
// still be considered reconciled after currency rounding.
var Tolerance = decimal.New(1, -2)

// Round normalizes an amount to 2 decimal places, half away from zero.
// Source columns are DECIMAL(10,2) quantized the same way.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Reconciles reports whether two amounts agree within Tolerance.
func Reconciles(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Rate returns num/den rounded to 4 decimal places. A zero denominator
// yields zero rather than an error so snapshot-wide ratios stay total.
func Rate(num, den int64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Round(4)
}
