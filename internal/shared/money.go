package shared

import "github.com/shopspring/decimal"

// Tolerance absorbs rounding noise in balance and settlement comparisons.
var Tolerance = decimal.NewFromFloat(0.01)

// WithinTolerance reports whether a and b differ by less than Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}

// CoversWithTolerance reports whether paid settles total, allowing Tolerance underpayment.
func CoversWithTolerance(paid, total decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(total.Sub(Tolerance))
}
