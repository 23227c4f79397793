package numeric

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v half away from zero to the given number of decimal places.
// Non-finite input rounds to 0.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Fixed formats v with exactly places decimals.
func Fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
