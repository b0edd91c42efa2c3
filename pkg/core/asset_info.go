package core

import "math"

// AssetInfo holds the trading increments of a pair
type AssetInfo struct {
	BaseAsset  string
	QuoteAsset string
	StepSize   float64
	TickSize   float64
}

// FloorToStep rounds a quantity down to the asset step size.
// A non-positive step size leaves the quantity untouched.
func FloorToStep(quantity, step float64) float64 {
	if step <= 0 {
		return quantity
	}
	return math.Floor(quantity/step+1e-9) * step
}
