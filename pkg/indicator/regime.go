package indicator

import "github.com/raykavin/backsweep/pkg/core"

// Regime classifies the market state at a bar
type Regime int

const (
	Ranging Regime = iota
	Trending
)

func (r Regime) String() string {
	switch r {
	case Trending:
		return "trending"
	default:
		return "ranging"
	}
}

// ClassifyRegime reports Trending when trend strength at index i is defined and at
// least threshold. An undefined strength counts as Ranging.
func ClassifyRegime(set *Set, i int, threshold float64) Regime {
	adx := set.Value(ADX, i)
	if core.IsDefined(adx) && adx >= threshold {
		return Trending
	}
	return Ranging
}
