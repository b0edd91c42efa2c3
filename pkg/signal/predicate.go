package signal

import (
	"fmt"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
)

// Context is the bar being looked at plus everything a predicate may read.
// EntryPrice is undefined while flat.
type Context struct {
	Set        *indicator.Set
	Index      int
	Params     *core.ParameterSet
	EntryPrice float64
}

func (c Context) value(name string) float64 {
	return c.Set.Value(name, c.Index)
}

// Predicate is a boolean condition over the indicator set at one bar.
// A predicate whose inputs are undefined does not hold.
type Predicate interface {
	Kind() core.PredicateKind
	Holds(c Context) bool
}

// New returns the predicate of the given kind
func New(kind core.PredicateKind) (Predicate, error) {
	switch kind {
	case core.PredicateTrendUp:
		return trendUp{}, nil
	case core.PredicateTrendDown:
		return trendDown{}, nil
	case core.PredicateCrossUp:
		return crossUp{}, nil
	case core.PredicateRSIInBounds:
		return rsiInBounds{}, nil
	case core.PredicateRSINeutral:
		return rsiNeutral{}, nil
	case core.PredicateRSIOverbought:
		return rsiOverbought{}, nil
	case core.PredicatePriceAboveVWAP:
		return priceAboveVWAP{}, nil
	case core.PredicatePriceBelowVWAP:
		return priceBelowVWAP{}, nil
	case core.PredicateTrendStrong:
		return trendStrong{}, nil
	case core.PredicateTrendWeak:
		return trendWeak{}, nil
	case core.PredicateMACDPositive:
		return macdPositive{}, nil
	case core.PredicateMACDNegative:
		return macdNegative{}, nil
	case core.PredicateATRStop:
		return atrStop{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown predicate %q", core.ErrDegenerateParameterSet, kind)
	}
}

// RSIBounds picks the narrow bounds when volatility is above its average, else the wide ones
func RSIBounds(c Context) core.Bounds {
	// false on undefined input, which selects the wide bounds
	if c.value(indicator.ATR) > c.value(indicator.ATRMean) {
		return c.Params.RSINarrow
	}
	return c.Params.RSIWide
}

// defined reports whether every value carries data
func defined(values ...float64) bool {
	for _, v := range values {
		if !core.IsDefined(v) {
			return false
		}
	}
	return true
}

type trendUp struct{}

func (trendUp) Kind() core.PredicateKind { return core.PredicateTrendUp }
func (trendUp) Holds(c Context) bool {
	fast, slow := c.value(indicator.FastMA), c.value(indicator.SlowMA)
	return defined(fast, slow) && fast > slow
}

type trendDown struct{}

func (trendDown) Kind() core.PredicateKind { return core.PredicateTrendDown }
func (trendDown) Holds(c Context) bool {
	fast, slow := c.value(indicator.FastMA), c.value(indicator.SlowMA)
	return defined(fast, slow) && fast < slow
}

type crossUp struct{}

func (crossUp) Kind() core.PredicateKind { return core.PredicateCrossUp }
func (crossUp) Holds(c Context) bool {
	return c.Set.Series(indicator.FastMA).CrossoverAt(c.Set.Series(indicator.SlowMA), c.Index)
}

type rsiInBounds struct{}

func (rsiInBounds) Kind() core.PredicateKind { return core.PredicateRSIInBounds }
func (rsiInBounds) Holds(c Context) bool {
	rsi := c.value(indicator.RSI)
	return defined(rsi) && RSIBounds(c).Contains(rsi)
}

// NeutralRSI is the fixed oscillator band of the conservative entry preset
var NeutralRSI = core.Bounds{Lower: 45, Upper: 60}

type rsiNeutral struct{}

func (rsiNeutral) Kind() core.PredicateKind { return core.PredicateRSINeutral }
func (rsiNeutral) Holds(c Context) bool {
	rsi := c.value(indicator.RSI)
	return defined(rsi) && NeutralRSI.Contains(rsi)
}

type rsiOverbought struct{}

func (rsiOverbought) Kind() core.PredicateKind { return core.PredicateRSIOverbought }
func (rsiOverbought) Holds(c Context) bool {
	rsi := c.value(indicator.RSI)
	return defined(rsi) && rsi > c.Params.RSIOverbought
}

type priceAboveVWAP struct{}

func (priceAboveVWAP) Kind() core.PredicateKind { return core.PredicatePriceAboveVWAP }
func (priceAboveVWAP) Holds(c Context) bool {
	price, vwap := c.value(indicator.Close), c.value(indicator.VWAP)
	return defined(price, vwap) && price > vwap
}

type priceBelowVWAP struct{}

func (priceBelowVWAP) Kind() core.PredicateKind { return core.PredicatePriceBelowVWAP }
func (priceBelowVWAP) Holds(c Context) bool {
	price, vwap := c.value(indicator.Close), c.value(indicator.VWAP)
	return defined(price, vwap) && price < vwap
}

type trendStrong struct{}

func (trendStrong) Kind() core.PredicateKind { return core.PredicateTrendStrong }
func (trendStrong) Holds(c Context) bool {
	adx := c.value(indicator.ADX)
	return defined(adx) && adx > c.Params.TrendStrengthThreshold
}

type trendWeak struct{}

func (trendWeak) Kind() core.PredicateKind { return core.PredicateTrendWeak }
func (trendWeak) Holds(c Context) bool {
	adx := c.value(indicator.ADX)
	return defined(adx) && adx < c.Params.TrendStrengthThreshold
}

type macdPositive struct{}

func (macdPositive) Kind() core.PredicateKind { return core.PredicateMACDPositive }
func (macdPositive) Holds(c Context) bool {
	hist := c.value(indicator.MACDHist)
	return defined(hist) && hist > 0
}

type macdNegative struct{}

func (macdNegative) Kind() core.PredicateKind { return core.PredicateMACDNegative }
func (macdNegative) Holds(c Context) bool {
	hist := c.value(indicator.MACDHist)
	return defined(hist) && hist < 0
}

// atrStop only holds while a position is open
type atrStop struct{}

func (atrStop) Kind() core.PredicateKind { return core.PredicateATRStop }
func (atrStop) Holds(c Context) bool {
	price, atr := c.value(indicator.Close), c.value(indicator.ATR)
	return defined(price, atr, c.EntryPrice) && price < c.EntryPrice-c.Params.ExitStopMultiple*atr
}
