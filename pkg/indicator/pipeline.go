package indicator

import (
	"fmt"

	"github.com/raykavin/backsweep/pkg/core"
)

// Series names available in a Set
const (
	Close      = "close"
	FastMA     = "fast_ma"
	SlowMA     = "slow_ma"
	RSI        = "rsi"
	ATR        = "atr"
	ATRMean    = "atr_mean"
	VWAP       = "vwap"
	ADX        = "adx"
	MACD       = "macd"
	MACDSignal = "macd_signal"
	MACDHist   = "macd_hist"
)

// Names lists every series computed by the pipeline
var Names = []string{Close, FastMA, SlowMA, RSI, ATR, ATRMean, VWAP, ADX, MACD, MACDSignal, MACDHist}

// Set is the collection of derived series aligned with a bar series.
// It is read-only once computed and can be shared between goroutines.
type Set struct {
	series  map[string]core.Series[float64]
	warmups map[string]int
	length  int
}

// NewSet builds a Set from precomputed series of equal length.
// The warm-up of each series is its count of leading undefined values.
func NewSet(series map[string][]float64) (*Set, error) {
	set := &Set{
		series:  make(map[string]core.Series[float64], len(series)),
		warmups: make(map[string]int, len(series)),
		length:  -1,
	}
	for name, values := range series {
		if set.length >= 0 && len(values) != set.length {
			return nil, fmt.Errorf("series %s has %d values, expected %d", name, len(values), set.length)
		}
		set.length = len(values)
		set.series[name] = values
		set.warmups[name] = core.Series[float64](values).FirstDefined()
	}
	if set.length < 0 {
		set.length = 0
	}
	return set, nil
}

// Len returns the number of bars every series is aligned to
func (s *Set) Len() int { return s.length }

// Get returns the series registered under name
func (s *Set) Get(name string) (core.Series[float64], bool) {
	values, ok := s.series[name]
	return values, ok
}

// Series returns the series registered under name, or nil
func (s *Set) Series(name string) core.Series[float64] {
	return s.series[name]
}

// Value returns the value of series name at index i, undefined when unknown or out of range
func (s *Set) Value(name string, i int) float64 {
	values, ok := s.series[name]
	if !ok || i < 0 || i >= len(values) {
		return core.Undefined()
	}
	return values[i]
}

// Warmup returns the number of leading undefined entries of series name
func (s *Set) Warmup(name string) int {
	return s.warmups[name]
}

// Compute derives every indicator from the series. The value at index i only
// depends on bars up to i.
func Compute(series *core.BarSeries, cfg Config) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("indicator config: %w", err)
	}

	n := series.Len()
	if warmup := cfg.MaxWarmup(); n <= warmup {
		return nil, fmt.Errorf("%w: %d bars, need more than %d", core.ErrInsufficientData, n, warmup)
	}

	maType, _ := cfg.maType()
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	volumes := series.Volumes()

	atr := ATRValues(highs, lows, closes, cfg.ATRPeriod)
	macdLine, macdSignal, macdHist := macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)

	set := &Set{
		series: map[string]core.Series[float64]{
			Close:      closes,
			FastMA:     MA(closes, cfg.FastPeriod, maType),
			SlowMA:     MA(closes, cfg.SlowPeriod, maType),
			RSI:        RSIValues(closes, cfg.RSIPeriod),
			ATR:        atr,
			ATRMean:    smoothDefined(atr, cfg.ATRPeriod, func(v []float64) []float64 { return SMA(v, cfg.ATRPeriod) }),
			VWAP:       vwap(highs, lows, closes, volumes, cfg),
			ADX:        ADXValues(highs, lows, closes, cfg.ADXPeriod),
			MACD:       macdLine,
			MACDSignal: macdSignal,
			MACDHist:   macdHist,
		},
		warmups: cfg.Warmups(),
		length:  n,
	}
	// leading zero-volume bars and flat windows can extend the undefined prefix
	for name, values := range set.series {
		set.warmups[name] = max(set.warmups[name], values.FirstDefined())
	}

	return set, nil
}

// macd returns the line, signal and histogram built from exponential averages
func macd(closes []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := undefinedSlice(len(closes))
	for i := slow - 1; i < len(closes); i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := smoothDefined(line, slow-1, func(v []float64) []float64 { return EMA(v, signal) })

	hist := undefinedSlice(len(closes))
	for i := range hist {
		if core.IsDefined(signalLine[i]) {
			hist[i] = line[i] - signalLine[i]
		}
	}

	return line, signalLine, hist
}
