package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/raykavin/backsweep/pkg/core"
)

// MaType represents moving average type
type MaType = talib.MaType

// Moving average type constants
const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
)

// go-talib fills the lookback region with zeros. Every wrapper below replaces
// that region with the undefined marker so callers never mistake it for data.

// MA calculates Moving Average with specified type
func MA(input []float64, period int, maType MaType) []float64 {
	return mask(talib.Ma(input, period, maType), period-1)
}

// EMA calculates Exponential Moving Average
func EMA(input []float64, period int) []float64 {
	return mask(talib.Ema(input, period), period-1)
}

// SMA calculates Simple Moving Average
func SMA(input []float64, period int) []float64 {
	return mask(talib.Sma(input, period), period-1)
}

// RSIValues calculates Relative Strength Index, bounded to [0,100].
// A window without any losses reads 100, flat prices included.
func RSIValues(input []float64, period int) []float64 {
	out := mask(talib.Rsi(input, period), period)

	moved := false
	for i := range out {
		if i > 0 && input[i] != input[i-1] {
			moved = true
		}
		if !core.IsDefined(out[i]) {
			continue
		}
		// talib reports 0 when both averages are zero
		if out[i] == 0 && !moved {
			out[i] = 100
		}
		out[i] = math.Max(0, math.Min(100, out[i]))
	}
	return out
}

// ATRValues calculates Average True Range
func ATRValues(high, low, close []float64, period int) []float64 {
	return mask(talib.Atr(high, low, close, period), period)
}

// ADXValues calculates Average Directional Movement Index
func ADXValues(high, low, close []float64, period int) []float64 {
	return mask(talib.Adx(high, low, close, period), 2*period-1)
}

// SUM calculates the rolling sum over a period
func SUM(input []float64, period int) []float64 {
	return mask(talib.Sum(input, period), period-1)
}

// TypicalPrice calculates (high + low + close) / 3
func TypicalPrice(high, low, close []float64) []float64 {
	return talib.TypPrice(high, low, close)
}

// Mult multiplies two series element by element
func Mult(a, b []float64) []float64 {
	return talib.Mult(a, b)
}

// smoothDefined applies fn to the defined tail of input starting at from, and
// aligns the result back to the original length.
func smoothDefined(input []float64, from int, fn func([]float64) []float64) []float64 {
	out := undefinedSlice(len(input))
	if from >= len(input) {
		return out
	}
	copy(out[from:], fn(input[from:]))
	return out
}

func mask(values []float64, warmup int) []float64 {
	for i := 0; i < warmup && i < len(values); i++ {
		values[i] = core.Undefined()
	}
	return values
}

func undefinedSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = core.Undefined()
	}
	return out
}
