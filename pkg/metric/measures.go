package metric

import (
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// ratioCap is reported by the ratio measures when there is nothing to divide by
const ratioCap = 10

// Mean calculates the arithmetic mean of the values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Sum adds all values
func Sum(values []float64) float64 {
	return lo.Sum(values)
}

// Payoff calculates the ratio of average wins to average losses.
// Returns the absolute value of the ratio.
func Payoff(values []float64) float64 {
	wins, losses := partition(values)
	if len(wins) == 0 {
		return 0
	}
	if len(losses) == 0 {
		return ratioCap
	}

	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 {
		return ratioCap
	}

	return math.Abs(stat.Mean(wins, nil) / avgLoss)
}

// ProfitFactor calculates the ratio of gross profits to gross losses.
func ProfitFactor(values []float64) float64 {
	wins, losses := partition(values)
	grossWin, grossLoss := lo.Sum(wins), lo.Sum(losses)

	if grossWin == 0 {
		return 0
	}
	if grossLoss == 0 {
		return ratioCap
	}

	return math.Abs(grossWin / grossLoss)
}

// SQN (System Quality Number) = sqrt(n) * mean / population standard deviation
func SQN(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}

	mean := stat.Mean(values, nil)
	variance := stat.PopVariance(values, nil)
	if variance == 0 {
		return 0
	}

	return math.Sqrt(n) * mean / math.Sqrt(variance)
}

// WinRate returns the fraction of strictly positive values
func WinRate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return float64(lo.CountBy(values, func(v float64) bool { return v > 0 })) / float64(len(values))
}

// MaxDrawdown returns the largest peak-to-trough decline of a value curve, as a fraction of the peak
func MaxDrawdown(curve []float64) float64 {
	peak, worst := 0.0, 0.0
	for i, v := range curve {
		if i == 0 || v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return worst
}

// partition separates results into wins and absolute losses. Zero counts as a loss.
func partition(values []float64) (wins []float64, losses []float64) {
	for _, value := range values {
		if value > 0 {
			wins = append(wins, value)
		} else {
			losses = append(losses, math.Abs(value))
		}
	}
	return wins, losses
}
