package metric

import (
	"math/rand"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval represents the confidence interval calculated by the bootstrap method.
type BootstrapInterval struct {
	Lower  float64 // Lower bound of the confidence interval
	Upper  float64 // Upper bound of the confidence interval
	StdDev float64 // Standard deviation of the bootstrap samples
	Mean   float64 // Mean of the bootstrap samples
}

// BootstrapOption customizes a bootstrap run
type BootstrapOption func(*bootstrapOptions)

type bootstrapOptions struct {
	rng *rand.Rand
}

// WithRand draws the resamples from rng, making the interval reproducible
func WithRand(rng *rand.Rand) BootstrapOption {
	return func(o *bootstrapOptions) { o.rng = rng }
}

// Bootstrap calculates the confidence interval of a measure over trade results.
// Parameters:
//   - values: per-trade results
//   - measure: the statistic applied to each resample, e.g. Mean or ProfitFactor
//   - sampleSize: number of resamples
//   - confidence: confidence level (e.g., 0.95 for 95% confidence)
func Bootstrap(values []float64, measure func([]float64) float64, sampleSize int,
	confidence float64, opts ...BootstrapOption) BootstrapInterval {

	if len(values) == 0 || sampleSize <= 0 {
		return BootstrapInterval{}
	}

	options := bootstrapOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	data := resample(values, measure, sampleSize, options.rng)

	tail := 1 - confidence
	sort.Float64s(data)

	mean, stdDev := stat.MeanStdDev(data, nil)
	if sampleSize == 1 {
		stdDev = 0
	}

	return BootstrapInterval{
		Lower:  stat.Quantile(tail/2, stat.LinInterp, data, nil),
		Upper:  stat.Quantile(1-tail/2, stat.LinInterp, data, nil),
		StdDev: stdDev,
		Mean:   mean,
	}
}

// resample draws sampleSize samples with replacement and applies measure to each
func resample(values []float64, measure func([]float64) float64, sampleSize int, rng *rand.Rand) []float64 {
	data := make([]float64, 0, sampleSize)
	samples := make([]float64, len(values))

	for i := 0; i < sampleSize; i++ {
		for j := range samples {
			if rng != nil {
				samples[j] = values[rng.Intn(len(values))]
			} else {
				samples[j] = lo.Sample(values)
			}
		}
		data = append(data, measure(samples))
	}

	return data
}
