package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
	"github.com/raykavin/backsweep/pkg/logger"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/simulator"
)

// BacktestEvaluator simulates a parameter set over a fixed series.
// The series and indicator set are read-only and shared by every evaluation.
type BacktestEvaluator struct {
	series    *core.BarSeries
	set       *indicator.Set
	simConfig simulator.Config
	weights   metric.ScoreWeights
	logger    logger.Logger
}

// NewBacktestEvaluator creates a new evaluator for the given series and indicators
func NewBacktestEvaluator(
	series *core.BarSeries,
	set *indicator.Set,
	simConfig simulator.Config,
	weights metric.ScoreWeights,
	logger logger.Logger,
) (*BacktestEvaluator, error) {
	if series == nil || set == nil {
		return nil, fmt.Errorf("series and indicator set are required")
	}
	if series.Len() != set.Len() {
		return nil, fmt.Errorf("indicator set has %d values for %d bars", set.Len(), series.Len())
	}
	if err := simConfig.Validate(); err != nil {
		return nil, err
	}

	return &BacktestEvaluator{
		series:    series,
		set:       set,
		simConfig: simConfig,
		weights:   weights,
		logger:    logger,
	}, nil
}

// Evaluate runs one simulation. Failures of the parameter set are reported in the
// result, the only error returned is the context error.
func (e *BacktestEvaluator) Evaluate(ctx context.Context, params core.ParameterSet) (*core.SweepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	key := params.Key()

	run, err := simulator.Run(e.series, e.set, params, e.simConfig)
	if err != nil {
		if e.logger != nil {
			e.logger.WithField("key", key).WithError(err).Debug("evaluation failed")
		}
		result := failedResult(params, err)
		result.Duration = time.Since(startTime)
		return result, nil
	}

	summary := metric.Summarize(run.Trades, run.Equity, e.weights)

	return &core.SweepResult{
		Parameters: params,
		Key:        key,
		Trades:     run.Trades,
		Equity:     run.Equity,
		Summary:    summary,
		Score:      summary.Score,
		Duration:   time.Since(startTime),
	}, nil
}
