package core

import (
	"context"
	"time"
)

// Feeder provides historical bars for an instrument
type Feeder interface {
	BarsByLimit(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
	BarsByPeriod(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Bar, error)
}

// ResultStorage persists ranked results of a search run
type ResultStorage interface {
	SaveResults(runID string, results []*SweepResult) error
	LoadResults(runID string) ([]*SweepResult, error)
	Runs() ([]string, error)
}

// Notifier delivers messages about finished runs
type Notifier interface {
	Notify(message string)
	OnError(err error)
}

// Evaluator scores a single parameter set
type Evaluator interface {
	Evaluate(ctx context.Context, params ParameterSet) (*SweepResult, error)
}

// Optimizer searches a parameter space using an Evaluator
type Optimizer interface {
	Optimize(ctx context.Context, evaluator Evaluator) ([]*SweepResult, error)
}
