package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
	"github.com/raykavin/backsweep/pkg/signal"
)

// Parameter represents one dimension of the search space
type Parameter struct {
	Name        string        `mapstructure:"name"`        // Name understood by core.ParameterSet.Apply, or buy_preset/sell_preset
	Description string        `mapstructure:"description"` // Description of what the parameter does
	Default     any           `mapstructure:"default"`     // Default value
	Min         any           `mapstructure:"min"`         // Minimum value (for numeric parameters)
	Max         any           `mapstructure:"max"`         // Maximum value (for numeric parameters)
	Step        any           `mapstructure:"step"`        // Step size (for numeric parameters in grid search)
	Options     []any         `mapstructure:"options"`     // Possible values (for categorical parameters)
	Type        ParameterType `mapstructure:"type"`        // Type of the parameter
}

// ParameterType defines the data type of a parameter
type ParameterType string

const (
	// TypeInt represents integer parameters
	TypeInt ParameterType = "int"
	// TypeFloat represents floating-point parameters
	TypeFloat ParameterType = "float"
	// TypeCategorical represents categorical parameters with predefined options
	TypeCategorical ParameterType = "categorical"
)

// Dimension names that select a whole preset instead of a single field
const (
	BuyPresetParam  = "buy_preset"
	SellPresetParam = "sell_preset"
)

// Assignment maps dimension names to the values of one search point
type Assignment map[string]any

// Apply returns a copy of base with every value of the assignment set, in name order
func (a Assignment) Apply(base core.ParameterSet) (core.ParameterSet, error) {
	params := base.Clone()

	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := a[name]
		switch name {
		case BuyPresetParam, SellPresetParam:
			presetName, ok := value.(string)
			if !ok {
				return params, fmt.Errorf("parameter %s expects a preset name, got %T", name, value)
			}
			if err := applyPreset(&params, name, presetName); err != nil {
				return params, err
			}
		default:
			if err := params.Apply(name, value); err != nil {
				return params, err
			}
		}
	}

	return params, nil
}

func applyPreset(params *core.ParameterSet, dimension, name string) error {
	lookup := signal.BuyPreset
	if dimension == SellPresetParam {
		lookup = signal.SellPreset
	}

	preset, err := lookup(name)
	if err != nil {
		return err
	}

	params.Mode = core.ModeWeighted
	if dimension == BuyPresetParam {
		params.BuyWeights, params.BuyThreshold = preset.Weights, preset.Threshold
	} else {
		params.SellWeights, params.SellThreshold = preset.Weights, preset.Threshold
	}
	return nil
}

// Progress is called after every finished evaluation
type Progress func(result *core.SweepResult, done, total int)

// Config holds configuration for the search process
type Config struct {
	// Parameters to optimize
	Parameters []Parameter
	// Base parameter set every search point starts from
	Base core.ParameterSet
	// Maximum number of iterations (random search)
	MaxIterations int
	// Largest grid accepted; 0 disables the guard
	MaxCombinations int
	// Number of parallel evaluations
	Parallelism int
	// Seed of the random source; 0 picks a time based seed
	Seed int64
	// Logger instance
	Logger logger.Logger
	// Called after each evaluation
	Progress Progress
	// Top N results to return; 0 returns all
	TopN int
}

// NewConfig creates a default configuration
func NewConfig() *Config {
	return &Config{
		Parameters:    []Parameter{},
		Base:          core.DefaultParameterSet(),
		MaxIterations: 100,
		Parallelism:   1,
	}
}

// WithParameters adds parameters to the configuration
func (c *Config) WithParameters(params ...Parameter) *Config {
	c.Parameters = append(c.Parameters, params...)
	return c
}

// WithBase sets the parameter set search points start from
func (c *Config) WithBase(base core.ParameterSet) *Config {
	c.Base = base
	return c
}

// WithMaxIterations sets the maximum number of iterations
func (c *Config) WithMaxIterations(iterations int) *Config {
	c.MaxIterations = iterations
	return c
}

// WithMaxCombinations sets the largest grid accepted
func (c *Config) WithMaxCombinations(n int) *Config {
	c.MaxCombinations = n
	return c
}

// WithParallelism sets the number of parallel evaluations
func (c *Config) WithParallelism(n int) *Config {
	c.Parallelism = n
	return c
}

// WithSeed sets the seed of the random source
func (c *Config) WithSeed(seed int64) *Config {
	c.Seed = seed
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger logger.Logger) *Config {
	c.Logger = logger
	return c
}

// WithProgress sets the progress callback
func (c *Config) WithProgress(progress Progress) *Config {
	c.Progress = progress
	return c
}

// WithTopN sets the number of top results to return
func (c *Config) WithTopN(n int) *Config {
	c.TopN = n
	return c
}

// evaluateAll runs the evaluator over every parameter set on a bounded worker pool.
// Results keep the order of sets. Cancellation is checked between evaluations;
// on interruption the finished results are returned together with the context error.
func evaluateAll(
	ctx context.Context,
	evaluator core.Evaluator,
	sets []core.ParameterSet,
	parallelism int,
	progress Progress,
) ([]*core.SweepResult, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		results   = make([]*core.SweepResult, len(sets))
		done      int
		mutex     sync.Mutex
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, parallelism)
		stopErr   error
	)

	for i, params := range sets {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		wg.Add(1)
		semaphore <- struct{}{} // Acquire semaphore

		go func(index int, params core.ParameterSet) {
			defer wg.Done()
			defer func() { <-semaphore }() // Release semaphore

			result, err := evaluator.Evaluate(ctx, params)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return
				}
				// a broken evaluation never aborts the sweep
				result = failedResult(params, err)
			}

			mutex.Lock()
			results[index] = result
			done++
			finished := done
			mutex.Unlock()

			if progress != nil {
				progress(result, finished, len(sets))
			}
		}(i, params)
	}

	wg.Wait()

	collected := make([]*core.SweepResult, 0, len(results))
	for _, result := range results {
		if result != nil {
			collected = append(collected, result)
		}
	}
	if stopErr == nil && len(collected) < len(sets) {
		stopErr = ctx.Err()
	}

	return collected, stopErr
}

func failedResult(params core.ParameterSet, err error) *core.SweepResult {
	key := params.Key()
	return &core.SweepResult{
		Parameters: params,
		Key:        key,
		Err:        &core.EvaluationError{Key: key, Err: err},
		ErrMessage: err.Error(),
	}
}

func logf(log logger.Logger, format string, args ...any) {
	if log != nil {
		log.Infof(format, args...)
	}
}
