package optimizer

import (
	"context"
	"fmt"
	"math"

	"github.com/StudioSol/set"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
)

// GridSearch evaluates every point of the Cartesian product of the parameter values
type GridSearch struct {
	parameters      []Parameter
	base            core.ParameterSet
	maxCombinations int
	parallelism     int
	topN            int
	log             logger.Logger
	progress        Progress
}

// NewGridSearch creates a new grid search optimizer
func NewGridSearch(config *Config) (*GridSearch, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(config.Parameters) == 0 {
		return nil, fmt.Errorf("at least one parameter must be provided")
	}

	return &GridSearch{
		parameters:      config.Parameters,
		base:            config.Base,
		maxCombinations: config.MaxCombinations,
		parallelism:     config.Parallelism,
		topN:            config.TopN,
		log:             config.Logger,
		progress:        config.Progress,
	}, nil
}

// Combinations returns the number of grid points, the product of every dimension size
func (g *GridSearch) Combinations() (int, error) {
	total := 1
	for _, param := range g.parameters {
		values, err := parameterValues(param)
		if err != nil {
			return 0, err
		}
		total *= len(values)
	}
	return total, nil
}

// Optimize evaluates every grid point exactly once and returns the ranked results.
// When ctx is cancelled the results finished so far are returned with the context error.
func (g *GridSearch) Optimize(ctx context.Context, evaluator core.Evaluator) ([]*core.SweepResult, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	total, err := g.Combinations()
	if err != nil {
		return nil, err
	}
	if g.maxCombinations > 0 && total > g.maxCombinations {
		return nil, fmt.Errorf("grid has %d combinations, more than the limit of %d", total, g.maxCombinations)
	}

	parameterSets, err := g.generateParameterSets()
	if err != nil {
		return nil, err
	}

	logf(g.log, "Starting grid search with %d parameter combinations", len(parameterSets))

	results, err := evaluateAll(ctx, evaluator, parameterSets, g.parallelism, g.progress)
	ranked := Rank(results, g.topN)
	if err != nil {
		logf(g.log, "Grid search interrupted after %d of %d evaluations", len(results), len(parameterSets))
		return ranked, err
	}

	logf(g.log, "Grid search completed with %d results", len(results))
	return ranked, nil
}

// generateParameterSets expands every combination of parameter values into a parameter set
func (g *GridSearch) generateParameterSets() ([]core.ParameterSet, error) {
	assignments := []Assignment{{}}

	for _, param := range g.parameters {
		values, err := parameterValues(param)
		if err != nil {
			return nil, err
		}

		next := make([]Assignment, 0, len(assignments)*len(values))
		for _, assignment := range assignments {
			for _, value := range values {
				point := make(Assignment, len(assignment)+1)
				for k, v := range assignment {
					point[k] = v
				}
				point[param.Name] = value
				next = append(next, point)
			}
		}
		assignments = next
	}

	seen := set.NewLinkedHashSetString()
	sets := make([]core.ParameterSet, 0, len(assignments))
	for _, assignment := range assignments {
		params, err := assignment.Apply(g.base)
		if err != nil {
			return nil, fmt.Errorf("grid point %s: %w", FormatAssignment(assignment), err)
		}

		// integer fields round fractional values, so distinct points may collapse
		key := params.Key()
		if seen.InArray(key) {
			logf(g.log, "Grid point %s repeats an earlier point, skipped", FormatAssignment(assignment))
			continue
		}
		seen.Add(key)
		sets = append(sets, params)
	}

	return sets, nil
}

// parameterValues lists the distinct values of one dimension
func parameterValues(param Parameter) ([]any, error) {
	switch param.Type {
	case TypeInt:
		return intValues(param)
	case TypeFloat:
		return floatValues(param)
	case TypeCategorical:
		if len(param.Options) == 0 {
			return nil, fmt.Errorf("parameter %s of type %s must have options", param.Name, param.Type)
		}
		seen := set.NewLinkedHashSetString()
		values := make([]any, 0, len(param.Options))
		for _, option := range param.Options {
			key := fmt.Sprintf("%T:%v", option, option)
			if seen.InArray(key) {
				continue
			}
			seen.Add(key)
			values = append(values, option)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

// intValues creates integer values within the specified range and step
func intValues(param Parameter) ([]any, error) {
	min, max, step, err := numericRange(param)
	if err != nil {
		return nil, err
	}

	lo, hi, inc := int(math.Round(min)), int(math.Round(max)), int(math.Round(step))
	if inc < 1 {
		return nil, fmt.Errorf("parameter %s step must be a positive integer", param.Name)
	}

	values := make([]any, 0, (hi-lo)/inc+1)
	for v := lo; v <= hi; v += inc {
		values = append(values, v)
	}
	return values, nil
}

// floatValues creates float values within the specified range. Values are computed
// from the step index so rounding never drops or repeats a point.
func floatValues(param Parameter) ([]any, error) {
	min, max, step, err := numericRange(param)
	if err != nil {
		return nil, err
	}

	count := int(math.Floor((max-min)/step+1e-9)) + 1
	values := make([]any, 0, count)
	for k := 0; k < count; k++ {
		v := min + float64(k)*step
		// trim binary noise such as 0.30000000000000004
		values = append(values, math.Round(v*1e9)/1e9)
	}
	return values, nil
}

func numericRange(param Parameter) (min, max, step float64, err error) {
	if min, err = number(param.Name, "min", param.Min); err != nil {
		return
	}
	if max, err = number(param.Name, "max", param.Max); err != nil {
		return
	}
	if param.Step == nil {
		step = 1
	} else if step, err = number(param.Name, "step", param.Step); err != nil {
		return
	}

	if max < min {
		err = fmt.Errorf("parameter %s max (%v) is below min (%v)", param.Name, max, min)
	} else if !(step > 0) {
		err = fmt.Errorf("parameter %s step must be positive", param.Name)
	}
	return
}

func number(name, field string, value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %s %s value must be numeric, got %T", name, field, value)
	}
}
