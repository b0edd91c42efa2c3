package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
)

// RandomSearch samples parameter points uniformly within each dimension
type RandomSearch struct {
	parameters    []Parameter
	base          core.ParameterSet
	maxIterations int
	parallelism   int
	topN          int
	logger        logger.Logger
	progress      Progress
	rng           *rand.Rand
}

// NewRandomSearch creates a new random search optimizer
func NewRandomSearch(config *Config) (*RandomSearch, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(config.Parameters) == 0 {
		return nil, fmt.Errorf("at least one parameter must be provided")
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &RandomSearch{
		parameters:    config.Parameters,
		base:          config.Base,
		maxIterations: config.MaxIterations,
		parallelism:   config.Parallelism,
		topN:          config.TopN,
		logger:        config.Logger,
		progress:      config.Progress,
		rng:           rand.New(rand.NewSource(seed)),
	}, nil
}

// Optimize runs the random search optimization process
func (r *RandomSearch) Optimize(ctx context.Context, evaluator core.Evaluator) ([]*core.SweepResult, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	parameterSets, err := r.generateRandomParameterSets()
	if err != nil {
		return nil, err
	}

	logf(r.logger, "Starting random search with %d iterations", len(parameterSets))

	results, err := evaluateAll(ctx, evaluator, parameterSets, r.parallelism, r.progress)
	ranked := Rank(results, r.topN)
	if err != nil {
		return ranked, err
	}

	logf(r.logger, "Random search completed with %d results", len(results))
	return ranked, nil
}

// generateRandomParameterSets draws maxIterations points
func (r *RandomSearch) generateRandomParameterSets() ([]core.ParameterSet, error) {
	parameterSets := make([]core.ParameterSet, 0, r.maxIterations)

	for i := 0; i < r.maxIterations; i++ {
		assignment := make(Assignment, len(r.parameters))
		for _, param := range r.parameters {
			value, err := r.generateRandomValue(param)
			if err != nil {
				return nil, err
			}
			assignment[param.Name] = value
		}

		params, err := assignment.Apply(r.base)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", FormatAssignment(assignment), err)
		}
		parameterSets = append(parameterSets, params)
	}

	return parameterSets, nil
}

// generateRandomValue creates a random value for a parameter based on its type and range
func (r *RandomSearch) generateRandomValue(param Parameter) (any, error) {
	switch param.Type {
	case TypeInt:
		min, max, _, err := numericRange(param)
		if err != nil {
			return nil, err
		}
		lo, hi := int(min), int(max)
		return lo + r.rng.Intn(hi-lo+1), nil
	case TypeFloat:
		min, max, _, err := numericRange(param)
		if err != nil {
			return nil, err
		}
		return min + r.rng.Float64()*(max-min), nil
	case TypeCategorical:
		if len(param.Options) == 0 {
			return nil, fmt.Errorf("parameter %s of type %s must have options", param.Name, param.Type)
		}
		return param.Options[r.rng.Intn(len(param.Options))], nil
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}
