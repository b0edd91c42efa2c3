package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
)

// GeneticConfig holds the settings of the generational optimizer
type GeneticConfig struct {
	PopulationSize int     `mapstructure:"ga_population_size"`
	Generations    int     `mapstructure:"ga_generations"`
	MutationRate   float64 `mapstructure:"ga_mutation_rate"`
	MutationSigma  float64 `mapstructure:"ga_mutation_sigma"`
	MinTrades      int     `mapstructure:"ga_min_trades_floor"`
	GeneMin        float64 `mapstructure:"ga_gene_min"`
	GeneMax        float64 `mapstructure:"ga_gene_max"`

	NetProfitWeight float64 `mapstructure:"ga_net_profit_weight"`
	AvgProfitWeight float64 `mapstructure:"ga_avg_profit_weight"`
	// Penalty is the fitness of individuals below MinTrades and of failed evaluations
	Penalty         float64 `mapstructure:"ga_penalty"`

	Seed        int64 `mapstructure:"ga_seed"`
	Parallelism int   `mapstructure:"parallelism"`

	// Base supplies thresholds, multiples and the predicates the weights apply to
	Base     core.ParameterSet `mapstructure:"-"`
	Logger   logger.Logger     `mapstructure:"-"`
	Progress Progress          `mapstructure:"-"`
}

// DefaultGeneticConfig returns a small population over weights in [0,1]
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize:  20,
		Generations:     10,
		MutationRate:    0.1,
		MutationSigma:   0.1,
		MinTrades:       5,
		GeneMin:         0,
		GeneMax:         1,
		NetProfitWeight: 1,
		AvgProfitWeight: 1,
		Penalty:         -1e9,
		Seed:            1,
		Parallelism:     1,
		Base:            core.DefaultParameterSet(),
	}
}

// Validate checks the optimizer settings
func (c GeneticConfig) Validate() error {
	switch {
	case c.PopulationSize < 3:
		return fmt.Errorf("population size must be at least 3, got %d", c.PopulationSize)
	case c.Generations < 1:
		return fmt.Errorf("generations must be at least 1, got %d", c.Generations)
	case c.MutationRate < 0 || c.MutationRate > 1:
		return fmt.Errorf("mutation rate must lie in [0,1], got %v", c.MutationRate)
	case c.MutationSigma < 0:
		return fmt.Errorf("mutation sigma cannot be negative, got %v", c.MutationSigma)
	case !(c.GeneMax > c.GeneMin):
		return fmt.Errorf("gene range is empty (%v..%v)", c.GeneMin, c.GeneMax)
	case c.GeneMin < 0 || c.GeneMax > 1:
		return fmt.Errorf("gene range must lie within [0,1], got %v..%v", c.GeneMin, c.GeneMax)
	case c.MinTrades < 0:
		return fmt.Errorf("minimum trades cannot be negative, got %d", c.MinTrades)
	case len(c.Base.BuyWeights)+len(c.Base.SellWeights) == 0:
		return fmt.Errorf("base parameter set has no weights to optimize")
	}
	return nil
}

// GenerationStats summarizes one generation
type GenerationStats struct {
	Generation int
	Best       float64
	Mean       float64
	BestSoFar  float64
	BestKey    string
}

// individual is a weight vector: buy weights followed by sell weights
type individual struct {
	genes   []float64
	result  *core.SweepResult
	fitness float64
	scored  bool
}

// Genetic evolves signal weights with tournament selection, uniform crossover,
// Gaussian mutation, single elitism and one random immigrant per generation
type Genetic struct {
	cfg     GeneticConfig
	rng     *rand.Rand
	history []GenerationStats
}

// NewGenetic creates a genetic optimizer
func NewGenetic(cfg GeneticConfig) (*Genetic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Genetic{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

// History returns the statistics of every completed generation
func (g *Genetic) History() []GenerationStats {
	out := make([]GenerationStats, len(g.history))
	copy(out, g.history)
	return out
}

// Fitness scores a result: a weighted sum of net and average profit, or the penalty
// when the evaluation failed or produced fewer trades than the floor
func (c GeneticConfig) Fitness(result *core.SweepResult) float64 {
	if result == nil || result.Failed() || result.Summary.TotalTrades < c.MinTrades {
		return c.Penalty
	}
	fitness := c.NetProfitWeight*result.Summary.NetProfit + c.AvgProfitWeight*result.Summary.AvgProfit
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return c.Penalty
	}
	return fitness
}

// Optimize runs every generation and returns all evaluated individuals ranked by fitness.
// Generations finished before a cancellation are kept.
func (g *Genetic) Optimize(ctx context.Context, evaluator core.Evaluator) ([]*core.SweepResult, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	g.history = g.history[:0]
	population := make([]*individual, g.cfg.PopulationSize)
	for i := range population {
		population[i] = g.randomIndividual()
	}

	var (
		evaluated []*core.SweepResult
		bestSoFar = math.Inf(-1)
	)

	for generation := 0; generation < g.cfg.Generations; generation++ {
		results, err := g.evaluate(ctx, evaluator, population)
		evaluated = append(evaluated, results...)
		if err != nil {
			logf(g.cfg.Logger, "Genetic search interrupted in generation %d", generation+1)
			return rankByFitness(evaluated), err
		}

		best := g.fittest(population)
		bestSoFar = math.Max(bestSoFar, best.fitness)
		stats := GenerationStats{
			Generation: generation,
			Best:       best.fitness,
			Mean:       lo.SumBy(population, func(ind *individual) float64 { return ind.fitness }) / float64(len(population)),
			BestSoFar:  bestSoFar,
			BestKey:    best.result.Key,
		}
		g.history = append(g.history, stats)
		logf(g.cfg.Logger, "Generation %d/%d: best %.4f, mean %.4f, best so far %.4f",
			generation+1, g.cfg.Generations, stats.Best, stats.Mean, stats.BestSoFar)

		if generation < g.cfg.Generations-1 {
			population = g.nextGeneration(population, best)
		}
	}

	return rankByFitness(evaluated), nil
}

// evaluate scores every individual that has no fitness yet; the elite keeps its own
func (g *Genetic) evaluate(ctx context.Context, evaluator core.Evaluator, population []*individual) ([]*core.SweepResult, error) {
	pending := lo.Filter(population, func(ind *individual, _ int) bool { return !ind.scored })
	sets := make([]core.ParameterSet, len(pending))
	for i, ind := range pending {
		sets[i] = g.parameters(ind.genes)
	}

	results, err := evaluateAll(ctx, evaluator, sets, g.cfg.Parallelism, g.cfg.Progress)
	if err != nil {
		return results, err
	}

	for i, ind := range pending {
		ind.result = results[i]
		ind.fitness = g.cfg.Fitness(ind.result)
		ind.result.Fitness = ind.fitness
		ind.scored = true
	}

	return results, nil
}

// parameters maps genes onto the base parameter set in weighted mode
func (g *Genetic) parameters(genes []float64) core.ParameterSet {
	params := g.cfg.Base.Clone()
	params.Mode = core.ModeWeighted

	buy := len(params.BuyWeights)
	params.BuyWeights = params.BuyWeights.WithValues(genes[:buy])
	params.SellWeights = params.SellWeights.WithValues(genes[buy:])
	return params
}

func (g *Genetic) genomeLength() int {
	return len(g.cfg.Base.BuyWeights) + len(g.cfg.Base.SellWeights)
}

func (g *Genetic) randomIndividual() *individual {
	genes := make([]float64, g.genomeLength())
	for i := range genes {
		genes[i] = g.cfg.GeneMin + g.rng.Float64()*(g.cfg.GeneMax-g.cfg.GeneMin)
	}
	return &individual{genes: genes}
}

// fittest returns the best individual, the earliest one on ties
func (g *Genetic) fittest(population []*individual) *individual {
	best := population[0]
	for _, ind := range population[1:] {
		if ind.fitness > best.fitness {
			best = ind
		}
	}
	return best
}

// nextGeneration keeps the elite unchanged, adds one random immigrant and fills
// the rest with offspring, truncating to the population size
func (g *Genetic) nextGeneration(population []*individual, elite *individual) []*individual {
	size := len(population)
	next := make([]*individual, 0, size+1)
	next = append(next, elite, g.randomIndividual())

	for len(next) < size {
		first, second := g.tournament(population), g.tournament(population)
		for _, child := range g.crossover(first, second) {
			g.mutate(child)
			next = append(next, child)
		}
	}

	return next[:size]
}

// tournament draws two distinct individuals and keeps the fitter one
func (g *Genetic) tournament(population []*individual) *individual {
	i := g.rng.Intn(len(population))
	j := g.rng.Intn(len(population) - 1)
	if j >= i {
		j++
	}

	a, b := population[i], population[j]
	if b.fitness > a.fitness || (b.fitness == a.fitness && j < i) {
		return b
	}
	return a
}

// crossover builds two children, each gene drawn from either parent by its own coin flip
func (g *Genetic) crossover(first, second *individual) [2]*individual {
	var children [2]*individual
	for c := range children {
		genes := make([]float64, len(first.genes))
		for i := range genes {
			if g.rng.Intn(2) == 0 {
				genes[i] = first.genes[i]
			} else {
				genes[i] = second.genes[i]
			}
		}
		children[c] = &individual{genes: genes}
	}
	return children
}

// mutate perturbs each gene with probability MutationRate and clips it into range
func (g *Genetic) mutate(ind *individual) {
	for i := range ind.genes {
		if g.rng.Float64() >= g.cfg.MutationRate {
			continue
		}
		v := ind.genes[i] + g.rng.NormFloat64()*g.cfg.MutationSigma
		ind.genes[i] = math.Max(g.cfg.GeneMin, math.Min(g.cfg.GeneMax, v))
	}
}

// rankByFitness orders results by fitness descending, ties by key
func rankByFitness(results []*core.SweepResult) []*core.SweepResult {
	ranked := make([]*core.SweepResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Fitness != ranked[j].Fitness {
			return ranked[i].Fitness > ranked[j].Fitness
		}
		return ranked[i].Key < ranked[j].Key
	})
	return ranked
}
