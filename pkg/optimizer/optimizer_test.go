package optimizer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/simulator"
)

// mockEvaluator scores a parameter set without simulating it
type mockEvaluator struct {
	mu     sync.Mutex
	calls  int
	keys   []string
	fail   func(core.ParameterSet) error
	after  func(calls int)
	trades int
}

func (m *mockEvaluator) Evaluate(ctx context.Context, params core.ParameterSet) (*core.SweepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	calls := m.calls
	m.keys = append(m.keys, params.Key())
	m.mu.Unlock()

	if m.after != nil {
		defer m.after(calls)
	}

	if m.fail != nil {
		if err := m.fail(params); err != nil {
			return nil, err
		}
	}

	trades := m.trades
	if trades == 0 {
		trades = 10
	}
	netProfit := params.TakeProfitMultiple - params.StopLossMultiple + float64(params.MaxHoldBars)/100
	for _, w := range params.BuyWeights {
		netProfit += w.Weight
	}

	return &core.SweepResult{
		Parameters: params,
		Key:        params.Key(),
		Summary: core.Summary{
			TotalTrades: trades,
			NetProfit:   netProfit,
			AvgProfit:   netProfit / float64(trades),
			HasTrades:   true,
		},
		Score:    netProfit,
		Duration: time.Millisecond,
	}, nil
}

func gridParameters() []Parameter {
	return []Parameter{
		{Name: "tp_multiple", Min: 1.0, Max: 2.0, Step: 0.5, Type: TypeFloat},
		{Name: "max_hold_bars", Min: 10, Max: 30, Step: 10, Type: TypeInt},
		{Name: "mode", Options: []any{"boolean", "weighted", "boolean"}, Type: TypeCategorical},
	}
}

func TestGridSearch(t *testing.T) {
	t.Run("evaluates every combination once", func(t *testing.T) {
		evaluator := &mockEvaluator{}
		grid, err := NewGridSearch(NewConfig().WithParameters(gridParameters()...).WithParallelism(4))
		require.NoError(t, err)

		total, err := grid.Combinations()
		require.NoError(t, err)
		assert.Equal(t, 18, total)

		results, err := grid.Optimize(context.Background(), evaluator)
		require.NoError(t, err)
		require.Len(t, results, 18)
		assert.Equal(t, 18, evaluator.calls)

		seen := map[string]bool{}
		for _, result := range results {
			assert.False(t, seen[result.Key], "duplicate key %s", result.Key)
			seen[result.Key] = true
		}

		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
		assert.Equal(t, 2.0, results[0].Parameters.TakeProfitMultiple)
		assert.Equal(t, 30, results[0].Parameters.MaxHoldBars)
	})

	t.Run("top n", func(t *testing.T) {
		grid, err := NewGridSearch(NewConfig().WithParameters(gridParameters()...).WithTopN(5))
		require.NoError(t, err)

		results, err := grid.Optimize(context.Background(), &mockEvaluator{})
		require.NoError(t, err)
		assert.Len(t, results, 5)
	})

	t.Run("combination limit", func(t *testing.T) {
		evaluator := &mockEvaluator{}
		grid, err := NewGridSearch(NewConfig().WithParameters(gridParameters()...).WithMaxCombinations(10))
		require.NoError(t, err)

		_, err = grid.Optimize(context.Background(), evaluator)
		require.Error(t, err)
		assert.Zero(t, evaluator.calls)
	})

	t.Run("failed evaluations do not stop the sweep", func(t *testing.T) {
		evaluator := &mockEvaluator{fail: func(p core.ParameterSet) error {
			if p.TakeProfitMultiple == 1.5 {
				return errors.New("boom")
			}
			return nil
		}}
		grid, err := NewGridSearch(NewConfig().WithParameters(gridParameters()...))
		require.NoError(t, err)

		results, err := grid.Optimize(context.Background(), evaluator)
		require.NoError(t, err)
		require.Len(t, results, 18)

		failed := 0
		for _, result := range results {
			if result.Failed() {
				failed++
				assert.Equal(t, 1.5, result.Parameters.TakeProfitMultiple)
				assert.Contains(t, result.ErrMessage, "boom")
			}
		}
		assert.Equal(t, 6, failed)
		for _, result := range results[len(results)-failed:] {
			assert.True(t, result.Failed(), "failures rank last")
		}
	})

	t.Run("cancellation returns partial results", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		evaluator := &mockEvaluator{after: func(calls int) {
			if calls == 3 {
				cancel()
			}
		}}
		grid, err := NewGridSearch(NewConfig().WithParameters(gridParameters()...).WithParallelism(1))
		require.NoError(t, err)

		results, err := grid.Optimize(ctx, evaluator)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, results, 3)
	})

	t.Run("rounded points are evaluated once", func(t *testing.T) {
		evaluator := &mockEvaluator{}
		grid, err := NewGridSearch(NewConfig().WithParameters(
			Parameter{Name: "max_hold_bars", Min: 10.0, Max: 10.4, Step: 0.2, Type: TypeFloat},
			Parameter{Name: "tp_multiple", Min: 1.5, Max: 2.0, Step: 0.5, Type: TypeFloat},
		))
		require.NoError(t, err)

		results, err := grid.Optimize(context.Background(), evaluator)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 2, evaluator.calls)
		for _, result := range results {
			assert.Equal(t, 10, result.Parameters.MaxHoldBars)
		}
	})

	t.Run("invalid parameters", func(t *testing.T) {
		_, err := NewGridSearch(NewConfig())
		assert.Error(t, err)

		grid, err := NewGridSearch(NewConfig().WithParameters(Parameter{Name: "tp_multiple", Min: 2.0, Max: 1.0, Type: TypeFloat}))
		require.NoError(t, err)
		_, err = grid.Optimize(context.Background(), &mockEvaluator{})
		assert.Error(t, err)

		_, err = grid.Optimize(context.Background(), nil)
		assert.Error(t, err)

		grid, err = NewGridSearch(NewConfig().WithParameters(Parameter{Name: "leverage", Min: 1, Max: 1, Type: TypeInt}))
		require.NoError(t, err)
		_, err = grid.Optimize(context.Background(), &mockEvaluator{})
		assert.ErrorContains(t, err, "grid point {leverage: 1}")
	})
}

func TestParameterValues(t *testing.T) {
	values, err := parameterValues(Parameter{Name: "x", Min: 0.1, Max: 0.3, Step: 0.1, Type: TypeFloat})
	require.NoError(t, err)
	assert.Equal(t, []any{0.1, 0.2, 0.3}, values)

	values, err = parameterValues(Parameter{Name: "x", Min: 1, Max: 10, Step: 4, Type: TypeInt})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 5, 9}, values)

	values, err = parameterValues(Parameter{Name: "x", Min: 3, Max: 3, Type: TypeInt})
	require.NoError(t, err)
	assert.Equal(t, []any{3}, values)

	_, err = parameterValues(Parameter{Name: "x", Min: 1, Max: 2, Step: 0, Type: TypeInt})
	assert.Error(t, err)

	_, err = parameterValues(Parameter{Name: "x", Min: "a", Max: 2, Type: TypeFloat})
	assert.Error(t, err)

	_, err = parameterValues(Parameter{Name: "x", Type: TypeCategorical})
	assert.Error(t, err)
}

func TestAssignmentApply(t *testing.T) {
	base := core.DefaultParameterSet()

	params, err := Assignment{"tp_multiple": 3.0, "max_hold_bars": 12}.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, 3.0, params.TakeProfitMultiple)
	assert.Equal(t, 12, params.MaxHoldBars)
	assert.Equal(t, 2.5, base.TakeProfitMultiple, "base is not modified")

	params, err = Assignment{BuyPresetParam: "aggressive_buy"}.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, core.ModeWeighted, params.Mode)
	assert.Equal(t, 1.0, params.BuyThreshold)
	require.Len(t, params.BuyWeights, 1)
	assert.Equal(t, core.PredicateKind("trend_up"), params.BuyWeights[0].Predicate)

	_, err = Assignment{BuyPresetParam: "missing"}.Apply(base)
	assert.Error(t, err)

	_, err = Assignment{SellPresetParam: 3}.Apply(base)
	assert.Error(t, err)

	_, err = Assignment{"unknown": 1}.Apply(base)
	assert.Error(t, err)
}

func TestRandomSearch(t *testing.T) {
	parameters := []Parameter{
		{Name: "tp_multiple", Min: 1.0, Max: 3.0, Type: TypeFloat},
		{Name: "max_hold_bars", Min: 5, Max: 50, Type: TypeInt},
		{Name: "mode", Options: []any{"boolean", "weighted"}, Type: TypeCategorical},
	}

	run := func() ([]*core.SweepResult, *mockEvaluator) {
		evaluator := &mockEvaluator{}
		search, err := NewRandomSearch(NewConfig().WithParameters(parameters...).WithMaxIterations(25).WithSeed(7))
		require.NoError(t, err)
		results, err := search.Optimize(context.Background(), evaluator)
		require.NoError(t, err)
		return results, evaluator
	}

	results, evaluator := run()
	require.Len(t, results, 25)
	assert.Equal(t, 25, evaluator.calls)

	for _, result := range results {
		p := result.Parameters
		assert.GreaterOrEqual(t, p.TakeProfitMultiple, 1.0)
		assert.LessOrEqual(t, p.TakeProfitMultiple, 3.0)
		assert.GreaterOrEqual(t, p.MaxHoldBars, 5)
		assert.LessOrEqual(t, p.MaxHoldBars, 50)
	}

	again, _ := run()
	for i := range results {
		assert.Equal(t, results[i].Key, again[i].Key)
	}
}

func TestGeneticConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*GeneticConfig)
		valid  bool
	}{
		{"default", func(*GeneticConfig) {}, true},
		{"tiny population", func(c *GeneticConfig) { c.PopulationSize = 2 }, false},
		{"no generations", func(c *GeneticConfig) { c.Generations = 0 }, false},
		{"mutation rate above one", func(c *GeneticConfig) { c.MutationRate = 1.5 }, false},
		{"negative sigma", func(c *GeneticConfig) { c.MutationSigma = -1 }, false},
		{"empty gene range", func(c *GeneticConfig) { c.GeneMin, c.GeneMax = 0.5, 0.5 }, false},
		{"gene range beyond one", func(c *GeneticConfig) { c.GeneMax = 2 }, false},
		{"negative trade floor", func(c *GeneticConfig) { c.MinTrades = -1 }, false},
		{"no weights", func(c *GeneticConfig) { c.Base.BuyWeights, c.Base.SellWeights = nil, nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGeneticConfig()
			tt.modify(&cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestGeneticFitness(t *testing.T) {
	cfg := DefaultGeneticConfig()
	result := &core.SweepResult{Summary: core.Summary{TotalTrades: 8, NetProfit: 40, AvgProfit: 5}}
	assert.Equal(t, 45.0, cfg.Fitness(result))

	result.Summary.TotalTrades = 4
	assert.Equal(t, cfg.Penalty, cfg.Fitness(result))

	failed := &core.SweepResult{Summary: core.Summary{TotalTrades: 8}, ErrMessage: "broken"}
	assert.Equal(t, cfg.Penalty, cfg.Fitness(failed))
	assert.Equal(t, cfg.Penalty, cfg.Fitness(nil))
}

func TestGenetic(t *testing.T) {
	run := func() ([]*core.SweepResult, []GenerationStats, *mockEvaluator) {
		cfg := DefaultGeneticConfig()
		cfg.PopulationSize = 8
		cfg.Generations = 6
		cfg.MutationRate = 0.3
		cfg.Seed = 42
		cfg.Parallelism = 3

		ga, err := NewGenetic(cfg)
		require.NoError(t, err)

		evaluator := &mockEvaluator{}
		results, err := ga.Optimize(context.Background(), evaluator)
		require.NoError(t, err)
		return results, ga.History(), evaluator
	}

	results, history, evaluator := run()
	require.Len(t, history, 6)

	// the elite is carried without evaluating it again
	assert.Equal(t, 8+5*7, evaluator.calls)
	assert.Len(t, results, evaluator.calls)

	for g := 1; g < len(history); g++ {
		assert.GreaterOrEqual(t, history[g].BestSoFar, history[g-1].BestSoFar)
		assert.GreaterOrEqual(t, history[g].Best, history[g-1].Best)
	}
	assert.Equal(t, history[len(history)-1].BestSoFar, results[0].Fitness)

	for _, result := range results {
		assert.Equal(t, core.ModeWeighted, result.Parameters.Mode)
		for _, w := range append(result.Parameters.BuyWeights.Clone(), result.Parameters.SellWeights...) {
			assert.GreaterOrEqual(t, w.Weight, 0.0)
			assert.LessOrEqual(t, w.Weight, 1.0)
		}
	}

	_, again, _ := run()
	assert.Equal(t, history, again)
}

func TestGeneticCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultGeneticConfig()
	cfg.PopulationSize = 5
	ga, err := NewGenetic(cfg)
	require.NoError(t, err)

	evaluator := &mockEvaluator{after: func(calls int) {
		if calls == 7 {
			cancel()
		}
	}}
	results, err := ga.Optimize(ctx, evaluator)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ga.History(), 1)
	assert.NotEmpty(t, results)
}

func TestRank(t *testing.T) {
	results := []*core.SweepResult{
		{Key: "b", Score: 1},
		{Key: "a", Score: 1},
		{Key: "c", Score: 5},
		{Key: "d", Score: 9, ErrMessage: "failed"},
	}

	ranked := Rank(results, 0)
	keys := make([]string, len(ranked))
	for i, r := range ranked {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, keys)
	assert.Equal(t, "b", results[0].Key, "input order is kept")

	assert.Len(t, Rank(results, 2), 2)
	assert.Len(t, Rank(append(results, nil), 0), 4)
}

func testSeries(t *testing.T, n int) (*core.BarSeries, *indicator.Set) {
	t.Helper()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		price := 100 + 10*math.Sin(float64(i)/6) + float64(i)/10
		bars[i] = core.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price - 0.2,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 100 + float64(i%7),
		}
	}

	series, err := core.NewBarSeries("BTCUSDT", "1h", bars)
	require.NoError(t, err)
	set, err := indicator.Compute(series, indicator.DefaultConfig())
	require.NoError(t, err)
	return series, set
}

func TestBacktestEvaluator(t *testing.T) {
	series, set := testSeries(t, 300)

	evaluator, err := NewBacktestEvaluator(series, set, simulator.DefaultConfig(), metric.DefaultScoreWeights(), nil)
	require.NoError(t, err)

	result, err := evaluator.Evaluate(context.Background(), core.DefaultParameterSet())
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Len(t, result.Equity, series.Len())
	assert.Equal(t, len(result.Trades), result.Summary.TotalTrades)
	assert.Equal(t, result.Summary.Score, result.Score)

	degenerate := core.DefaultParameterSet()
	degenerate.TakeProfitMultiple = 0
	result, err = evaluator.Evaluate(context.Background(), degenerate)
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.ErrorIs(t, result.Err, core.ErrDegenerateParameterSet)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = evaluator.Evaluate(ctx, core.DefaultParameterSet())
	assert.ErrorIs(t, err, context.Canceled)

	short, _ := testSeries(t, 120)
	_, err = NewBacktestEvaluator(short, set, simulator.DefaultConfig(), metric.DefaultScoreWeights(), nil)
	assert.Error(t, err)
}

func TestWriteResultsCSV(t *testing.T) {
	results := []*core.SweepResult{
		{Parameters: core.DefaultParameterSet(), Key: "first", Score: 2, Summary: core.Summary{TotalTrades: 3}},
		{Parameters: core.DefaultParameterSet(), Key: "second", ErrMessage: "degenerate parameter set"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"1", "first"}, rows[1][:2])
	assert.Equal(t, "3", rows[1][9])
	assert.Equal(t, "degenerate parameter set", rows[2][len(rows[2])-1])

	var table bytes.Buffer
	PrintResults(&table, results, 1)
	assert.Contains(t, table.String(), "2.0000")
	assert.NotContains(t, table.String(), "failed")

	assert.Equal(t, "{a: 1, b: x}", FormatAssignment(Assignment{"b": "x", "a": 1}))
	assert.Equal(t, "{}", FormatAssignment(Assignment{}))
}
