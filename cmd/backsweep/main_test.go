package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/config"
	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/exchange"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/optimizer"
	sig "github.com/raykavin/backsweep/pkg/signal"
)

func writeBars(t *testing.T, path string, n int) {
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

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, exchange.WriteBars(file, bars))
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	data := filepath.Join(dir, "bars.csv")
	writeBars(t, data, 300)

	content := `
symbol: BTCUSDT
timeframe: 1h
lookback_bars: 0
data_file: ` + data + `
log:
  level: error
  colored: false
storage:
  driver: buntdb
  path: ` + filepath.Join(dir, "results.db") + `
grid:
  parameters:
    - name: tp_multiple
      type: float
      min: 1.5
      max: 2.5
      step: 0.5
ga_population_size: 4
ga_generations: 2
`
	path := filepath.Join(dir, "backsweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, runID, outputFile, topN, random = "", "", "", 0, false

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	csvPath := filepath.Join(dir, "sweep.csv")

	out, err := execute(t, "sweep", "-c", path, "--run", "grid-1", "-o", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1.50")
	assert.Contains(t, out, "2.50")
	assert.Contains(t, out, "3 evaluated, 0 failed")

	exported, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(exported)), "\n"), 4)

	out, err = execute(t, "results", "-c", path)
	require.NoError(t, err)
	assert.Equal(t, "grid-1\n", out)

	out, err = execute(t, "results", "-c", path, "grid-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2.00")
	assert.Contains(t, out, "NET PROFIT")

	_, err = execute(t, "results", "-c", path, "missing")
	assert.Error(t, err)
}

func TestBacktestCommand(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	out, err := execute(t, "backtest", "-c", path, "--run", "single")
	require.NoError(t, err)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "Score")
}

func TestOptimizeCommand(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	out, err := execute(t, "optimize", "-c", path, "--run", "ga")
	require.NoError(t, err)
	assert.Contains(t, out, "BEST SO FAR")
}

func TestPresetParameters(t *testing.T) {
	params := presetParameters()
	require.Len(t, params, 2)
	assert.Len(t, params[0].Options, len(sig.BuyPresetNames()))
	assert.Len(t, params[1].Options, len(sig.SellPresetNames()))

	grid, err := optimizer.NewGridSearch(optimizer.NewConfig().WithParameters(params...))
	require.NoError(t, err)
	total, err := grid.Combinations()
	require.NoError(t, err)
	assert.Equal(t, len(sig.BuyPresetNames())*len(sig.SellPresetNames()), total)
}

func TestGeneticEvaluations(t *testing.T) {
	cfg := optimizer.DefaultGeneticConfig()
	cfg.PopulationSize, cfg.Generations = 8, 6
	assert.Equal(t, 8+5*7, geneticEvaluations(cfg))

	cfg.Generations = 0
	assert.Zero(t, geneticEvaluations(cfg))
}

func TestDefaultRunID(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "sweep-btcusdt-20240305-143000", defaultRunID("sweep", "BTCUSDT", now))
}

func TestBuildDownloadOptions(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		days    int
		options int
		wantErr bool
	}{
		{name: "defaults"},
		{name: "days", days: 7, options: 1},
		{name: "interval", start: "2024-01-01", end: "2024-02-01", options: 1},
		{name: "start only", start: "2024-01-01", wantErr: true},
		{name: "bad date", start: "01/01/2024", end: "2024-02-01", wantErr: true},
		{name: "reversed", start: "2024-02-01", end: "2024-01-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			startDate, endDate, days = tt.start, tt.end, tt.days
			t.Cleanup(func() { startDate, endDate, days = "", "", 0 })

			options, err := buildDownloadOptions()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, options, tt.options)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, backend := range []string{"zerolog", "logrus"} {
		log, err := newLogger(config.LogConfig{Backend: backend, Level: "debug"})
		require.NoError(t, err, backend)
		assert.NotNil(t, log)
	}

	_, err := newLogger(config.LogConfig{Backend: "zap"})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	s := &status{}
	assert.Equal(t, "No sweep running.", s.String())

	s.begin("sweep", -1)
	s.advance(9)
	s.advance(9)
	assert.True(t, strings.HasPrefix(s.String(), "sweep: 2/9 evaluations"))
}

func TestPrintSweep(t *testing.T) {
	results := []*core.SweepResult{
		{Parameters: core.DefaultParameterSet(), Key: "{tp: 2}", Score: 2, Summary: core.Summary{TotalTrades: 3}},
		{Parameters: core.DefaultParameterSet(), Key: "{tp: 0}", ErrMessage: "degenerate parameter set"},
	}
	agg := metric.NewAggregator()
	agg.Add(results...)

	var buf bytes.Buffer
	printSweep(&buf, results, agg, 0)
	assert.Contains(t, buf.String(), "2 evaluated, 1 failed\n")
	assert.Contains(t, buf.String(), "Best: {tp: 2}\n")

	buf.Reset()
	printSweep(&buf, nil, metric.NewAggregator(), 0)
	assert.Equal(t, "No results to display\n0 evaluated, 0 failed\n", buf.String())
}

func TestStepSize(t *testing.T) {
	data := filepath.Join(t.TempDir(), "bars.csv")
	writeBars(t, data, 10)
	feed, err := exchange.NewCSVFeed("1h", exchange.PairFeed{Pair: "BTCUSDT", File: data, Timeframe: "1h"})
	require.NoError(t, err)

	assert.Equal(t, 0.00000001, stepSize(feed, "BTCUSDT", 0))
	assert.Equal(t, 0.001, stepSize(feed, "BTCUSDT", 0.001))
	assert.Equal(t, 0.0, stepSize(newBinanceFeeder(config.BinanceConfig{}, nil), "BTCUSDT", 0))
}
