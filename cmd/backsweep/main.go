package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/raykavin/backsweep/pkg/backtesting"
	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/optimizer"
	sig "github.com/raykavin/backsweep/pkg/signal"
)

const (
	dateLayout = "2006-01-02"
)

// Command line flags
var (
	configPath string
	runID      string
	outputFile string
	topN       int

	// Sweep command flags
	random bool

	// Download command flags
	pair      string
	days      int
	startDate string
	endDate   string
	timeframe string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "backsweep",
		Short:        "Backtest and optimize indicator strategies",
		Version:      "1.0.0",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (e.g. ./backsweep.yaml)")

	rootCmd.AddCommand(
		buildBacktestCmd(),
		buildSweepCmd(),
		buildPresetsCmd(),
		buildOptimizeCmd(),
		buildResultsCmd(),
		buildDownloadCmd(),
	)

	return rootCmd
}

// addRunFlags registers the flags shared by every command producing results
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runID, "run", "r", "", "Run id used to store the results (default <command>-<symbol>-<time>)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the ranked results to a CSV file")
	cmd.Flags().IntVarP(&topN, "top", "n", 0, "Number of results to print (default grid.top_n)")
}

func buildBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Simulate the configured parameter set once",
		Args:  cobra.NoArgs,
		RunE:  runBacktest,
	}
	addRunFlags(cmd)
	return cmd
}

func buildSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate the grid (or random samples) of grid.parameters",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addRunFlags(cmd)
	cmd.Flags().BoolVar(&random, "random", false, "Sample grid.random_samples points instead of the full grid")
	return cmd
}

func buildPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Evaluate every buy and sell preset combination",
		Args:  cobra.NoArgs,
		RunE:  runPresets,
	}
	addRunFlags(cmd)
	return cmd
}

func buildOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search signal weights with the genetic optimizer",
		Args:  cobra.NoArgs,
		RunE:  runOptimize,
	}
	addRunFlags(cmd)
	return cmd
}

func buildResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results [run]",
		Short: "List stored runs or print the results of one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResults,
	}
	cmd.Flags().IntVarP(&topN, "top", "n", 0, "Number of results to print (default grid.top_n)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the results to a CSV file")
	return cmd
}

func buildDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical bars from Binance",
		Args:  cobra.NoArgs,
		RunE:  runDownload,
	}

	cmd.Flags().StringVarP(&pair, "pair", "p", "", "Trading pair (default symbol)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to download (default 30 days)")
	cmd.Flags().StringVarP(&startDate, "start", "s", "", "Start date (e.g. 2021-12-01)")
	cmd.Flags().StringVarP(&endDate, "end", "e", "", "End date (e.g. 2020-12-31)")
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "Timeframe (default timeframe)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default data_file)")

	return cmd
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath, "backtest")
	if err != nil {
		return err
	}
	defer a.Close()

	evaluator, err := a.evaluator(cmd.Context())
	if err != nil {
		return err
	}

	result, err := evaluator.Evaluate(cmd.Context(), a.cfg.Parameters)
	if err != nil {
		return err
	}
	a.collector.Observe(result, result.Score)

	if result.Failed() {
		a.notifier.OnError(result.Err)
		return result.Err
	}

	printBacktest(cmd.OutOrStdout(), a.cfg.Symbol, result)
	return a.finish(cmd, "Backtest", "backtest", []*core.SweepResult{result}, nil)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath, "sweep")
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.cfg.Grid.Parameters) == 0 {
		return errors.New("grid.parameters is empty")
	}

	evaluator, err := a.evaluator(cmd.Context())
	if err != nil {
		return err
	}

	progress, done := a.progress("sweep", 0)
	config := a.searchConfig(a.cfg.Grid.Parameters).WithProgress(progress)

	var (
		search core.Optimizer
		title  = "Grid sweep"
	)
	if random {
		title = "Random search"
		search, err = optimizer.NewRandomSearch(config)
	} else {
		search, err = optimizer.NewGridSearch(config)
	}
	if err != nil {
		return err
	}

	results, err := search.Optimize(cmd.Context(), evaluator)
	done()
	return a.finish(cmd, title, "sweep", results, err)
}

func runPresets(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath, "presets")
	if err != nil {
		return err
	}
	defer a.Close()

	evaluator, err := a.evaluator(cmd.Context())
	if err != nil {
		return err
	}

	progress, done := a.progress("presets", 0)
	grid, err := optimizer.NewGridSearch(a.searchConfig(presetParameters()).WithProgress(progress))
	if err != nil {
		return err
	}

	results, err := grid.Optimize(cmd.Context(), evaluator)
	done()
	return a.finish(cmd, "Preset sweep", "presets", results, err)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath, "optimize")
	if err != nil {
		return err
	}
	defer a.Close()

	evaluator, err := a.evaluator(cmd.Context())
	if err != nil {
		return err
	}

	cfg := a.cfg.Genetic
	progress, done := a.progress("optimize", geneticEvaluations(cfg))
	cfg.Logger = a.log
	cfg.Progress = progress

	genetic, err := optimizer.NewGenetic(cfg)
	if err != nil {
		return err
	}

	results, err := genetic.Optimize(cmd.Context(), evaluator)
	done()

	history := genetic.History()
	for _, stats := range history {
		a.collector.ObserveGeneration(stats)
	}
	printGenerations(cmd.OutOrStdout(), history)

	return a.finish(cmd, "Genetic optimization", "optimize", results, err)
}

func runResults(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, "results")
	if err != nil {
		return err
	}
	defer a.Close()

	if a.storage == nil {
		return errors.New("no result storage configured (storage.driver)")
	}

	if len(args) == 0 {
		runs, err := a.storage.Runs()
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	}

	results, err := a.storage.LoadResults(args[0])
	if err != nil {
		return err
	}
	optimizer.PrintResults(cmd.OutOrStdout(), results, a.topN())

	if outputFile != "" {
		return optimizer.SaveResultsToCSV(results, outputFile)
	}
	return nil
}

func runDownload(cmd *cobra.Command, _ []string) error {
	a, err := newApp(configPath, "download")
	if err != nil {
		return err
	}
	defer a.Close()

	options, err := buildDownloadOptions()
	if err != nil {
		return err
	}

	symbol := lo.Ternary(pair != "", pair, a.cfg.Symbol)
	interval := lo.Ternary(timeframe != "", timeframe, a.cfg.Timeframe)
	output := lo.Ternary(outputFile != "", outputFile, a.cfg.DataFile)

	downloader := backtesting.NewDownloader(newBinanceFeeder(a.cfg.Binance, a.log), a.log).
		WithProgressOutput(os.Stderr)

	written, err := downloader.Download(cmd.Context(), symbol, interval, output, options...)
	if err != nil {
		return err
	}

	a.log.WithField("file", output).Infof("Wrote %d bars", written)
	return nil
}

// searchConfig builds the grid and random search settings shared by the sweep commands
func (a *app) searchConfig(parameters []optimizer.Parameter) *optimizer.Config {
	return optimizer.NewConfig().
		WithParameters(parameters...).
		WithBase(a.cfg.Parameters).
		WithMaxCombinations(a.cfg.Grid.MaxCombinations).
		WithMaxIterations(a.cfg.Grid.RandomSamples).
		WithSeed(a.cfg.Grid.Seed).
		WithParallelism(a.cfg.Parallelism).
		WithLogger(a.log)
}

func (a *app) topN() int {
	if topN > 0 {
		return topN
	}
	return a.cfg.Grid.TopN
}

// finish prints, exports, stores and announces the results of a run. An
// interrupted run still reports what finished before the interruption.
func (a *app) finish(cmd *cobra.Command, title, kind string, results []*core.SweepResult, runErr error) error {
	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) || len(results) == 0 {
			a.notifier.OnError(runErr)
			return runErr
		}
		a.log.Warnf("%s interrupted after %d evaluations", title, len(results))
		title += " (interrupted)"
	}

	agg := metric.NewAggregator()
	agg.Add(results...)
	if kind != "backtest" {
		printSweep(cmd.OutOrStdout(), results, agg, a.topN())
	}

	if outputFile != "" {
		if err := optimizer.SaveResultsToCSV(results, outputFile); err != nil {
			return err
		}
		a.log.WithField("file", outputFile).Info("Results written")
	}

	id := runID
	if id == "" {
		id = defaultRunID(kind, a.cfg.Symbol, time.Now())
	}
	a.publish(id, title, results, agg)

	return runErr
}

// presetParameters is the cross product of every buy and sell preset
func presetParameters() []optimizer.Parameter {
	toAny := func(names []string) []any {
		return lo.Map(names, func(name string, _ int) any { return name })
	}

	return []optimizer.Parameter{
		{Name: optimizer.BuyPresetParam, Type: optimizer.TypeCategorical, Options: toAny(sig.BuyPresetNames())},
		{Name: optimizer.SellPresetParam, Type: optimizer.TypeCategorical, Options: toAny(sig.SellPresetNames())},
	}
}

// geneticEvaluations is the number of simulations of a full genetic run.
// The elite of every generation after the first is not evaluated again.
func geneticEvaluations(cfg optimizer.GeneticConfig) int {
	if cfg.PopulationSize <= 0 || cfg.Generations <= 0 {
		return 0
	}
	return cfg.PopulationSize + (cfg.Generations-1)*(cfg.PopulationSize-1)
}

func defaultRunID(kind, symbol string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", kind, strings.ToLower(symbol), now.UTC().Format("20060102-150405"))
}

func buildDownloadOptions() ([]backtesting.Option, error) {
	var options []backtesting.Option

	if days > 0 {
		options = append(options, backtesting.WithDays(days))
	}

	if startDate != "" || endDate != "" {
		if startDate == "" || endDate == "" {
			return nil, fmt.Errorf("START and END dates must be provided together")
		}

		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date format: %w", err)
		}

		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format: %w", err)
		}

		if !end.After(start) {
			return nil, fmt.Errorf("end date %s is not after start date %s", endDate, startDate)
		}

		options = append(options, backtesting.WithInterval(start, end))
	}

	return options, nil
}
