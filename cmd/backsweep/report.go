package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/optimizer"
)

const bootstrapSamples = 10000

// printBacktest writes the summary, trade log, return histogram and
// confidence intervals of a single run
func printBacktest(w io.Writer, symbol string, result *core.SweepResult) {
	fmt.Fprintln(w, metric.SummaryTable(symbol, result.Summary))

	if len(result.Trades) == 0 {
		fmt.Fprintln(w, "No trades.")
		return
	}

	printTrades(w, result.Trades)

	returns := lo.Map(result.Trades, func(t core.Trade, _ int) float64 {
		return t.ProfitPercent()
	})

	fmt.Fprintln(w, "-- RETURNS (%) --")
	hist := histogram.Hist(15, lo.Map(returns, func(r float64, _ int) float64 { return r * 100 }))
	if err := histogram.Fprint(w, hist, histogram.Linear(10)); err != nil {
		fmt.Fprintln(w, err)
	}
	fmt.Fprintln(w)

	printConfidence(w, returns)
}

func printTrades(w io.Writer, trades []core.Trade) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Entry", "Exit", "Entry Price", "Exit Price", "PnL", "Profit", "Reason"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})

	for i, trade := range trades {
		table.Append([]string{
			strconv.Itoa(i + 1),
			trade.EntryTime.UTC().Format("2006-01-02 15:04"),
			trade.ExitTime.UTC().Format("2006-01-02 15:04"),
			strconv.FormatFloat(trade.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(trade.ExitPrice, 'f', -1, 64),
			fmt.Sprintf("%.4f", trade.PnL),
			fmt.Sprintf("%.4f", trade.Profit),
			string(trade.ExitReason),
		})
	}
	table.Render()
}

func printConfidence(w io.Writer, returns []float64) {
	if len(returns) < 2 {
		return
	}

	returnsInterval := metric.Bootstrap(returns, metric.Mean, bootstrapSamples, 0.95)
	payoffInterval := metric.Bootstrap(returns, metric.Payoff, bootstrapSamples, 0.95)
	profitFactorInterval := metric.Bootstrap(returns, metric.ProfitFactor, bootstrapSamples, 0.95)

	fmt.Fprintln(w, "-- CONFIDENCE INTERVAL (95%) --")
	fmt.Fprintf(w, "RETURN:      %.2f%% (%.2f%% ~ %.2f%%)\n",
		returnsInterval.Mean*100, returnsInterval.Lower*100, returnsInterval.Upper*100)
	fmt.Fprintf(w, "PAYOFF:      %.2f (%.2f ~ %.2f)\n",
		payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
	fmt.Fprintf(w, "PROF.FACTOR: %.2f (%.2f ~ %.2f)\n",
		profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
}

// printSweep writes the ranked table followed by the evaluation counts and the best key
func printSweep(w io.Writer, results []*core.SweepResult, agg *metric.Aggregator, topN int) {
	optimizer.PrintResults(w, results, topN)
	fmt.Fprintf(w, "%d evaluated, %d failed\n", agg.Len(), agg.Failures())
	if best := agg.Top(1); len(best) > 0 {
		fmt.Fprintf(w, "Best: %s\n", best[0].Key)
	}
}

// printGenerations writes the per-generation fitness history of the genetic optimizer
func printGenerations(w io.Writer, history []optimizer.GenerationStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Generation", "Best", "Mean", "Best So Far", "Best Key"})
	for _, stats := range history {
		table.Append([]string{
			strconv.Itoa(stats.Generation),
			fmt.Sprintf("%.4f", stats.Best),
			fmt.Sprintf("%.4f", stats.Mean),
			fmt.Sprintf("%.4f", stats.BestSoFar),
			stats.BestKey,
		})
	}
	table.Render()
}

// printRuns lists the stored runs
func printRuns(w io.Writer, runs []string) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return
	}
	for _, run := range runs {
		fmt.Fprintln(w, run)
	}
}
