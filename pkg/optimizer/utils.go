package optimizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/raykavin/backsweep/pkg/core"
)

var csvHeader = []string{
	"Rank", "Key", "Duration", "Mode", "TP", "SL", "MaxHold", "BuyThreshold", "SellThreshold",
	"Trades", "WinRate", "AvgPnL", "NetProfit", "Score", "Fitness", "Error",
}

// SaveResultsToCSV writes results, in the given order, to a CSV file
func SaveResultsToCSV(results []*core.SweepResult, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return WriteResultsCSV(file, results)
}

// WriteResultsCSV writes results, in the given order, as CSV
func WriteResultsCSV(w io.Writer, results []*core.SweepResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, result := range results {
		p := result.Parameters
		s := result.Summary
		row := []string{
			strconv.Itoa(i + 1),
			result.Key,
			result.Duration.String(),
			string(p.Mode),
			formatFloat(p.TakeProfitMultiple),
			formatFloat(p.StopLossMultiple),
			strconv.Itoa(p.MaxHoldBars),
			formatFloat(p.BuyThreshold),
			formatFloat(p.SellThreshold),
			strconv.Itoa(s.TotalTrades),
			formatFloat(s.WinRate),
			formatFloat(s.AvgPnL),
			formatFloat(s.NetProfit),
			formatFloat(result.Score),
			formatFloat(result.Fitness),
			result.ErrMessage,
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// PrintResults renders the first topN results as a table
func PrintResults(w io.Writer, results []*core.SweepResult, topN int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}

	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Mode", "TP", "SL", "Hold", "Trades", "Win %", "Avg PnL", "Net Profit", "Score", "Fitness", "Time"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i, result := range results {
		p, s := result.Parameters, result.Summary
		row := []string{
			strconv.Itoa(i + 1),
			string(p.Mode),
			fmt.Sprintf("%.2f", p.TakeProfitMultiple),
			fmt.Sprintf("%.2f", p.StopLossMultiple),
			strconv.Itoa(p.MaxHoldBars),
			strconv.Itoa(s.TotalTrades),
			fmt.Sprintf("%.1f", s.WinRate*100),
			fmt.Sprintf("%.4f", s.AvgPnL),
			fmt.Sprintf("%.4f", s.NetProfit),
			fmt.Sprintf("%.4f", result.Score),
			fmt.Sprintf("%.4f", result.Fitness),
			result.Duration.Round(time.Millisecond).String(),
		}
		if result.Failed() {
			row[5] = "failed"
		}
		table.Append(row)
	}

	table.Render()
}

// FormatAssignment formats an assignment with sorted names
func FormatAssignment(assignment Assignment) string {
	names := make([]string, 0, len(assignment))
	for name := range assignment {
		names = append(names, name)
	}
	sort.Strings(names)

	out := "{"
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %v", name, assignment[name])
	}
	return out + "}"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
