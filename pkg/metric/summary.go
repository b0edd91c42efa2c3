package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/raykavin/backsweep/pkg/core"
)

// ScoreWeights defines the composite score PnLWeight*AvgPnL + WinRateWeight*WinRate
type ScoreWeights struct {
	PnLWeight     float64 `mapstructure:"pnl_weight"`
	WinRateWeight float64 `mapstructure:"win_rate_weight"`
}

// DefaultScoreWeights weighs average PnL and win rate equally
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{PnLWeight: 1, WinRateWeight: 1}
}

// Score combines average PnL and win rate
func (w ScoreWeights) Score(avgPnL, winRate float64) float64 {
	return w.PnLWeight*avgPnL + w.WinRateWeight*winRate
}

// Summarize reduces a trade log and equity curve into summary statistics.
// An empty trade log yields zeros with HasTrades unset; nothing is ever NaN or infinite.
func Summarize(trades []core.Trade, equity []core.EquityPoint, weights ScoreWeights) core.Summary {
	curve := lo.Map(equity, func(p core.EquityPoint, _ int) float64 { return p.Equity })

	summary := core.Summary{
		TotalTrades: len(trades),
		MaxDrawdown: MaxDrawdown(curve),
	}
	if len(curve) > 0 {
		summary.FinalEquity = curve[len(curve)-1]
	}

	if len(trades) == 0 {
		summary.Score = weights.Score(0, 0)
		return summary
	}

	pnls := lo.Map(trades, func(t core.Trade, _ int) float64 { return t.PnL })
	profits := lo.Map(trades, func(t core.Trade, _ int) float64 { return t.Profit })

	summary.HasTrades = true
	summary.Wins = lo.CountBy(pnls, func(v float64) bool { return v > 0 })
	summary.Losses = summary.TotalTrades - summary.Wins
	summary.WinRate = WinRate(pnls)
	summary.NetPnL = Sum(pnls)
	summary.AvgPnL = Mean(pnls)
	summary.NetProfit = Sum(profits)
	summary.AvgProfit = Mean(profits)
	summary.Payoff = Payoff(profits)
	summary.ProfitFactor = ProfitFactor(profits)
	summary.SQN = SQN(profits)
	summary.Score = weights.Score(summary.AvgPnL, summary.WinRate)

	return finite(summary)
}

// finite replaces any non-finite statistic with zero
func finite(s core.Summary) core.Summary {
	for _, v := range []*float64{
		&s.WinRate, &s.AvgPnL, &s.NetPnL, &s.NetProfit, &s.AvgProfit,
		&s.Payoff, &s.ProfitFactor, &s.SQN, &s.MaxDrawdown, &s.FinalEquity, &s.Score,
	} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	return s
}

// SummaryTable formats a summary as a text table
func SummaryTable(symbol string, s core.Summary) string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	data := [][]string{
		{"Coin", symbol},
		{"Trades", strconv.Itoa(s.TotalTrades)},
		{"Win", strconv.Itoa(s.Wins)},
		{"Loss", strconv.Itoa(s.Losses)},
		{"% Win", fmt.Sprintf("%.1f", s.WinRate*100)},
		{"Avg PnL", fmt.Sprintf("%.4f", s.AvgPnL)},
		{"Net PnL", fmt.Sprintf("%.4f", s.NetPnL)},
		{"Payoff", fmt.Sprintf("%.1f", s.Payoff*100)},
		{"Pr.Fact", fmt.Sprintf("%.1f", s.ProfitFactor*100)},
		{"SQN", fmt.Sprintf("%.2f", s.SQN)},
		{"Profit", fmt.Sprintf("%.4f", s.NetProfit)},
		{"Drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100)},
		{"Score", fmt.Sprintf("%.4f", s.Score)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return tableString.String()
}
