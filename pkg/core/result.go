package core

import "time"

// Summary holds aggregate statistics for a trade log.
// When HasTrades is false the win rate and average PnL are undefined and reported as zero.
type Summary struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgPnL       float64 `json:"avg_pnl"`
	NetPnL       float64 `json:"net_pnl"`
	NetProfit    float64 `json:"net_profit"`
	AvgProfit    float64 `json:"avg_profit"`
	Payoff       float64 `json:"payoff"`
	ProfitFactor float64 `json:"profit_factor"`
	SQN          float64 `json:"sqn"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	FinalEquity  float64 `json:"final_equity"`
	Score        float64 `json:"score"`
	HasTrades    bool    `json:"has_trades"`
}

// SweepResult is the outcome of evaluating one parameter set.
// A failed evaluation keeps its parameters and carries the failure in Err.
type SweepResult struct {
	Parameters ParameterSet  `json:"parameters"`
	Key        string        `json:"key"`
	Trades     []Trade       `json:"trades,omitempty"`
	Equity     []EquityPoint `json:"-"`
	Summary    Summary       `json:"summary"`
	Score      float64       `json:"score"`
	Fitness    float64       `json:"fitness"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
	ErrMessage string        `json:"error,omitempty"`
}

// Failed reports whether the evaluation did not produce a summary
func (r *SweepResult) Failed() bool {
	return r.Err != nil || r.ErrMessage != ""
}
