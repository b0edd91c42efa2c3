package core

import (
	"fmt"
	"time"
)

// ExitReason tells why a position was closed
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TakeProfit"
	ExitStopLoss   ExitReason = "StopLoss"
	ExitSignal     ExitReason = "Signal"
	// ExitTimeout covers both the holding limit and the forced close at end of data
	ExitTimeout    ExitReason = "Timeout"
)

// Position is the open long position held during a simulation
type Position struct {
	EntryIndex int
	EntryTime  time.Time
	EntryPrice float64
	Quantity   float64
	TakeProfit float64
	StopLoss   float64
}

// Trade is a closed position
type Trade struct {
	EntryIndex int        `json:"entry_index"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitIndex  int        `json:"exit_index"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	PnL        float64    `json:"pnl"`
	Profit     float64    `json:"profit"`
	ExitReason ExitReason `json:"exit_reason"`

	HoldingBars     int           `json:"holding_bars"`
	HoldingDuration time.Duration `json:"holding_duration"`
}

// ProfitPercent returns the per-unit return relative to the entry price
func (t Trade) ProfitPercent() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return t.PnL / t.EntryPrice
}

func (t Trade) String() string {
	return fmt.Sprintf("[%s] %d -> %d | entry %.4f exit %.4f | pnl %.4f (%.2f%%) | %d bars",
		t.ExitReason, t.EntryIndex, t.ExitIndex, t.EntryPrice, t.ExitPrice, t.PnL, t.ProfitPercent()*100, t.HoldingBars)
}

// EquityPoint is the account value at one bar
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}
