package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
)

var start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// fixture builds a series with the given closes. The entry conditions hold
// exactly on the bars listed in entries; everything else is neutral.
type fixture struct {
	closes  []float64
	entries []int
	atr     float64
	adx     float64
	fast    map[int]float64
}

func (f fixture) build(t *testing.T) (*core.BarSeries, *indicator.Set) {
	t.Helper()
	n := len(f.closes)
	bars := make([]core.Bar, n)
	for i, c := range f.closes {
		bars[i] = core.Bar{Time: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	series, err := core.NewBarSeries("BTCUSDT", "1h", bars)
	require.NoError(t, err)

	fast := fill(n, 0)
	for _, i := range f.entries {
		fast[i] = 1
	}
	for i, v := range f.fast {
		fast[i] = v
	}
	atr, adx := f.atr, f.adx
	if atr == 0 {
		atr = 2
	}
	if adx == 0 {
		adx = 30
	}

	set, err := indicator.NewSet(map[string][]float64{
		indicator.Close:    append([]float64(nil), f.closes...),
		indicator.FastMA:   fast,
		indicator.SlowMA:   fill(n, 0),
		indicator.RSI:      fill(n, 50),
		indicator.ATR:      fill(n, atr),
		indicator.ATRMean:  fill(n, atr),
		indicator.VWAP:     fill(n, 1),
		indicator.ADX:      fill(n, adx),
		indicator.MACDHist: fill(n, 1),
	})
	require.NoError(t, err)
	return series, set
}

func closes(values ...float64) []float64 { return values }

func TestTakeProfit(t *testing.T) {
	series, set := fixture{
		closes:  closes(100, 100, 100, 103, 106, 100, 100),
		entries: []int{2, 4},
	}.build(t)

	params := core.DefaultParameterSet()
	params.TakeProfitMultiple = 2.5

	result, err := Run(series, set, params, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1, "no entry on the exit bar")

	trade := result.Trades[0]
	assert.Equal(t, 2, trade.EntryIndex)
	assert.Equal(t, 4, trade.ExitIndex)
	assert.Equal(t, core.ExitTakeProfit, trade.ExitReason)
	assert.Equal(t, 6.0, trade.PnL)
	assert.Equal(t, 10.0, trade.Quantity)
	assert.Equal(t, 60.0, trade.Profit)
	assert.Equal(t, 2, trade.HoldingBars)
	assert.Equal(t, 2*time.Hour, trade.HoldingDuration)
	assert.Equal(t, 1060.0, result.FinalBalance)

	require.Len(t, result.Equity, 7)
	assert.Equal(t, 1000.0, result.Equity[2].Equity)
	assert.Equal(t, 1030.0, result.Equity[3].Equity)
	assert.Equal(t, 1060.0, result.Equity[6].Equity)
}

func TestTakeProfitBeatsStopLoss(t *testing.T) {
	// a zero range puts both levels on the entry price
	series, set := fixture{
		closes:  closes(100, 100, 100, 100),
		entries: []int{1},
		atr:     1e-300,
	}.build(t)

	result, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, core.ExitTakeProfit, result.Trades[0].ExitReason)
	assert.Equal(t, 2, result.Trades[0].ExitIndex)
}

func TestStopLoss(t *testing.T) {
	series, set := fixture{
		closes:  closes(100, 100, 100, 99, 97, 100),
		entries: []int{2},
	}.build(t)

	result, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, core.ExitStopLoss, result.Trades[0].ExitReason)
	assert.Equal(t, 4, result.Trades[0].ExitIndex)
	assert.Equal(t, -3.0, result.Trades[0].PnL)
}

func TestSignalExit(t *testing.T) {
	series, set := fixture{
		closes:  closes(100, 100, 100, 100, 100, 100),
		entries: []int{1},
		fast:    map[int]float64{3: -1},
	}.build(t)

	result, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, core.ExitSignal, result.Trades[0].ExitReason)
	assert.Equal(t, 3, result.Trades[0].ExitIndex)
}

func TestTimeout(t *testing.T) {
	series, set := fixture{
		closes:  closes(100, 100, 100, 100, 100, 100, 100, 100),
		entries: []int{2},
	}.build(t)

	params := core.DefaultParameterSet()
	params.MaxHoldBars = 3

	result, err := Run(series, set, params, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, core.ExitTimeout, result.Trades[0].ExitReason)
	assert.Equal(t, 4, result.Trades[0].ExitIndex)
}

func TestForcedCloseAtEndOfData(t *testing.T) {
	series, set := fixture{
		closes:  closes(100, 100, 100, 101, 102),
		entries: []int{2},
	}.build(t)

	result, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, core.ExitTimeout, trade.ExitReason)
	assert.Equal(t, 4, trade.ExitIndex)
	assert.Equal(t, 2.0, trade.PnL)
	assert.Equal(t, result.FinalBalance, result.Equity[4].Equity)
}

func TestSinglePosition(t *testing.T) {
	n := 40
	entries := make([]int, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, i)
	}
	prices := fill(n, 100)
	for i := range prices {
		prices[i] += float64(i%5) * 1.7
	}

	series, set := fixture{closes: prices, entries: entries}.build(t)
	params := core.DefaultParameterSet()
	params.MaxHoldBars = 4

	result, err := Run(series, set, params, DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)

	for i, trade := range result.Trades {
		assert.Greater(t, trade.ExitIndex, trade.EntryIndex)
		if i > 0 {
			assert.Greater(t, trade.EntryIndex, result.Trades[i-1].ExitIndex, "positions must not overlap")
		}
	}
}

func TestDeterministic(t *testing.T) {
	prices := fill(60, 100)
	for i := range prices {
		prices[i] += float64((i*7)%11) - 5
	}
	series, set := fixture{closes: prices, entries: []int{3, 10, 17, 30, 44}}.build(t)

	first, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	second, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestZeroTrades(t *testing.T) {
	series, set := fixture{closes: fill(10, 100)}.build(t)

	result, err := Run(series, set, core.DefaultParameterSet(), DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 1000.0, result.FinalBalance)
	require.Len(t, result.Equity, 10)
	for _, point := range result.Equity {
		assert.Equal(t, 1000.0, point.Equity)
	}
}

func TestFeeAndStepSize(t *testing.T) {
	series, set := fixture{
		closes:  closes(100, 100, 30, 40, 40),
		entries: []int{2},
		atr:     4,
	}.build(t)

	cfg := DefaultConfig()
	cfg.FeePerTrade = 1.5
	cfg.StepSize = 1

	result, err := Run(series, set, core.DefaultParameterSet(), cfg)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	// 1000 / 30 floored to whole units
	assert.Equal(t, 33.0, result.Trades[0].Quantity)
	assert.InDelta(t, 10*33-1.5, result.Trades[0].Profit, 1e-9)
}

func TestRunRejects(t *testing.T) {
	series, set := fixture{closes: fill(10, 100)}.build(t)

	params := core.DefaultParameterSet()
	params.StopLossMultiple = 0
	_, err := Run(series, set, params, DefaultConfig())
	require.ErrorIs(t, err, core.ErrDegenerateParameterSet)

	_, err = Run(series, set, core.DefaultParameterSet(), Config{})
	require.Error(t, err)

	short, _ := fixture{closes: fill(5, 100)}.build(t)
	_, err = Run(short, set, core.DefaultParameterSet(), DefaultConfig())
	require.Error(t, err)
}
