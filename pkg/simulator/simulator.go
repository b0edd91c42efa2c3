package simulator

import (
	"fmt"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
	"github.com/raykavin/backsweep/pkg/signal"
)

// Result is the outcome of one simulation
type Result struct {
	Trades       []core.Trade
	Equity       []core.EquityPoint
	FinalBalance float64
}

// simulation is the state of a single run. Nothing is shared between runs
// apart from the read-only series and indicator set.
type simulation struct {
	series    *core.BarSeries
	set       *indicator.Set
	params    core.ParameterSet
	cfg       Config
	evaluator *signal.Evaluator

	balance  float64
	position *core.Position
	trades   []core.Trade
	equity   []core.EquityPoint
}

// Run walks the series bar by bar, holding at most one long position.
// The same inputs always produce the same trade log.
func Run(series *core.BarSeries, set *indicator.Set, params core.ParameterSet, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator config: %w", err)
	}
	if series.Len() != set.Len() {
		return nil, fmt.Errorf("indicator set has %d values for %d bars", set.Len(), series.Len())
	}

	evaluator, err := signal.NewEvaluator(params)
	if err != nil {
		return nil, err
	}

	s := &simulation{
		series:    series,
		set:       set,
		params:    evaluator.Params(),
		cfg:       cfg,
		evaluator: evaluator,
		balance:   cfg.InitialBalance,
		equity:    make([]core.EquityPoint, 0, series.Len()),
	}
	s.run()

	return &Result{
		Trades:       s.trades,
		Equity:       s.equity,
		FinalBalance: s.balance,
	}, nil
}

func (s *simulation) run() {
	n := s.series.Len()
	for i := 0; i < n; i++ {
		if s.position != nil {
			if reason, ok := s.exitReason(i); ok {
				s.close(i, reason)
			}
		} else if i >= s.cfg.StartIndex && i < n-1 {
			// an entry on the last bar could never be closed by a later one
			s.tryEnter(i)
		}
		s.mark(i)
	}

	if s.position != nil {
		s.close(n-1, core.ExitTimeout)
		s.equity[n-1].Equity = s.balance
	}
}

func (s *simulation) regime(i int) indicator.Regime {
	return indicator.ClassifyRegime(s.set, i, s.params.RegimeThreshold)
}

func (s *simulation) tryEnter(i int) {
	decision := s.evaluator.Evaluate(s.set, i, s.regime(i), core.Undefined())
	if !decision.Enter {
		return
	}

	atr := s.set.Value(indicator.ATR, i)
	price := s.series.At(i).Close
	if !core.IsDefined(atr) || price <= 0 {
		return
	}

	quantity := core.FloorToStep(s.balance/price, s.cfg.StepSize)
	if quantity <= 0 {
		return
	}

	s.position = &core.Position{
		EntryIndex: i,
		EntryTime:  s.series.At(i).Time,
		EntryPrice: price,
		Quantity:   quantity,
		TakeProfit: price + s.params.TakeProfitMultiple*atr,
		StopLoss:   price - s.params.StopLossMultiple*atr,
	}
}

// exitReason applies the exit rules in priority order, first match wins
func (s *simulation) exitReason(j int) (core.ExitReason, bool) {
	pos := s.position
	price := s.series.At(j).Close

	switch {
	case price >= pos.TakeProfit:
		return core.ExitTakeProfit, true
	case price <= pos.StopLoss:
		return core.ExitStopLoss, true
	case s.evaluator.Evaluate(s.set, j, s.regime(j), pos.EntryPrice).Exit:
		return core.ExitSignal, true
	case j >= pos.EntryIndex+s.params.MaxHoldBars-1:
		return core.ExitTimeout, true
	}
	return "", false
}

func (s *simulation) close(j int, reason core.ExitReason) {
	pos := s.position
	bar := s.series.At(j)
	pnl := bar.Close - pos.EntryPrice
	profit := pnl*pos.Quantity - s.cfg.FeePerTrade

	s.balance += profit
	s.trades = append(s.trades, core.Trade{
		EntryIndex:      pos.EntryIndex,
		EntryTime:       pos.EntryTime,
		EntryPrice:      pos.EntryPrice,
		ExitIndex:       j,
		ExitTime:        bar.Time,
		ExitPrice:       bar.Close,
		Quantity:        pos.Quantity,
		PnL:             pnl,
		Profit:          profit,
		ExitReason:      reason,
		HoldingBars:     j - pos.EntryIndex,
		HoldingDuration: bar.Time.Sub(pos.EntryTime),
	})
	s.position = nil
}

// mark appends the account value at bar i, open positions valued at the close
func (s *simulation) mark(i int) {
	bar := s.series.At(i)
	value := s.balance
	if s.position != nil {
		value += (bar.Close - s.position.EntryPrice) * s.position.Quantity
	}
	s.equity = append(s.equity, core.EquityPoint{Time: bar.Time, Equity: value})
}
