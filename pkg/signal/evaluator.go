package signal

import (
	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
)

// Decision is the outcome of evaluating one bar.
// DebugScore is the entry score: satisfied conditions in boolean mode, summed weights in weighted mode.
type Decision struct {
	Enter      bool
	Exit       bool
	ExitScore  float64
	DebugScore float64
}

type weighted struct {
	Predicate
	weight float64
}

// Evaluator turns indicator values into entry and exit decisions for one parameter set
type Evaluator struct {
	params core.ParameterSet

	entry     []Predicate
	trendExit []Predicate
	rangeExit []Predicate
	buy       []weighted
	sell      []weighted
}

// Boolean-mode rule sets
var (
	entryRule = []core.PredicateKind{
		core.PredicateTrendUp,
		core.PredicateRSIInBounds,
		core.PredicatePriceAboveVWAP,
		core.PredicateTrendStrong,
	}
	trendExitRule = []core.PredicateKind{
		core.PredicateTrendDown,
		core.PredicateMACDNegative,
		core.PredicateTrendWeak,
	}
	rangeExitRule = []core.PredicateKind{
		core.PredicateRSIOverbought,
		core.PredicateATRStop,
		core.PredicatePriceBelowVWAP,
	}
)

// NewEvaluator builds the predicates named by params
func NewEvaluator(params core.ParameterSet) (*Evaluator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	e := &Evaluator{params: params.Clone()}

	var err error
	if e.entry, err = build(entryRule); err != nil {
		return nil, err
	}
	if e.trendExit, err = build(trendExitRule); err != nil {
		return nil, err
	}
	if e.rangeExit, err = build(rangeExitRule); err != nil {
		return nil, err
	}
	if e.buy, err = buildWeighted(params.BuyWeights); err != nil {
		return nil, err
	}
	if e.sell, err = buildWeighted(params.SellWeights); err != nil {
		return nil, err
	}

	return e, nil
}

// Params returns the parameter set the evaluator was built with
func (e *Evaluator) Params() core.ParameterSet {
	return e.params
}

// Evaluate decides at bar index under the given regime. entryPrice is undefined while flat;
// the exit side is only meaningful when a position is open.
func (e *Evaluator) Evaluate(set *indicator.Set, index int, regime indicator.Regime, entryPrice float64) Decision {
	ctx := Context{Set: set, Index: index, Params: &e.params, EntryPrice: entryPrice}

	var d Decision
	switch e.params.Mode {
	case core.ModeWeighted:
		d.DebugScore = score(e.buy, ctx)
		d.Enter = d.DebugScore >= e.params.BuyThreshold
	default:
		met := count(e.entry, ctx)
		d.DebugScore = float64(met)
		d.Enter = met == len(e.entry)
	}

	switch regime {
	case indicator.Trending:
		if e.params.Mode == core.ModeWeighted {
			d.ExitScore = score(e.sell, ctx)
			d.Exit = d.ExitScore >= e.params.SellThreshold
		} else {
			d.ExitScore = float64(count(e.trendExit, ctx))
			d.Exit = d.ExitScore > 0
		}
	default:
		// ranging
		d.ExitScore = float64(count(e.rangeExit, ctx))
		d.Exit = d.ExitScore > 0
	}

	return d
}

func build(kinds []core.PredicateKind) ([]Predicate, error) {
	out := make([]Predicate, 0, len(kinds))
	for _, kind := range kinds {
		p, err := New(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func buildWeighted(weights core.SignalWeights) ([]weighted, error) {
	out := make([]weighted, 0, len(weights))
	for _, w := range weights {
		p, err := New(w.Predicate)
		if err != nil {
			return nil, err
		}
		out = append(out, weighted{Predicate: p, weight: w.Weight})
	}
	return out, nil
}

func count(predicates []Predicate, ctx Context) int {
	met := 0
	for _, p := range predicates {
		if p.Holds(ctx) {
			met++
		}
	}
	return met
}

func score(predicates []weighted, ctx Context) float64 {
	total := 0.0
	for _, p := range predicates {
		if p.Holds(ctx) {
			total += p.weight
		}
	}
	return total
}
