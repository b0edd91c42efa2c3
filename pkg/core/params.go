package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PredicateKind identifies one signal condition
type PredicateKind string

const (
	PredicateTrendUp        PredicateKind = "trend_up"         // fast MA above slow MA
	PredicateTrendDown      PredicateKind = "trend_down"       // fast MA below slow MA
	PredicateCrossUp        PredicateKind = "cross_up"         // fast MA crosses above slow MA
	PredicateRSIInBounds    PredicateKind = "rsi_in_bounds"    // oscillator inside the adaptive bounds
	PredicateRSINeutral     PredicateKind = "rsi_neutral"      // oscillator strictly between 45 and 60
	PredicateRSIOverbought  PredicateKind = "rsi_overbought"   // oscillator above the overbought level
	PredicatePriceAboveVWAP PredicateKind = "price_above_vwap" // close above VWAP
	PredicatePriceBelowVWAP PredicateKind = "price_below_vwap" // close below VWAP
	PredicateTrendStrong    PredicateKind = "trend_strong"     // trend strength above threshold
	PredicateTrendWeak      PredicateKind = "trend_weak"       // trend strength below threshold
	PredicateMACDPositive   PredicateKind = "macd_positive"    // MACD histogram above zero
	PredicateMACDNegative   PredicateKind = "macd_negative"    // MACD histogram below zero
	PredicateATRStop        PredicateKind = "atr_stop"         // close below entry minus a multiple of ATR
)

// PredicateKinds lists every known predicate in a stable order
var PredicateKinds = []PredicateKind{
	PredicateTrendUp,
	PredicateTrendDown,
	PredicateCrossUp,
	PredicateRSIInBounds,
	PredicateRSINeutral,
	PredicateRSIOverbought,
	PredicatePriceAboveVWAP,
	PredicatePriceBelowVWAP,
	PredicateTrendStrong,
	PredicateTrendWeak,
	PredicateMACDPositive,
	PredicateMACDNegative,
	PredicateATRStop,
}

// Known reports whether the predicate kind is recognized
func (k PredicateKind) Known() bool {
	for _, known := range PredicateKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SignalMode selects how entry and exit decisions are composed
type SignalMode string

const (
	// ModeBoolean uses a fixed conjunction/disjunction of conditions
	ModeBoolean SignalMode = "boolean"
	// ModeWeighted sums the weights of satisfied conditions and compares against a threshold
	ModeWeighted SignalMode = "weighted"
)

// SignalWeight is the contribution of a predicate to a weighted score
type SignalWeight struct {
	Predicate PredicateKind `json:"predicate" mapstructure:"predicate"`
	Weight    float64       `json:"weight" mapstructure:"weight"`
}

// SignalWeights is an ordered list of predicate weights
type SignalWeights []SignalWeight

// WithValues returns a copy of the weights with the given vector applied in order
func (w SignalWeights) WithValues(values []float64) SignalWeights {
	out := make(SignalWeights, len(w))
	copy(out, w)
	for i := range out {
		if i < len(values) {
			out[i].Weight = values[i]
		}
	}
	return out
}

// Clone returns an independent copy of the weights
func (w SignalWeights) Clone() SignalWeights {
	if w == nil {
		return nil
	}
	out := make(SignalWeights, len(w))
	copy(out, w)
	return out
}

// Bounds is a pair of oscillator levels, both exclusive
type Bounds struct {
	Lower float64 `json:"lower" mapstructure:"lower"`
	Upper float64 `json:"upper" mapstructure:"upper"`
}

// Contains reports lower < v < upper
func (b Bounds) Contains(v float64) bool {
	return v > b.Lower && v < b.Upper
}

// ParameterSet holds the tunable values for one simulation run
type ParameterSet struct {
	TakeProfitMultiple float64       `json:"tp_multiple" mapstructure:"tp_multiple"`
	StopLossMultiple   float64       `json:"sl_multiple" mapstructure:"sl_multiple"`
	MaxHoldBars        int           `json:"max_hold_bars" mapstructure:"max_hold_bars"`
	Mode               SignalMode    `json:"mode" mapstructure:"mode"`
	BuyWeights         SignalWeights `json:"buy_weights" mapstructure:"signal_weights"`
	SellWeights        SignalWeights `json:"sell_weights" mapstructure:"sell_weights"`
	BuyThreshold       float64       `json:"buy_threshold" mapstructure:"signal_threshold"`
	SellThreshold      float64       `json:"sell_threshold" mapstructure:"sell_threshold"`

	RSIWide       Bounds  `json:"rsi_wide" mapstructure:"rsi_wide"`
	RSINarrow     Bounds  `json:"rsi_narrow" mapstructure:"rsi_narrow"`
	RSIOverbought float64 `json:"rsi_overbought" mapstructure:"rsi_overbought"`

	TrendStrengthThreshold float64 `json:"trend_strength_threshold" mapstructure:"trend_strength_threshold"`
	RegimeThreshold        float64 `json:"regime_threshold" mapstructure:"regime_trend_strength_threshold"`
	ExitStopMultiple       float64 `json:"exit_stop_multiple" mapstructure:"exit_stop_multiple"`
}

// DefaultParameterSet returns the boolean-mode setup of the reference strategy
func DefaultParameterSet() ParameterSet {
	return ParameterSet{
		TakeProfitMultiple: 2.5,
		StopLossMultiple:   1.5,
		MaxHoldBars:        48,
		Mode:               ModeBoolean,
		BuyWeights: SignalWeights{
			{Predicate: PredicateTrendUp, Weight: 1},
			{Predicate: PredicateRSIInBounds, Weight: 1},
			{Predicate: PredicatePriceAboveVWAP, Weight: 1},
			{Predicate: PredicateTrendStrong, Weight: 1},
		},
		SellWeights: SignalWeights{
			{Predicate: PredicateTrendDown, Weight: 1},
			{Predicate: PredicateMACDNegative, Weight: 1},
			{Predicate: PredicateTrendWeak, Weight: 1},
		},
		BuyThreshold:           3,
		SellThreshold:          1,
		RSIWide:                Bounds{Lower: 40, Upper: 70},
		RSINarrow:              Bounds{Lower: 45, Upper: 65},
		RSIOverbought:          70,
		TrendStrengthThreshold: 20,
		RegimeThreshold:        25,
		ExitStopMultiple:       1.5,
	}
}

// Clone returns a deep copy of the parameter set
func (p ParameterSet) Clone() ParameterSet {
	out := p
	out.BuyWeights = p.BuyWeights.Clone()
	out.SellWeights = p.SellWeights.Clone()
	return out
}

// Validate rejects parameter sets that cannot be simulated meaningfully
func (p ParameterSet) Validate() error {
	for _, f := range p.floatFields() {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return degenerate("%s must be finite, got %v", f.name, f.value)
		}
	}
	if !(p.TakeProfitMultiple > 0) {
		return degenerate("tp_multiple must be positive, got %v", p.TakeProfitMultiple)
	}
	if !(p.StopLossMultiple > 0) {
		return degenerate("sl_multiple must be positive, got %v", p.StopLossMultiple)
	}
	if p.MaxHoldBars < 1 {
		return degenerate("max_hold_bars must be at least 1, got %d", p.MaxHoldBars)
	}
	if p.ExitStopMultiple < 0 {
		return degenerate("exit_stop_multiple cannot be negative, got %v", p.ExitStopMultiple)
	}
	for name, b := range map[string]Bounds{"rsi_wide": p.RSIWide, "rsi_narrow": p.RSINarrow} {
		if !(b.Upper > b.Lower) {
			return degenerate("%s bounds have no width (%v..%v)", name, b.Lower, b.Upper)
		}
		if b.Lower < 0 || b.Upper > 100 {
			return degenerate("%s bounds must lie in [0,100] (%v..%v)", name, b.Lower, b.Upper)
		}
	}
	if p.RSIOverbought <= 0 || p.RSIOverbought > 100 {
		return degenerate("rsi_overbought must lie in (0,100], got %v", p.RSIOverbought)
	}
	if p.TrendStrengthThreshold < 0 || p.RegimeThreshold < 0 {
		return degenerate("trend strength thresholds cannot be negative")
	}

	switch p.Mode {
	case ModeBoolean:
	case ModeWeighted:
		if len(p.BuyWeights) == 0 || len(p.SellWeights) == 0 {
			return degenerate("weighted mode needs buy and sell weights")
		}
		if p.BuyThreshold <= 0 || p.SellThreshold <= 0 {
			return degenerate("weighted thresholds must be positive (buy %v, sell %v)", p.BuyThreshold, p.SellThreshold)
		}
	default:
		return degenerate("unknown signal mode %q", p.Mode)
	}

	for _, weights := range []SignalWeights{p.BuyWeights, p.SellWeights} {
		for _, w := range weights {
			if !w.Predicate.Known() {
				return degenerate("unknown predicate %q", w.Predicate)
			}
			if math.IsNaN(w.Weight) || w.Weight < 0 || w.Weight > 1 {
				return degenerate("weight for %s must lie in [0,1], got %v", w.Predicate, w.Weight)
			}
		}
	}

	return nil
}

type floatField struct {
	name  string
	value float64
}

func (p ParameterSet) floatFields() []floatField {
	return []floatField{
		{"tp_multiple", p.TakeProfitMultiple},
		{"sl_multiple", p.StopLossMultiple},
		{"buy_threshold", p.BuyThreshold},
		{"sell_threshold", p.SellThreshold},
		{"rsi_lower", p.RSIWide.Lower},
		{"rsi_upper", p.RSIWide.Upper},
		{"rsi_narrow_lower", p.RSINarrow.Lower},
		{"rsi_narrow_upper", p.RSINarrow.Upper},
		{"rsi_overbought", p.RSIOverbought},
		{"trend_strength_threshold", p.TrendStrengthThreshold},
		{"regime_threshold", p.RegimeThreshold},
		{"exit_stop_multiple", p.ExitStopMultiple},
	}
}

// Key renders a canonical representation used to tell parameter sets apart
func (p ParameterSet) Key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "{mode: %s, tp: %s, sl: %s, hold: %d", p.Mode, fmtFloat(p.TakeProfitMultiple),
		fmtFloat(p.StopLossMultiple), p.MaxHoldBars)
	fmt.Fprintf(&sb, ", rsi: %s-%s/%s-%s, ob: %s", fmtFloat(p.RSIWide.Lower), fmtFloat(p.RSIWide.Upper),
		fmtFloat(p.RSINarrow.Lower), fmtFloat(p.RSINarrow.Upper), fmtFloat(p.RSIOverbought))
	fmt.Fprintf(&sb, ", adx: %s/%s, xstop: %s", fmtFloat(p.TrendStrengthThreshold), fmtFloat(p.RegimeThreshold),
		fmtFloat(p.ExitStopMultiple))
	fmt.Fprintf(&sb, ", buy: %s>=%s, sell: %s>=%s", fmtWeights(p.BuyWeights), fmtFloat(p.BuyThreshold),
		fmtWeights(p.SellWeights), fmtFloat(p.SellThreshold))
	sb.WriteString("}")
	return sb.String()
}

// Apply sets one named dimension on the parameter set.
// Weight dimensions accept a SignalWeights value, or a float for a single
// predicate addressed as "buy_weight.<predicate>" or "sell_weight.<predicate>".
func (p *ParameterSet) Apply(name string, value any) error {
	if strings.HasPrefix(name, "buy_weight.") || strings.HasPrefix(name, "sell_weight.") {
		side, kind, _ := strings.Cut(name, ".")
		v, err := toFloat(name, value)
		if err != nil {
			return err
		}
		target := &p.BuyWeights
		if side == "sell_weight" {
			target = &p.SellWeights
		}
		*target = setWeight(*target, PredicateKind(kind), v)
		return nil
	}

	switch name {
	case "mode":
		mode, ok := value.(string)
		if !ok {
			if m, isMode := value.(SignalMode); isMode {
				mode, ok = string(m), true
			}
		}
		if !ok {
			return fmt.Errorf("parameter %s expects a string, got %T", name, value)
		}
		p.Mode = SignalMode(mode)
		return nil
	case "buy_weights", "sell_weights":
		weights, ok := value.(SignalWeights)
		if !ok {
			return fmt.Errorf("parameter %s expects signal weights, got %T", name, value)
		}
		if name == "buy_weights" {
			p.BuyWeights = weights.Clone()
		} else {
			p.SellWeights = weights.Clone()
		}
		return nil
	case "max_hold_bars":
		v, err := toFloat(name, value)
		if err != nil {
			return err
		}
		p.MaxHoldBars = int(math.Round(v))
		return nil
	}

	fields := map[string]*float64{
		"tp_multiple":              &p.TakeProfitMultiple,
		"sl_multiple":              &p.StopLossMultiple,
		"buy_threshold":            &p.BuyThreshold,
		"signal_threshold":         &p.BuyThreshold,
		"sell_threshold":           &p.SellThreshold,
		"rsi_lower":                &p.RSIWide.Lower,
		"rsi_upper":                &p.RSIWide.Upper,
		"rsi_narrow_lower":         &p.RSINarrow.Lower,
		"rsi_narrow_upper":         &p.RSINarrow.Upper,
		"rsi_overbought":           &p.RSIOverbought,
		"trend_strength_threshold": &p.TrendStrengthThreshold,
		"regime_threshold":         &p.RegimeThreshold,
		"exit_stop_multiple":       &p.ExitStopMultiple,
	}
	field, ok := fields[name]
	if !ok {
		return fmt.Errorf("unknown parameter: %s", name)
	}
	v, err := toFloat(name, value)
	if err != nil {
		return err
	}
	*field = v
	return nil
}

func setWeight(weights SignalWeights, kind PredicateKind, v float64) SignalWeights {
	out := weights.Clone()
	for i := range out {
		if out[i].Predicate == kind {
			out[i].Weight = v
			return out
		}
	}
	return append(out, SignalWeight{Predicate: kind, Weight: v})
}

func toFloat(name string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %s expects a number, got %T", name, value)
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func fmtWeights(w SignalWeights) string {
	parts := make([]string, len(w))
	for i, sw := range w {
		parts[i] = fmt.Sprintf("%s:%s", sw.Predicate, fmtFloat(sw.Weight))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
