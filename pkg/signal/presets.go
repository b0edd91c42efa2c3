package signal

import (
	"fmt"
	"sort"

	"github.com/raykavin/backsweep/pkg/core"
)

// Preset is a named weight vector with the threshold that makes it fire
type Preset struct {
	Name      string
	Weights   core.SignalWeights
	Threshold float64
}

var buyPresets = map[string]Preset{
	// fast above slow, oscillator between 45 and 60 and price above VWAP
	"conservative_buy": {
		Name: "conservative_buy",
		Weights: core.SignalWeights{
			{Predicate: core.PredicateTrendUp, Weight: 1},
			{Predicate: core.PredicateRSINeutral, Weight: 1},
			{Predicate: core.PredicatePriceAboveVWAP, Weight: 1},
		},
		Threshold: 3,
	},
	"aggressive_buy": {
		Name:      "aggressive_buy",
		Weights:   core.SignalWeights{{Predicate: core.PredicateTrendUp, Weight: 1}},
		Threshold: 1,
	},
}

var sellPresets = map[string]Preset{
	"conservative_sell": {
		Name: "conservative_sell",
		Weights: core.SignalWeights{
			{Predicate: core.PredicateRSIOverbought, Weight: 1},
			{Predicate: core.PredicateATRStop, Weight: 1},
		},
		Threshold: 1,
	},
	"aggressive_sell": {
		Name: "aggressive_sell",
		Weights: core.SignalWeights{
			{Predicate: core.PredicateTrendDown, Weight: 1},
			{Predicate: core.PredicateMACDNegative, Weight: 1},
		},
		Threshold: 1,
	},
}

// BuyPreset returns the named entry preset
func BuyPreset(name string) (Preset, error) {
	p, ok := buyPresets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown buy preset: %s", name)
	}
	p.Weights = p.Weights.Clone()
	return p, nil
}

// SellPreset returns the named exit preset
func SellPreset(name string) (Preset, error) {
	p, ok := sellPresets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown sell preset: %s", name)
	}
	p.Weights = p.Weights.Clone()
	return p, nil
}

// BuyPresetNames lists the entry presets in alphabetical order
func BuyPresetNames() []string { return presetNames(buyPresets) }

// SellPresetNames lists the exit presets in alphabetical order
func SellPresetNames() []string { return presetNames(sellPresets) }

func presetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
