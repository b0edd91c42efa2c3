package core

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Bar represents one OHLCV sample for a fixed time interval
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ToSlice converts a bar to a string slice for serialization
// with the specified decimal precision
func (b Bar) ToSlice(precision int) []string {
	return []string{
		fmt.Sprintf("%d", b.Time.Unix()),
		strconv.FormatFloat(b.Open, 'f', precision, 64),
		strconv.FormatFloat(b.Close, 'f', precision, 64),
		strconv.FormatFloat(b.Low, 'f', precision, 64),
		strconv.FormatFloat(b.High, 'f', precision, 64),
		strconv.FormatFloat(b.Volume, 'f', precision, 64),
	}
}

func (b Bar) validate() error {
	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "volume": b.Volume,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
		if v < 0 {
			return fmt.Errorf("%s is negative (%f)", name, v)
		}
	}
	return nil
}

// BarSeries is an ordered, immutable sequence of bars for one instrument.
// Timestamps are strictly ascending.
type BarSeries struct {
	Symbol    string
	Timeframe string

	bars []Bar
}

// NewBarSeries validates and copies bars into a new series.
// Any ordering or value problem is reported as ErrMalformedSeries.
func NewBarSeries(symbol, timeframe string, bars []Bar) (*BarSeries, error) {
	for i, bar := range bars {
		if err := bar.validate(); err != nil {
			return nil, fmt.Errorf("%w: bar %d: %v", ErrMalformedSeries, i, err)
		}
		if i > 0 && !bar.Time.After(bars[i-1].Time) {
			return nil, fmt.Errorf("%w: bar %d at %s does not follow %s",
				ErrMalformedSeries, i, bar.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}

	owned := make([]Bar, len(bars))
	copy(owned, bars)

	return &BarSeries{
		Symbol:    symbol,
		Timeframe: timeframe,
		bars:      owned,
	}, nil
}

// Len returns the number of bars in the series
func (s *BarSeries) Len() int { return len(s.bars) }

// At returns the bar at index i
func (s *BarSeries) At(i int) Bar { return s.bars[i] }

// Last returns the last bar of the series
func (s *BarSeries) Last() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the underlying bars
func (s *BarSeries) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Highs returns the high prices of all bars
func (s *BarSeries) Highs() []float64 { return s.column(func(b Bar) float64 { return b.High }) }

// Lows returns the low prices of all bars
func (s *BarSeries) Lows() []float64 { return s.column(func(b Bar) float64 { return b.Low }) }

// Closes returns the close prices of all bars
func (s *BarSeries) Closes() []float64 { return s.column(func(b Bar) float64 { return b.Close }) }

// Volumes returns the volume of all bars
func (s *BarSeries) Volumes() []float64 { return s.column(func(b Bar) float64 { return b.Volume }) }

func (s *BarSeries) column(field func(Bar) float64) []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = field(b)
	}
	return out
}
