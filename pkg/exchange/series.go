package exchange

import (
	"context"
	"fmt"

	"github.com/xhit/go-str2duration/v2"

	"github.com/raykavin/backsweep/pkg/core"
)

// LoadSeries fetches the latest limit bars from a feeder, applies the gap
// policy and validates the result as a series
func LoadSeries(ctx context.Context, feeder core.Feeder, symbol, timeframe string, limit int, policy core.GapPolicy) (*core.BarSeries, error) {
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}

	bars, err := feeder.BarsByLimit(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	bars, err = core.ApplyGapPolicy(bars, interval, policy)
	if err != nil {
		return nil, err
	}

	return core.NewBarSeries(symbol, timeframe, bars)
}
