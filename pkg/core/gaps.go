package core

import (
	"fmt"
	"time"
)

// GapPolicy defines how missing sampling intervals are treated
type GapPolicy string

const (
	// GapIgnore keeps the bars as they are
	GapIgnore GapPolicy = "ignore"
	// GapReject fails when two consecutive bars are more than one interval apart
	GapReject GapPolicy = "reject"
	// GapForwardFill inserts flat bars carrying the previous close
	GapForwardFill GapPolicy = "forward_fill"
)

// ApplyGapPolicy checks the spacing of ordered bars against the sampling interval
func ApplyGapPolicy(bars []Bar, interval time.Duration, policy GapPolicy) ([]Bar, error) {
	switch policy {
	case GapIgnore, "":
		return bars, nil
	case GapReject, GapForwardFill:
	default:
		return nil, fmt.Errorf("unknown gap policy: %s", policy)
	}

	if interval <= 0 {
		return nil, fmt.Errorf("gap policy %s needs a positive interval", policy)
	}

	out := make([]Bar, 0, len(bars))
	for i, bar := range bars {
		if i > 0 {
			prev := out[len(out)-1]
			gap := bar.Time.Sub(prev.Time)
			if gap > interval {
				if policy == GapReject {
					return nil, fmt.Errorf("%w: gap of %s before %s exceeds interval %s",
						ErrMalformedSeries, gap, bar.Time.Format(time.RFC3339), interval)
				}

				for t := prev.Time.Add(interval); t.Before(bar.Time); t = t.Add(interval) {
					out = append(out, Bar{
						Time:  t,
						Open:  prev.Close,
						High:  prev.Close,
						Low:   prev.Close,
						Close: prev.Close,
					})
				}
			}
		}
		out = append(out, bar)
	}

	return out, nil
}
