package optimizer

import (
	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/metric"
)

// Rank orders results by score descending, failures last and ties by key,
// and keeps the top k (all when k <= 0). The input slice is not modified.
func Rank(results []*core.SweepResult, k int) []*core.SweepResult {
	agg := metric.NewAggregator()
	agg.Add(results...)

	ranked := agg.Results()
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
