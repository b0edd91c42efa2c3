package metric

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/raykavin/backsweep/pkg/core"
)

// Aggregator collects sweep results from concurrent evaluations
type Aggregator struct {
	mu       sync.Mutex
	results  []*core.SweepResult
	failures int
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add records results. Failed evaluations are kept and counted; nil entries are skipped.
func (a *Aggregator) Add(results ...*core.SweepResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, result := range results {
		if result == nil {
			continue
		}
		a.results = append(a.results, result)
		if result.Failed() {
			a.failures++
		}
	}
}

// Len returns the number of results collected
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}

// Failures returns the number of failed evaluations
func (a *Aggregator) Failures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures
}

// Results returns every collected result ranked best first
func (a *Aggregator) Results() []*core.SweepResult {
	a.mu.Lock()
	out := make([]*core.SweepResult, len(a.results))
	copy(out, a.results)
	a.mu.Unlock()

	SortResults(out)
	return out
}

// Top returns the k best successful results, or all of them when k <= 0
func (a *Aggregator) Top(k int) []*core.SweepResult {
	ranked := lo.Filter(a.Results(), func(r *core.SweepResult, _ int) bool { return !r.Failed() })
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// SortResults orders results by score descending with failures last; ties are broken by key
func SortResults(results []*core.SweepResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Failed() != b.Failed() {
			return !a.Failed()
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Key < b.Key
	})
}
