package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/optimizer"
)

func TestCollectorProgress(t *testing.T) {
	c := New("grid")

	forwarded := 0
	progress := c.Progress(func(_ *core.SweepResult, done, total int) {
		forwarded++
		assert.Equal(t, 3, total)
	})

	progress(&core.SweepResult{Score: 2, Summary: core.Summary{TotalTrades: 4}, Duration: time.Millisecond}, 1, 3)
	progress(&core.SweepResult{Score: 9, ErrMessage: "degenerate"}, 2, 3)
	progress(&core.SweepResult{Score: 5, Summary: core.Summary{TotalTrades: 12}}, 3, 3)

	assert.Equal(t, 3, forwarded)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Evaluations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Evaluations.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.BestScore))
	assert.Equal(t, 1, testutil.CollectAndCount(c.Trades))
}

func TestCollectorGeneration(t *testing.T) {
	c := New("genetic")
	c.ObserveGeneration(optimizer.GenerationStats{Generation: 3, Best: 1, BestSoFar: 7.5})

	assert.Equal(t, 4.0, testutil.ToFloat64(c.Generation))
	assert.Equal(t, 7.5, testutil.ToFloat64(c.BestFitness))
}

func TestHandler(t *testing.T) {
	c := New("random")
	c.Observe(&core.SweepResult{Score: 1}, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `backsweep_evaluations_total{status="ok",sweep="random"} 1`)
	assert.Contains(t, rec.Body.String(), "backsweep_best_score")
}
