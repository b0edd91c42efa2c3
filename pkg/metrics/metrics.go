package metrics

import (
	"math"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/optimizer"
)

// Collector exposes sweep progress on its own registry so several sweeps
// in one process never collide
type Collector struct {
	registry *prometheus.Registry

	Evaluations *prometheus.CounterVec
	Duration    prometheus.Histogram
	Trades      prometheus.Histogram
	BestScore   prometheus.Gauge
	Generation  prometheus.Gauge
	BestFitness prometheus.Gauge
}

// New creates a collector for the given sweep kind (grid, random, genetic)
func New(sweep string) *Collector {
	labels := prometheus.Labels{"sweep": sweep}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "backsweep_evaluations_total",
				Help:        "Total number of parameter sets evaluated (by status).",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "backsweep_evaluation_duration_seconds",
				Help:        "Wall time of a single evaluation.",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		),
		Trades: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "backsweep_trades_per_evaluation",
				Help:        "Number of closed trades per evaluation.",
				ConstLabels: labels,
				Buckets:     prometheus.LinearBuckets(0, 10, 10),
			},
		),
		BestScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "backsweep_best_score",
				Help:        "Best composite score seen so far.",
				ConstLabels: labels,
			},
		),
		Generation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "backsweep_generation",
				Help:        "Last completed generation of the genetic search.",
				ConstLabels: labels,
			},
		),
		BestFitness: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "backsweep_best_fitness",
				Help:        "Best fitness seen so far by the genetic search.",
				ConstLabels: labels,
			},
		),
	}

	c.registry.MustRegister(c.Evaluations, c.Duration, c.Trades, c.BestScore, c.Generation, c.BestFitness)
	return c
}

// Observe records one finished evaluation
func (c *Collector) Observe(result *core.SweepResult, best float64) {
	if result.Failed() {
		c.Evaluations.WithLabelValues("failed").Inc()
	} else {
		c.Evaluations.WithLabelValues("ok").Inc()
		c.Trades.Observe(float64(result.Summary.TotalTrades))
	}
	c.Duration.Observe(result.Duration.Seconds())
	if !math.IsInf(best, -1) {
		c.BestScore.Set(best)
	}
}

// ObserveGeneration records the statistics of a completed generation
func (c *Collector) ObserveGeneration(stats optimizer.GenerationStats) {
	c.Generation.Set(float64(stats.Generation + 1))
	c.BestFitness.Set(stats.BestSoFar)
}

// Progress wraps next so every evaluation is also recorded. It is called from
// worker goroutines.
func (c *Collector) Progress(next optimizer.Progress) optimizer.Progress {
	var (
		mu   sync.Mutex
		best = math.Inf(-1)
	)
	return func(result *core.SweepResult, done, total int) {
		mu.Lock()
		if !result.Failed() && result.Score > best {
			best = result.Score
		}
		c.Observe(result, best)
		mu.Unlock()

		if next != nil {
			next(result, done, total)
		}
	}
}

// Registry returns the registry the collectors live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
