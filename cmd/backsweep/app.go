package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/raykavin/backsweep/pkg/config"
	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/exchange"
	"github.com/raykavin/backsweep/pkg/exchange/binance"
	"github.com/raykavin/backsweep/pkg/indicator"
	"github.com/raykavin/backsweep/pkg/logger"
	"github.com/raykavin/backsweep/pkg/logger/logrus"
	"github.com/raykavin/backsweep/pkg/logger/zerolog"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/metrics"
	"github.com/raykavin/backsweep/pkg/notification"
	"github.com/raykavin/backsweep/pkg/optimizer"
	"github.com/raykavin/backsweep/pkg/storage"
)

// app holds everything a command needs once the configuration is loaded
type app struct {
	cfg       *config.Config
	log       logger.Logger
	storage   core.ResultStorage
	notifier  notification.Multi
	telegram  *notification.Telegram
	collector *metrics.Collector
	server    *http.Server
	status    *status
	closers   []func() error
}

// status tracks the running sweep for the Telegram /status command
type status struct {
	mu    sync.Mutex
	name  string
	done  int
	total int
	start time.Time
}

func (s *status) begin(name string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name, s.done, s.total, s.start = name, 0, total, time.Now()
}

func (s *status) advance(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	if s.total <= 0 {
		s.total = total
	}
}

func (s *status) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		return "No sweep running."
	}
	return fmt.Sprintf("%s: %d/%d evaluations in %s", s.name, s.done, s.total,
		time.Since(s.start).Round(time.Second))
}

func newApp(configPath, sweep string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		log:       log,
		notifier:  notification.Multi{notification.LogNotifier{Log: log}},
		collector: metrics.New(sweep),
		status:    &status{},
	}

	if err := a.setupStorage(); err != nil {
		return nil, err
	}
	if err := a.setupNotifiers(); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.setupMetrics()

	return a, nil
}

// newLogger builds the configured logging backend
func newLogger(cfg config.LogConfig) (logger.Logger, error) {
	switch cfg.Backend {
	case "logrus":
		return logrus.New(cfg.Level, cfg.JSON, os.Stderr)
	case "zerolog", "":
		return zerolog.New(zerolog.Options{
			Level:          cfg.Level,
			DateTimeLayout: cfg.DateTimeLayout,
			Colored:        cfg.Colored,
			JSON:           cfg.JSON,
			Output:         os.Stderr,
		})
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

func (a *app) setupStorage() error {
	switch a.cfg.Storage.Driver {
	case "buntdb":
		db, err := storage.FromFile(a.cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", a.cfg.Storage.Path, err)
		}
		a.storage = db.WithLogger(a.log)
		a.closers = append(a.closers, db.Close)
	case "sqlite":
		db, err := storage.FromSQL(sqlite.Open(a.cfg.Storage.Path), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return fmt.Errorf("could not open %s: %w", a.cfg.Storage.Path, err)
		}
		a.storage = db
		a.closers = append(a.closers, db.Close)
	}
	return nil
}

func (a *app) setupNotifiers() error {
	if a.cfg.Telegram.Enabled {
		bot, err := notification.NewTelegram(a.cfg.Telegram.Token, a.cfg.Telegram.Users,
			notification.WithLogger(a.log),
			notification.WithStatus(a.status.String),
		)
		if err != nil {
			return err
		}
		bot.Start()
		a.telegram = bot
		a.notifier = append(a.notifier, bot)
		a.closers = append(a.closers, func() error {
			bot.Stop()
			return nil
		})
	}

	if a.cfg.Mail.Enabled {
		a.notifier = append(a.notifier, notification.NewMail(a.cfg.Mail.MailParams, a.log))
	}
	return nil
}

func (a *app) setupMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()
	a.log.Infof("Serving metrics on %s/metrics", a.cfg.Metrics.Addr)

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(ctx)
	})
}

// Close releases storage, notifiers and the metrics server
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// feeder returns the configured market data source
func (a *app) feeder() (core.Feeder, error) {
	switch a.cfg.Source {
	case "binance":
		return newBinanceFeeder(a.cfg.Binance, a.log), nil
	default:
		feed, err := exchange.NewCSVFeed(a.cfg.Timeframe, exchange.PairFeed{
			Pair:      a.cfg.Symbol,
			File:      a.cfg.DataFile,
			Timeframe: a.cfg.Timeframe,
		})
		if err != nil {
			return nil, err
		}
		return feed, nil
	}
}

func newBinanceFeeder(cfg config.BinanceConfig, log logger.Logger) *binance.Feeder {
	options := []binance.Option{binance.WithLogger(log)}
	if cfg.APIKey != "" {
		options = append(options, binance.WithCredentials(cfg.APIKey, cfg.SecretKey))
	}
	if cfg.Testnet {
		options = append(options, binance.WithTestNet())
	}
	return binance.NewFeeder(options...)
}

// evaluator loads the series, computes the indicator set once and returns an
// evaluator sharing both across every simulation
func (a *app) evaluator(ctx context.Context) (*optimizer.BacktestEvaluator, error) {
	feeder, err := a.feeder()
	if err != nil {
		return nil, err
	}

	series, err := exchange.LoadSeries(ctx, feeder, a.cfg.Symbol, a.cfg.Timeframe, a.cfg.LookbackBars, a.cfg.GapPolicy)
	if err != nil {
		return nil, err
	}
	a.log.WithFields(map[string]any{
		"symbol":    a.cfg.Symbol,
		"timeframe": a.cfg.Timeframe,
		"bars":      series.Len(),
	}).Info("Series loaded")

	set, err := indicator.Compute(series, a.cfg.Indicators)
	if err != nil {
		return nil, err
	}

	simulation := a.cfg.Simulation
	simulation.StepSize = stepSize(feeder, a.cfg.Symbol, simulation.StepSize)

	evaluator, err := optimizer.NewBacktestEvaluator(series, set, simulation, a.cfg.Score, a.log)
	if err != nil {
		return nil, err
	}
	return evaluator, nil
}

// assetSource is a feeder that knows the trading increments of its pairs
type assetSource interface {
	AssetsInfo(pair string) core.AssetInfo
}

// stepSize returns the configured quantity step, or the step of the feeder
// when none is configured
func stepSize(feeder core.Feeder, symbol string, configured float64) float64 {
	if configured > 0 {
		return configured
	}
	if source, ok := feeder.(assetSource); ok {
		return source.AssetsInfo(symbol).StepSize
	}
	return configured
}

// progress returns the callback that drives the progress bar, the metrics
// collector and the /status answer. When total is not positive the size of
// the evaluated batch is used instead.
func (a *app) progress(name string, total int) (optimizer.Progress, func()) {
	fixed := total > 0
	if !fixed {
		total = -1
	}
	a.status.begin(name, total)

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
	)

	tick := func(_ *core.SweepResult, _, batch int) {
		a.status.advance(batch)
		if !fixed {
			bar.ChangeMax(batch)
		}
		if err := bar.Add(1); err != nil {
			a.log.WithError(err).Warn("Failed to update progress bar")
		}
	}

	return a.collector.Progress(tick), func() {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

// publish stores and announces the ranked results of a run
func (a *app) publish(runID, title string, results []*core.SweepResult, agg *metric.Aggregator) {
	if a.storage != nil {
		if err := a.storage.SaveResults(runID, results); err != nil {
			a.notifier.OnError(fmt.Errorf("could not store run %s: %w", runID, err))
		} else {
			a.log.WithFields(map[string]any{
				"run":    runID,
				"failed": agg.Failures(),
			}).Infof("Stored %d results", agg.Len())
		}
	}

	if a.telegram != nil {
		a.telegram.SetBest(agg)
	}
	a.notifier.Notify(notification.FormatSummary(fmt.Sprintf("%s finished (run %s)", title, runID), agg, 5))
}
