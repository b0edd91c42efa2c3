package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
)

const maxKlinesPerRequest = 1000

// Feeder downloads historical klines from the Binance spot API
type Feeder struct {
	client   *binance.Client
	backoff  *backoff.Backoff
	retries  int
	pageSize int
	log      logger.Logger
}

// Option configures a Feeder
type Option func(*Feeder)

// WithCredentials sets the API credentials; klines are public so they are optional
func WithCredentials(key, secret string) Option {
	return func(f *Feeder) {
		baseURL := f.client.BaseURL
		f.client = binance.NewClient(key, secret)
		f.client.BaseURL = baseURL
	}
}

// WithTestNet enables the Binance testnet
func WithTestNet() Option {
	return func(f *Feeder) {
		f.client.BaseURL = binance.BaseAPITestnetURL
	}
}

// WithBaseURL points the client at a custom REST endpoint
func WithBaseURL(url string) Option {
	return func(f *Feeder) {
		f.client.BaseURL = url
	}
}

// WithBackoff sets the delay range between retries
func WithBackoff(min, max time.Duration) Option {
	return func(f *Feeder) {
		f.backoff = &backoff.Backoff{Min: min, Max: max, Factor: 2}
	}
}

// WithRetries sets how many times a failed request is attempted
func WithRetries(n int) Option {
	return func(f *Feeder) {
		f.retries = n
	}
}

// WithPageSize sets the number of klines requested per call
func WithPageSize(n int) Option {
	return func(f *Feeder) {
		if n > 0 && n <= maxKlinesPerRequest {
			f.pageSize = n
		}
	}
}

// WithLogger sets the logger used to report retries
func WithLogger(log logger.Logger) Option {
	return func(f *Feeder) {
		f.log = log
	}
}

// NewFeeder creates a kline feeder. No request is made until bars are asked for.
func NewFeeder(options ...Option) *Feeder {
	f := &Feeder{
		client:   binance.NewClient("", ""),
		backoff:  setupBackoffRetry(),
		retries:  5,
		pageSize: maxKlinesPerRequest,
	}

	for _, option := range options {
		option(f)
	}

	return f
}

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 1 * time.Second,
	}
}

// Ping checks the connection to the API
func (f *Feeder) Ping(ctx context.Context) error {
	if err := f.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance ping fail: %w", err)
	}
	return nil
}

// BarsByLimit returns the latest limit closed bars. The kline still in progress is dropped.
func (f *Feeder) BarsByLimit(ctx context.Context, symbol, timeframe string, limit int) ([]core.Bar, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var (
		pages     [][]core.Bar
		remaining = limit + 1
		endTime   int64
	)

	for remaining > 0 {
		size := min(remaining, f.pageSize)
		service := f.client.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(size)
		if endTime > 0 {
			service = service.EndTime(endTime)
		}

		klines, err := f.fetch(ctx, service)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}

		pages = append([][]core.Bar{convertKlines(klines)}, pages...)
		remaining -= len(klines)
		if len(klines) < size {
			break
		}
		endTime = klines[0].OpenTime - 1
	}

	bars := make([]core.Bar, 0, limit+1)
	for _, page := range pages {
		bars = append(bars, page...)
	}
	if len(bars) > 0 {
		bars = bars[:len(bars)-1]
	}

	return bars, nil
}

// BarsByPeriod returns the bars opened within [start, end]
func (f *Feeder) BarsByPeriod(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]core.Bar, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("period end %s is before start %s", end, start)
	}

	var (
		bars      []core.Bar
		startTime = start.UnixMilli()
		endTime   = end.UnixMilli()
	)

	for startTime <= endTime {
		service := f.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(startTime).
			EndTime(endTime).
			Limit(f.pageSize)

		klines, err := f.fetch(ctx, service)
		if err != nil {
			return nil, err
		}

		bars = append(bars, convertKlines(klines)...)
		if len(klines) < f.pageSize {
			break
		}
		startTime = klines[len(klines)-1].OpenTime + 1
	}

	return bars, nil
}

// fetch runs the request, retrying with backoff on transient failures
func (f *Feeder) fetch(ctx context.Context, service *binance.KlinesService) ([]*binance.Kline, error) {
	retry := *f.backoff
	retry.Reset()

	var lastErr error
	for attempt := 1; attempt <= max(f.retries, 1); attempt++ {
		klines, err := service.Do(ctx)
		if err == nil {
			return klines, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}

		lastErr = err
		delay := retry.Duration()
		if f.log != nil {
			f.log.WithError(err).Warnf("klines request failed (attempt %d), retrying in %s", attempt, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("klines request failed after %d attempts: %w", max(f.retries, 1), lastErr)
}

// retryable is false for API errors about the request itself (codes -1100 to -1199)
func retryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code > -1100 || apiErr.Code <= -1200
	}
	return true
}

func convertKlines(klines []*binance.Kline) []core.Bar {
	bars := make([]core.Bar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, convertKlineToBar(*k))
	}
	return bars
}

// convertKlineToBar converts a Binance kline to a core.Bar
func convertKlineToBar(k binance.Kline) core.Bar {
	bar := core.Bar{Time: time.UnixMilli(k.OpenTime).UTC()}

	bar.Open, _ = strconv.ParseFloat(k.Open, 64)
	bar.Close, _ = strconv.ParseFloat(k.Close, 64)
	bar.High, _ = strconv.ParseFloat(k.High, 64)
	bar.Low, _ = strconv.ParseFloat(k.Low, 64)
	bar.Volume, _ = strconv.ParseFloat(k.Volume, 64)

	return bar
}
