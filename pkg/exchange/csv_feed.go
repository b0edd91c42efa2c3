package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/xhit/go-str2duration/v2"

	"github.com/raykavin/backsweep/pkg/core"
)

var defaultHeaderMap = map[string]int{
	"time": 0, "open": 1, "close": 2, "low": 3, "high": 4, "volume": 5,
}

var quoteAssets = []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB"}

// PairFeed describes one CSV file of bars
type PairFeed struct {
	Pair      string
	File      string
	Timeframe string
}

// CSVFeed serves bars read from CSV files, resampled to a target timeframe.
// Rows are time,open,close,low,high,volume with unix-second timestamps; a header
// row may reorder the columns.
type CSVFeed struct {
	Feeds            map[string]PairFeed
	BarPairTimeFrame map[string][]core.Bar
}

// SplitAssetQuote splits a trading pair such as BTCUSDT into asset and quote
func SplitAssetQuote(pair string) (asset, quote string) {
	for _, quote = range quoteAssets {
		if len(pair) > len(quote) && pair[len(pair)-len(quote):] == quote {
			return pair[:len(pair)-len(quote)], quote
		}
	}
	return pair, ""
}

// AssetsInfo returns the increments of a pair. Files carry no exchange
// filters, so quantities and prices use the 8 decimals they are written with.
func (c CSVFeed) AssetsInfo(pair string) core.AssetInfo {
	asset, quote := SplitAssetQuote(pair)
	return core.AssetInfo{
		BaseAsset:  asset,
		QuoteAsset: quote,
		StepSize:   0.00000001,
		TickSize:   0.00000001,
	}
}

// parseHeaders returns the column index of every field and whether the first row is a header
func parseHeaders(headers []string) (headerMap map[string]int, hasHeader bool, err error) {
	if _, err := strconv.ParseInt(headers[0], 10, 64); err == nil {
		return defaultHeaderMap, false, nil
	}

	headerMap = make(map[string]int, len(headers))
	for index, header := range headers {
		headerMap[header] = index
	}

	for field := range defaultHeaderMap {
		if _, ok := headerMap[field]; !ok {
			return nil, true, fmt.Errorf("%w: header has no %q column", core.ErrMalformedSeries, field)
		}
	}

	return headerMap, true, nil
}

// NewCSVFeed reads every feed and resamples it to the target timeframe
func NewCSVFeed(targetTimeframe string, feeds ...PairFeed) (*CSVFeed, error) {
	csvFeed := &CSVFeed{
		Feeds:            make(map[string]PairFeed),
		BarPairTimeFrame: make(map[string][]core.Bar),
	}

	for _, feed := range feeds {
		csvFeed.Feeds[feed.Pair] = feed

		file, err := os.Open(feed.File)
		if err != nil {
			return nil, err
		}
		bars, err := ReadBars(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", feed.File, err)
		}

		sourceKey := feedTimeframeKey(feed.Pair, feed.Timeframe)
		csvFeed.BarPairTimeFrame[sourceKey] = bars

		if err := csvFeed.resample(feed.Pair, feed.Timeframe, targetTimeframe); err != nil {
			return nil, err
		}
	}

	return csvFeed, nil
}

// ReadBars parses bars from CSV
func ReadBars(r io.Reader) ([]core.Bar, error) {
	lines, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	headerMap, hasHeader, err := parseHeaders(lines[0])
	if err != nil {
		return nil, err
	}
	if hasHeader {
		lines = lines[1:]
	}

	bars := make([]core.Bar, 0, len(lines))
	for i, line := range lines {
		bar, err := parseBarFromLine(line, headerMap)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", core.ErrMalformedSeries, i+1, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// WriteBars writes bars in the default column order, with a header row
func WriteBars(w io.Writer, bars []core.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "open", "close", "low", "high", "volume"}); err != nil {
		return err
	}
	for _, bar := range bars {
		if err := writer.Write(bar.ToSlice(8)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseBarFromLine(line []string, headerMap map[string]int) (core.Bar, error) {
	field := func(name string) (string, error) {
		index := headerMap[name]
		if index >= len(line) {
			return "", fmt.Errorf("missing %s column", name)
		}
		return line[index], nil
	}

	raw, err := field("time")
	if err != nil {
		return core.Bar{}, err
	}
	timestamp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return core.Bar{}, err
	}

	bar := core.Bar{Time: time.Unix(timestamp, 0).UTC()}
	for name, target := range map[string]*float64{
		"open": &bar.Open, "close": &bar.Close, "low": &bar.Low, "high": &bar.High, "volume": &bar.Volume,
	} {
		if raw, err = field(name); err != nil {
			return core.Bar{}, err
		}
		if *target, err = strconv.ParseFloat(raw, 64); err != nil {
			return core.Bar{}, err
		}
	}

	return bar, nil
}

func feedTimeframeKey(pair, timeframe string) string {
	return fmt.Sprintf("%s--%s", pair, timeframe)
}

// Limit keeps only the bars of the last duration
func (c *CSVFeed) Limit(duration time.Duration) *CSVFeed {
	for key, bars := range c.BarPairTimeFrame {
		if len(bars) == 0 {
			continue
		}

		start := bars[len(bars)-1].Time.Add(-duration)
		c.BarPairTimeFrame[key] = lo.Filter(bars, func(bar core.Bar, _ int) bool {
			return bar.Time.After(start)
		})
	}
	return c
}

// isFirstBarPeriod reports whether the bar at t opens a target period
func isFirstBarPeriod(t time.Time, fromTimeframe, targetTimeframe string) (bool, error) {
	fromDuration, err := str2duration.ParseDuration(fromTimeframe)
	if err != nil {
		return false, err
	}

	prev := t.Add(-fromDuration).UTC()
	return isLastBarPeriod(prev, fromTimeframe, targetTimeframe)
}

// isLastBarPeriod reports whether the bar at t closes a target period
func isLastBarPeriod(t time.Time, fromTimeframe, targetTimeframe string) (bool, error) {
	if fromTimeframe == targetTimeframe {
		return true, nil
	}

	fromDuration, err := str2duration.ParseDuration(fromTimeframe)
	if err != nil {
		return false, err
	}

	next := t.Add(fromDuration).UTC()
	return isTimeOnPeriodBoundary(next, targetTimeframe)
}

func isTimeOnPeriodBoundary(t time.Time, targetTimeframe string) (bool, error) {
	switch targetTimeframe {
	case "1m":
		return t.Second() == 0, nil
	case "5m":
		return t.Minute()%5 == 0 && t.Second() == 0, nil
	case "10m":
		return t.Minute()%10 == 0 && t.Second() == 0, nil
	case "15m":
		return t.Minute()%15 == 0 && t.Second() == 0, nil
	case "30m":
		return t.Minute()%30 == 0 && t.Second() == 0, nil
	case "1h":
		return t.Minute() == 0 && t.Second() == 0, nil
	case "2h":
		return t.Hour()%2 == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "4h":
		return t.Hour()%4 == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "12h":
		return t.Hour()%12 == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "1d":
		return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0, nil
	case "1w":
		return t.Weekday() == time.Sunday && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0, nil
	default:
		return false, fmt.Errorf("invalid timeframe: %s", targetTimeframe)
	}
}

func (c *CSVFeed) resample(pair, sourceTimeframe, targetTimeframe string) error {
	sourceBars := c.BarPairTimeFrame[feedTimeframeKey(pair, sourceTimeframe)]
	if len(sourceBars) == 0 || sourceTimeframe == targetTimeframe {
		return nil
	}

	startIdx, err := findFirstPeriodBar(sourceBars, sourceTimeframe, targetTimeframe)
	if err != nil {
		return err
	}

	targetBars, err := resampleBars(sourceBars[startIdx:], sourceTimeframe, targetTimeframe)
	if err != nil {
		return err
	}

	c.BarPairTimeFrame[feedTimeframeKey(pair, targetTimeframe)] = targetBars
	return nil
}

func findFirstPeriodBar(bars []core.Bar, sourceTimeframe, targetTimeframe string) (int, error) {
	for i := range bars {
		isFirst, err := isFirstBarPeriod(bars[i].Time, sourceTimeframe, targetTimeframe)
		if err != nil {
			return 0, err
		}
		if isFirst {
			return i, nil
		}
	}
	return 0, nil
}

// resampleBars merges consecutive bars into target periods; a trailing
// unfinished period is dropped
func resampleBars(sourceBars []core.Bar, sourceTimeframe, targetTimeframe string) ([]core.Bar, error) {
	targetBars := make([]core.Bar, 0, len(sourceBars)/4)

	var current core.Bar
	inPeriod := false

	for _, bar := range sourceBars {
		isLast, err := isLastBarPeriod(bar.Time, sourceTimeframe, targetTimeframe)
		if err != nil {
			return nil, err
		}

		if !inPeriod {
			current = bar
			inPeriod = true
		} else {
			current.High = math.Max(current.High, bar.High)
			current.Low = math.Min(current.Low, bar.Low)
			current.Close = bar.Close
			current.Volume += bar.Volume
		}

		if isLast {
			targetBars = append(targetBars, current)
			inPeriod = false
		}
	}

	return targetBars, nil
}

// Bars returns every bar of a pair and timeframe
func (c CSVFeed) Bars(pair, timeframe string) []core.Bar {
	return c.BarPairTimeFrame[feedTimeframeKey(pair, timeframe)]
}

// BarsByPeriod returns the bars within [start, end]
func (c CSVFeed) BarsByPeriod(_ context.Context, pair, timeframe string, start, end time.Time) ([]core.Bar, error) {
	return lo.Filter(c.Bars(pair, timeframe), func(bar core.Bar, _ int) bool {
		return !bar.Time.Before(start) && !bar.Time.After(end)
	}), nil
}

// BarsByLimit returns the latest limit bars; limit <= 0 returns all of them
func (c CSVFeed) BarsByLimit(_ context.Context, pair, timeframe string, limit int) ([]core.Bar, error) {
	bars := c.Bars(pair, timeframe)
	if limit <= 0 {
		return bars, nil
	}
	if len(bars) < limit {
		return nil, fmt.Errorf("%w: %s has %d bars, %d requested", core.ErrInsufficientData, pair, len(bars), limit)
	}
	return bars[len(bars)-limit:], nil
}
