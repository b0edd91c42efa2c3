package backtesting

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/xhit/go-str2duration/v2"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
)

const (
	batchSize = 500
	precision = 8
)

// CSV header names
var csvHeaders = []string{"time", "open", "close", "low", "high", "volume"}

// Downloader saves historical bars from a feeder as CSV
type Downloader struct {
	feeder   core.Feeder
	log      logger.Logger
	progress io.Writer
}

// NewDownloader creates a new downloader instance with the provided feeder
func NewDownloader(feeder core.Feeder, log logger.Logger) Downloader {
	return Downloader{
		feeder:   feeder,
		log:      log,
		progress: os.Stderr,
	}
}

// WithProgressOutput sets where the progress bar is drawn
func (d Downloader) WithProgressOutput(w io.Writer) Downloader {
	d.progress = w
	return d
}

// Parameters defines the time range for data download
type Parameters struct {
	Start time.Time
	End   time.Time
}

// Option is a function type for configuring download parameters
type Option func(*Parameters)

// WithInterval sets specific start and end times for the download
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays sets the download period to a specific number of days from now
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = time.Now().AddDate(0, 0, -days)
		parameters.End = time.Now()
	}
}

// calculateBarCount determines the number of bars in the given timeframe
func calculateBarCount(start, end time.Time, timeframe string) (int, time.Duration, error) {
	totalDuration := end.Sub(start)
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}
	return int(totalDuration / interval), interval, nil
}

// Download fetches bars from the feeder and saves them to a CSV file.
// It returns the number of bars written.
func (d Downloader) Download(ctx context.Context, pair, timeframe, outputPath string, options ...Option) (int, error) {
	parameters := initializeParameters()
	for _, option := range options {
		option(parameters)
	}
	normalizeTimeParameters(parameters)

	barCount, interval, err := calculateBarCount(parameters.Start, parameters.End, timeframe)
	if err != nil {
		return 0, err
	}
	barCount++

	recordFile, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer recordFile.Close()

	d.infof("Downloading %d bars of %s for %s", barCount, timeframe, pair)

	writer := csv.NewWriter(recordFile)
	progressBar := progressbar.NewOptions64(int64(barCount),
		progressbar.OptionSetWriter(d.progress),
		progressbar.OptionSetDescription(pair),
		progressbar.OptionShowCount(),
	)

	if err := writer.Write(csvHeaders); err != nil {
		return 0, err
	}

	written, missingBars, err := d.downloadBarBatches(ctx, pair, timeframe, parameters.Start, parameters.End, interval, writer, progressBar)
	if err != nil {
		return written, err
	}

	if err = progressBar.Close(); err != nil {
		d.warnf("Failed to close progress bar: %s", err.Error())
	}

	if missingBars > 0 {
		d.warnf("%d missing bars", missingBars)
	}

	writer.Flush()
	d.infof("Done!")
	return written, writer.Error()
}

// initializeParameters creates default parameters for the last month
func initializeParameters() *Parameters {
	now := time.Now()
	return &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}
}

// normalizeTimeParameters aligns the start to the beginning of its day and
// keeps the end from passing the current time
func normalizeTimeParameters(parameters *Parameters) {
	parameters.Start = time.Date(
		parameters.Start.Year(),
		parameters.Start.Month(),
		parameters.Start.Day(),
		0, 0, 0, 0, time.UTC,
	)

	now := time.Now()
	if now.Sub(parameters.End) > 0 {
		parameters.End = time.Date(
			parameters.End.Year(),
			parameters.End.Month(),
			parameters.End.Day(),
			0, 0, 0, 0, time.UTC,
		)
	} else {
		parameters.End = now
	}
}

// downloadBarBatches downloads bars in batches and writes them to CSV
func (d Downloader) downloadBarBatches(
	ctx context.Context,
	pair string,
	timeframe string,
	start time.Time,
	end time.Time,
	interval time.Duration,
	writer *csv.Writer,
	progressBar *progressbar.ProgressBar,
) (written, missing int, err error) {
	for batchStart := start; batchStart.Before(end); batchStart = batchStart.Add(interval * batchSize) {
		batchEnd := calculateBatchEnd(batchStart, interval, end)
		isLastBatch := batchEnd.Equal(end)

		bars, err := d.feeder.BarsByPeriod(ctx, pair, timeframe, batchStart, batchEnd)
		if err != nil {
			return written, missing, err
		}

		for _, bar := range bars {
			if err := writer.Write(bar.ToSlice(precision)); err != nil {
				return written, missing, err
			}
		}
		written += len(bars)

		if !isLastBatch && len(bars) < batchSize {
			missing += batchSize - len(bars)
		}

		if err := progressBar.Add(len(bars)); err != nil {
			d.warnf("Failed to update progress bar: %s", err.Error())
		}
	}

	return written, missing, nil
}

// calculateBatchEnd determines the end time for a batch
func calculateBatchEnd(batchStart time.Time, interval time.Duration, totalEnd time.Time) time.Time {
	potentialEnd := batchStart.Add(interval * batchSize)

	if potentialEnd.Before(totalEnd) {
		// one second short of the next batch start
		return potentialEnd.Add(-1 * time.Second)
	}

	return totalEnd
}

func (d Downloader) infof(format string, args ...any) {
	if d.log != nil {
		d.log.Infof(format, args...)
	}
}

func (d Downloader) warnf(format string, args ...any) {
	if d.log != nil {
		d.log.Warnf(format, args...)
	}
}
