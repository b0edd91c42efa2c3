package exchange

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raykavin/backsweep/pkg/core"
)

// 15m bars from 2024-01-01 00:00 UTC
const fifteenMinuteCSV = `1704067200,100,101,99,102,10
1704068100,101,102,100,103,11
1704069000,102,101,100,104,12
1704069900,101,103,101,105,13
1704070800,103,104,102,106,14
1704071700,104,105,103,107,15
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadBars(t *testing.T) {
	bars, err := ReadBars(strings.NewReader(fifteenMinuteCSV))
	require.NoError(t, err)
	require.Len(t, bars, 6)
	assert.Equal(t, core.Bar{
		Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Open: 100, Close: 101, Low: 99, High: 102, Volume: 10,
	}, bars[0])

	bars, err = ReadBars(strings.NewReader("volume,high,low,close,open,time\n5,12,9,11,10,1704067200\n"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.0, bars[0].Open)
	assert.Equal(t, 12.0, bars[0].High)
	assert.Equal(t, 5.0, bars[0].Volume)

	_, err = ReadBars(strings.NewReader("time,open,close\n1,2,3\n"))
	assert.ErrorIs(t, err, core.ErrMalformedSeries)

	_, err = ReadBars(strings.NewReader("1704067200,100,x,99,102,10\n"))
	assert.ErrorIs(t, err, core.ErrMalformedSeries)
}

func TestWriteBars(t *testing.T) {
	bars, err := ReadBars(strings.NewReader(fifteenMinuteCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteBars(&buf, bars))

	again, err := ReadBars(&buf)
	require.NoError(t, err)
	assert.Equal(t, bars, again)
}

func TestCSVFeedResample(t *testing.T) {
	feed, err := NewCSVFeed("1h", PairFeed{Pair: "BTCUSDT", File: writeFile(t, fifteenMinuteCSV), Timeframe: "15m"})
	require.NoError(t, err)

	assert.Len(t, feed.Bars("BTCUSDT", "15m"), 6)

	hourly := feed.Bars("BTCUSDT", "1h")
	require.Len(t, hourly, 1, "the unfinished second hour is dropped")
	assert.Equal(t, core.Bar{
		Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Open: 100, Close: 103, Low: 99, High: 105, Volume: 46,
	}, hourly[0])
}

func TestCSVFeedQueries(t *testing.T) {
	feed, err := NewCSVFeed("15m", PairFeed{Pair: "BTCUSDT", File: writeFile(t, fifteenMinuteCSV), Timeframe: "15m"})
	require.NoError(t, err)
	ctx := context.Background()

	bars, err := feed.BarsByLimit(ctx, "BTCUSDT", "15m", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 105.0, bars[1].Close)

	all, err := feed.BarsByLimit(ctx, "BTCUSDT", "15m", 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = feed.BarsByLimit(ctx, "BTCUSDT", "15m", 7)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	start := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	bars, err = feed.BarsByPeriod(ctx, "BTCUSDT", "15m", start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, bars, 3)

	feed.Limit(30 * time.Minute)
	assert.Len(t, feed.Bars("BTCUSDT", "15m"), 2)

	info := feed.AssetsInfo("BTCUSDT")
	assert.Equal(t, "BTC", info.BaseAsset)
	assert.Equal(t, "USDT", info.QuoteAsset)
	assert.Equal(t, 0.00000001, info.StepSize)

	_, err = NewCSVFeed("15m", PairFeed{Pair: "BTCUSDT", File: filepath.Join(t.TempDir(), "missing.csv"), Timeframe: "15m"})
	assert.Error(t, err)
}

func TestLoadSeries(t *testing.T) {
	gapped := strings.Replace(fifteenMinuteCSV, "1704069000,102,101,100,104,12\n", "", 1)
	feed, err := NewCSVFeed("15m", PairFeed{Pair: "BTCUSDT", File: writeFile(t, gapped), Timeframe: "15m"})
	require.NoError(t, err)
	ctx := context.Background()

	series, err := LoadSeries(ctx, feed, "BTCUSDT", "15m", 0, core.GapIgnore)
	require.NoError(t, err)
	assert.Equal(t, 5, series.Len())

	_, err = LoadSeries(ctx, feed, "BTCUSDT", "15m", 0, core.GapReject)
	assert.Error(t, err)

	series, err = LoadSeries(ctx, feed, "BTCUSDT", "15m", 0, core.GapForwardFill)
	require.NoError(t, err)
	assert.Equal(t, 6, series.Len())

	_, err = LoadSeries(ctx, feed, "BTCUSDT", "sometimes", 0, core.GapIgnore)
	assert.Error(t, err)
}

func TestSplitAssetQuote(t *testing.T) {
	for pair, want := range map[string][2]string{
		"BTCUSDT":  {"BTC", "USDT"},
		"ETHBTC":   {"ETH", "BTC"},
		"SOLFDUSD": {"SOL", "FDUSD"},
		"XYZ":      {"XYZ", ""},
	} {
		asset, quote := SplitAssetQuote(pair)
		assert.Equal(t, want, [2]string{asset, quote}, pair)
	}
}
