package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/raykavin/backsweep/pkg/core"
)

func sampleResults(n int) []*core.SweepResult {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	results := make([]*core.SweepResult, n)
	for i := range results {
		params := core.DefaultParameterSet()
		params.MaxHoldBars = 10 + i
		results[i] = &core.SweepResult{
			Parameters: params,
			Key:        params.Key(),
			Score:      float64(n - i),
			Summary:    core.Summary{TotalTrades: 1, NetProfit: 6, WinRate: 1, HasTrades: true},
			Trades: []core.Trade{{
				EntryIndex: 3, EntryTime: start, EntryPrice: 100,
				ExitIndex: 5, ExitTime: start.Add(2 * time.Hour), ExitPrice: 106,
				Quantity: 10, PnL: 6, Profit: 60, ExitReason: core.ExitTakeProfit, HoldingBars: 2,
			}},
			Duration: time.Duration(i+1) * time.Millisecond,
		}
	}
	results[n-1].Summary = core.Summary{}
	results[n-1].Trades = nil
	results[n-1].ErrMessage = "degenerate parameter set: tp_multiple must be positive, got 0"
	return results
}

type closer interface {
	core.ResultStorage
	Close() error
}

func testResultStorage(t *testing.T, store closer) {
	t.Helper()
	defer func() { require.NoError(t, store.Close()) }()

	_, err := store.LoadResults("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Error(t, store.SaveResults("", sampleResults(2)))

	first := sampleResults(3)
	require.NoError(t, store.SaveResults("grid-1", first))
	require.NoError(t, store.SaveResults("ga-1", sampleResults(4)))

	loaded, err := store.LoadResults("grid-1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, result := range loaded {
		assert.Equal(t, first[i].Key, result.Key)
		assert.Equal(t, first[i].Score, result.Score)
		assert.Equal(t, first[i].Parameters, result.Parameters)
		assert.Equal(t, first[i].Duration, result.Duration)
	}
	require.Len(t, loaded[0].Trades, 1)
	assert.Equal(t, core.ExitTakeProfit, loaded[0].Trades[0].ExitReason)
	assert.True(t, loaded[0].Trades[0].ExitTime.Equal(first[0].Trades[0].ExitTime))
	assert.True(t, loaded[2].Failed())
	assert.Nil(t, loaded[2].Err)

	// saving again replaces the run
	require.NoError(t, store.SaveResults("grid-1", sampleResults(2)))
	loaded, err = store.LoadResults("grid-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	runs, err := store.Runs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"grid-1", "ga-1"}, runs)
}

func TestBuntStorage(t *testing.T) {
	store, err := FromMemory()
	require.NoError(t, err)
	testResultStorage(t, store)
}

func TestBuntStorageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	store, err := FromFile(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveResults("first", sampleResults(2)))
	require.NoError(t, store.SaveResults("second", sampleResults(2)))
	require.NoError(t, store.Close())

	store, err = FromFile(path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, runs)
}

func TestSQLStorage(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "results.sqlite")
	store, err := FromSQL(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	records, err := store.RecordsWithQuery(func(db *gorm.DB) *gorm.DB { return db })
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, store.SaveResults("run", sampleResults(5)))
	failed, err := store.RecordsWithQuery(func(db *gorm.DB) *gorm.DB {
		return db.Where("failed = ?", true)
	})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 4, failed[0].Position)

	runs, err := store.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, runs)
	require.NoError(t, store.Close())

	store, err = FromSQL(sqlite.Open(filepath.Join(t.TempDir(), "contract.sqlite")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	testResultStorage(t, store)
}

func ExampleBuntStorage() {
	store, _ := FromMemory()
	defer store.Close()

	_ = store.SaveResults("demo", sampleResults(2))
	results, _ := store.LoadResults("demo")
	fmt.Println(len(results), results[1].Failed())
	// Output: 2 true
}
