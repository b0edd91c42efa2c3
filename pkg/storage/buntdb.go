package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
)

const runIndex = "run_index"

// BuntStorage implements the core.ResultStorage interface using BuntDB.
// Results are stored under result:<run>:<rank> in rank order.
type BuntStorage struct {
	db  *buntdb.DB
	log logger.Logger
}

// FromMemory creates an in-memory storage
func FromMemory() (*BuntStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile creates a file-based storage
func FromFile(file string) (*BuntStorage, error) {
	return NewBuntStorage(file)
}

// NewBuntStorage creates a new BuntDB storage instance
func NewBuntStorage(sourceFile string) (*BuntStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex(runIndex, "run:*", buntdb.IndexJSON("created_at"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BuntStorage{
		db: db,
	}, nil
}

// WithLogger sets the logger used to report unreadable entries
func (b *BuntStorage) WithLogger(log logger.Logger) *BuntStorage {
	b.log = log
	return b
}

func runKey(runID string) string {
	return "run:" + runID
}

func resultKey(runID string, rank int) string {
	return fmt.Sprintf("result:%s:%08d", runID, rank)
}

// SaveResults replaces the results stored under runID
func (b *BuntStorage) SaveResults(runID string, results []*core.SweepResult) error {
	if err := validateRunID(runID); err != nil {
		return err
	}

	return b.db.Update(func(tx *buntdb.Tx) error {
		var stale []string
		err := tx.AscendKeys(fmt.Sprintf("result:%s:*", runID), func(key, _ string) bool {
			stale = append(stale, key)
			return true
		})
		if err != nil {
			return fmt.Errorf("failed to list previous results: %w", err)
		}
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete result %s: %w", key, err)
			}
		}

		for rank, result := range results {
			content, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to marshal result %s: %w", result.Key, err)
			}

			if _, _, err = tx.Set(resultKey(runID, rank), string(content), nil); err != nil {
				return fmt.Errorf("failed to store result: %w", err)
			}
		}

		content, err := json.Marshal(runRecord{ID: runID, Count: len(results), CreatedAt: time.Now().UnixNano()})
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		if _, _, err = tx.Set(runKey(runID), string(content), nil); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}

		return nil
	})
}

// LoadResults retrieves the results of a run in the order they were saved
func (b *BuntStorage) LoadResults(runID string) ([]*core.SweepResult, error) {
	results := make([]*core.SweepResult, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(runKey(runID)); err != nil {
			if err == buntdb.ErrNotFound {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return err
		}

		err := tx.AscendKeys(fmt.Sprintf("result:%s:*", runID), func(key, value string) bool {
			var result core.SweepResult
			if err := json.Unmarshal([]byte(value), &result); err != nil {
				if b.log != nil {
					b.log.WithError(err).Warnf("Failed to unmarshal result %s", key)
				}
				return true // Continue iteration
			}

			results = append(results, &result)
			return true
		})
		if err != nil {
			return fmt.Errorf("failed to iterate over results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return results, nil
}

// Runs lists the saved run IDs, oldest first
func (b *BuntStorage) Runs() ([]string, error) {
	runs := make([]string, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(runIndex, func(_, value string) bool {
			var run runRecord
			if err := json.Unmarshal([]byte(value), &run); err == nil {
				runs = append(runs, run.ID)
			}
			return true
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to iterate over runs: %w", err)
	}

	return runs, nil
}

// Close closes the database connection
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
