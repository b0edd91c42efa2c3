package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/raykavin/backsweep/pkg/core"
)

// ResultRecord is one ranked sweep result. The summary columns allow SQL
// queries; Payload holds the full result as JSON.
type ResultRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index;not null"`
	Position    int
	Key         string
	Score       float64
	Fitness     float64
	TotalTrades int
	NetProfit   float64
	WinRate     float64
	Failed      bool
	Payload     string
	CreatedAt   time.Time
}

// TableName sets the table used for sweep results
func (ResultRecord) TableName() string {
	return "sweep_results"
}

// SQLStorage implements the core.ResultStorage interface using a SQL database via GORM
type SQLStorage struct {
	db *gorm.DB
}

// FromSQL creates a new SQL storage instance
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQLStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(&ResultRecord{})
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{
		db: db,
	}, nil
}

// SaveResults replaces the results stored under runID
func (s *SQLStorage) SaveResults(runID string, results []*core.SweepResult) error {
	if err := validateRunID(runID); err != nil {
		return err
	}

	records := make([]ResultRecord, 0, len(results))
	for rank, result := range results {
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result %s: %w", result.Key, err)
		}

		records = append(records, ResultRecord{
			RunID:       runID,
			Position:    rank,
			Key:         result.Key,
			Score:       result.Score,
			Fitness:     result.Fitness,
			TotalTrades: result.Summary.TotalTrades,
			NetProfit:   result.Summary.NetProfit,
			WinRate:     result.Summary.WinRate,
			Failed:      result.Failed(),
			Payload:     string(payload),
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&ResultRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete previous results: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("failed to create results: %w", err)
		}
		return nil
	})
}

// LoadResults retrieves the results of a run in rank order
func (s *SQLStorage) LoadResults(runID string) ([]*core.SweepResult, error) {
	records, err := s.RecordsWithQuery(func(db *gorm.DB) *gorm.DB {
		return db.Where("run_id = ?", runID).Order("position")
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	results := make([]*core.SweepResult, 0, len(records))
	for _, record := range records {
		var result core.SweepResult
		if err := json.Unmarshal([]byte(record.Payload), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result %s: %w", record.Key, err)
		}
		results = append(results, &result)
	}

	return results, nil
}

// Runs lists the saved run IDs, oldest first
func (s *SQLStorage) Runs() ([]string, error) {
	var records []ResultRecord
	result := s.db.Select("run_id", "id").Order("id").Find(&records)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch runs: %w", result.Error)
	}

	return lo.Uniq(lo.Map(records, func(record ResultRecord, _ int) string {
		return record.RunID
	})), nil
}

// RecordsWithQuery allows for more customized querying using GORM's query builder
func (s *SQLStorage) RecordsWithQuery(query func(*gorm.DB) *gorm.DB) ([]ResultRecord, error) {
	var records []ResultRecord

	result := query(s.db).Find(&records)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to execute query: %w", result.Error)
	}

	return records, nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}
