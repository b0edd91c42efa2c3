package storage

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when no results were saved under a run ID
var ErrRunNotFound = errors.New("run not found")

// runRecord marks a saved run; CreatedAt (unix nanoseconds) orders Runs()
type runRecord struct {
	ID        string `json:"id"`
	Count     int    `json:"count"`
	CreatedAt int64  `json:"created_at"`
}

func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	return nil
}
