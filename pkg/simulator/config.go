package simulator

import "fmt"

// Config holds the account settings of a simulation
type Config struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	FeePerTrade    float64 `mapstructure:"fee_per_trade"`
	StepSize       float64 `mapstructure:"step_size"`
	// StartIndex is the first bar allowed to open a position
	StartIndex     int     `mapstructure:"start_index"`
}

// DefaultConfig starts with a balance of 1000 and no fees
func DefaultConfig() Config {
	return Config{InitialBalance: 1000}
}

// Validate checks the account settings
func (c Config) Validate() error {
	if !(c.InitialBalance > 0) {
		return fmt.Errorf("initial_balance must be positive, got %v", c.InitialBalance)
	}
	if c.FeePerTrade < 0 {
		return fmt.Errorf("fee_per_trade cannot be negative, got %v", c.FeePerTrade)
	}
	if c.StepSize < 0 {
		return fmt.Errorf("step_size cannot be negative, got %v", c.StepSize)
	}
	if c.StartIndex < 0 {
		return fmt.Errorf("start_index cannot be negative, got %d", c.StartIndex)
	}
	return nil
}
