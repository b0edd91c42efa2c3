package indicator

import (
	"errors"
	"fmt"
)

// VWAPMode selects the accumulation window of the volume-weighted average price
type VWAPMode string

const (
	// VWAPCumulative accumulates from the first bar of the series
	VWAPCumulative VWAPMode = "cumulative"
	// VWAPRolling uses a fixed trailing window
	VWAPRolling VWAPMode = "rolling"
)

// Config holds the window lengths of every derived series
type Config struct {
	FastPeriod int    `mapstructure:"fast_period"`
	SlowPeriod int    `mapstructure:"slow_period"`
	MAType     string `mapstructure:"ma_type"`
	RSIPeriod  int    `mapstructure:"rsi_period"`
	ATRPeriod  int    `mapstructure:"atr_period"`
	ADXPeriod  int    `mapstructure:"adx_period"`
	MACDFast   int    `mapstructure:"macd_fast"`
	MACDSlow   int    `mapstructure:"macd_slow"`
	MACDSignal int    `mapstructure:"macd_signal"`

	VWAPMode   VWAPMode `mapstructure:"vwap_mode"`
	VWAPWindow int      `mapstructure:"vwap_window"`
}

// DefaultConfig returns EMA 9/21, RSI 14, ATR 14, ADX 14, MACD 12/26/9 and a cumulative VWAP
func DefaultConfig() Config {
	return Config{
		FastPeriod: 9,
		SlowPeriod: 21,
		MAType:     "ema",
		RSIPeriod:  14,
		ATRPeriod:  14,
		ADXPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		VWAPMode:   VWAPCumulative,
	}
}

// Validate checks the window configuration
func (c Config) Validate() error {
	periods := []struct {
		name  string
		value int
	}{
		{"fast_period", c.FastPeriod},
		{"slow_period", c.SlowPeriod},
		{"rsi_period", c.RSIPeriod},
		{"atr_period", c.ATRPeriod},
		{"adx_period", c.ADXPeriod},
		{"macd_fast", c.MACDFast},
		{"macd_slow", c.MACDSlow},
		{"macd_signal", c.MACDSignal},
	}
	for _, p := range periods {
		if p.value < 2 {
			return fmt.Errorf("indicator window %s must be at least 2, got %d", p.name, p.value)
		}
	}

	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("fast_period (%d) must be shorter than slow_period (%d)", c.FastPeriod, c.SlowPeriod)
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("macd_fast (%d) must be shorter than macd_slow (%d)", c.MACDFast, c.MACDSlow)
	}
	if _, err := c.maType(); err != nil {
		return err
	}

	switch c.VWAPMode {
	case VWAPCumulative:
	case VWAPRolling:
		if c.VWAPWindow < 1 {
			return errors.New("rolling vwap needs vwap_window >= 1")
		}
	case "":
		return errors.New("vwap_mode must be set to cumulative or rolling")
	default:
		return fmt.Errorf("unknown vwap_mode: %s", c.VWAPMode)
	}

	return nil
}

func (c Config) maType() (MaType, error) {
	switch c.MAType {
	case "ema", "":
		return TypeEMA, nil
	case "sma":
		return TypeSMA, nil
	default:
		return 0, fmt.Errorf("unknown ma_type: %s", c.MAType)
	}
}

// Warmups returns the number of leading undefined entries of each series
func (c Config) Warmups() map[string]int {
	vwap := 0
	if c.VWAPMode == VWAPRolling {
		vwap = c.VWAPWindow - 1
	}
	return map[string]int{
		Close:      0,
		FastMA:     c.FastPeriod - 1,
		SlowMA:     c.SlowPeriod - 1,
		RSI:        c.RSIPeriod,
		ATR:        c.ATRPeriod,
		ATRMean:    2*c.ATRPeriod - 1,
		VWAP:       vwap,
		ADX:        2*c.ADXPeriod - 1,
		MACD:       c.MACDSlow - 1,
		MACDSignal: c.MACDSlow + c.MACDSignal - 2,
		MACDHist:   c.MACDSlow + c.MACDSignal - 2,
	}
}

// MaxWarmup returns the longest warm-up of all series
func (c Config) MaxWarmup() int {
	longest := 0
	for _, w := range c.Warmups() {
		longest = max(longest, w)
	}
	return longest
}
