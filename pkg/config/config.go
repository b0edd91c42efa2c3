// Package config loads the sweep configuration using Viper
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/indicator"
	"github.com/raykavin/backsweep/pkg/metric"
	"github.com/raykavin/backsweep/pkg/notification"
	"github.com/raykavin/backsweep/pkg/optimizer"
	"github.com/raykavin/backsweep/pkg/simulator"
)

// EnvPrefix is prepended to every environment override, e.g. BACKSWEEP_SYMBOL
const EnvPrefix = "BACKSWEEP"

// Config holds every setting of a backtest, sweep or optimization run
type Config struct {
	Symbol       string         `mapstructure:"symbol"`
	Timeframe    string         `mapstructure:"timeframe"`
	LookbackBars int            `mapstructure:"lookback_bars"` // 0 reads every bar of the CSV file
	Source       string         `mapstructure:"source"`
	DataFile     string         `mapstructure:"data_file"`
	GapPolicy    core.GapPolicy `mapstructure:"gap_policy"`
	Parallelism  int            `mapstructure:"parallelism"`

	Simulation simulator.Config        `mapstructure:",squash"`
	Parameters core.ParameterSet       `mapstructure:",squash"`
	Genetic    optimizer.GeneticConfig `mapstructure:",squash"`

	Indicators indicator.Config    `mapstructure:"indicator_windows"`
	Score      metric.ScoreWeights `mapstructure:"score_weights"`
	Grid       GridConfig          `mapstructure:"grid"`
	Log        LogConfig           `mapstructure:"log"`
	Storage    StorageConfig       `mapstructure:"storage"`
	Telegram   TelegramConfig      `mapstructure:"telegram"`
	Mail       MailConfig          `mapstructure:"mail"`
	Binance    BinanceConfig       `mapstructure:"binance"`
	Metrics    MetricsConfig       `mapstructure:"metrics"`
}

// GridConfig describes the search space of the sweep and random search commands
type GridConfig struct {
	Parameters      []optimizer.Parameter `mapstructure:"parameters"`
	MaxCombinations int                   `mapstructure:"max_combinations"`
	RandomSamples   int                   `mapstructure:"random_samples"`
	TopN            int                   `mapstructure:"top_n"`
	Seed            int64                 `mapstructure:"seed"`
}

// LogConfig selects the logging backend
type LogConfig struct {
	Backend        string `mapstructure:"backend"`
	Level          string `mapstructure:"level"`
	JSON           bool   `mapstructure:"json"`
	Colored        bool   `mapstructure:"colored"`
	DateTimeLayout string `mapstructure:"datetime_layout"`
}

// StorageConfig selects where sweep results are persisted
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Token   string  `mapstructure:"token"`
	Users   []int64 `mapstructure:"users"`
}

// MailConfig holds the SMTP notification settings
type MailConfig struct {
	Enabled bool `mapstructure:"enabled"`

	notification.MailParams `mapstructure:",squash"`
}

// BinanceConfig holds Binance market data configuration
type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	Testnet   bool   `mapstructure:"testnet"`
}

// MetricsConfig holds the Prometheus endpoint settings; an empty address disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() *Config {
	params := core.DefaultParameterSet()
	genetic := optimizer.DefaultGeneticConfig()
	genetic.Base = params

	return &Config{
		Symbol:       "BTCUSDT",
		Timeframe:    "1h",
		LookbackBars: 0,
		Source:       "csv",
		DataFile:     "BTCUSDT-1h.csv",
		GapPolicy:    core.GapIgnore,
		Parallelism:  1,
		Simulation:   simulator.DefaultConfig(),
		Parameters:   params,
		Genetic:      genetic,
		Indicators:   indicator.DefaultConfig(),
		Score:        metric.DefaultScoreWeights(),
		Grid: GridConfig{
			RandomSamples: 100,
			TopN:          10,
		},
		Log: LogConfig{
			Backend:        "zerolog",
			Level:          "info",
			Colored:        true,
			DateTimeLayout: "2006-01-02 15:04:05",
		},
		Storage: StorageConfig{Driver: "none"},
		Mail: MailConfig{
			MailParams: notification.MailParams{SMTPServerPort: 587},
		},
	}
}

// Load reads the configuration file at path (optional when empty) and the
// BACKSWEEP_ environment overrides on top of the defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read configuration %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not parse configuration: %w", err)
	}

	cfg.Genetic.Base = cfg.Parameters

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("symbol", cfg.Symbol)
	v.SetDefault("timeframe", cfg.Timeframe)
	v.SetDefault("lookback_bars", cfg.LookbackBars)
	v.SetDefault("source", cfg.Source)
	v.SetDefault("data_file", cfg.DataFile)
	v.SetDefault("gap_policy", string(cfg.GapPolicy))
	v.SetDefault("parallelism", cfg.Parallelism)

	v.SetDefault("initial_balance", cfg.Simulation.InitialBalance)
	v.SetDefault("fee_per_trade", cfg.Simulation.FeePerTrade)
	v.SetDefault("step_size", cfg.Simulation.StepSize)
	v.SetDefault("start_index", cfg.Simulation.StartIndex)

	p := cfg.Parameters
	v.SetDefault("tp_multiple", p.TakeProfitMultiple)
	v.SetDefault("sl_multiple", p.StopLossMultiple)
	v.SetDefault("max_hold_bars", p.MaxHoldBars)
	v.SetDefault("mode", string(p.Mode))
	v.SetDefault("signal_weights", weightMaps(p.BuyWeights))
	v.SetDefault("sell_weights", weightMaps(p.SellWeights))
	v.SetDefault("signal_threshold", p.BuyThreshold)
	v.SetDefault("sell_threshold", p.SellThreshold)
	v.SetDefault("rsi_wide.lower", p.RSIWide.Lower)
	v.SetDefault("rsi_wide.upper", p.RSIWide.Upper)
	v.SetDefault("rsi_narrow.lower", p.RSINarrow.Lower)
	v.SetDefault("rsi_narrow.upper", p.RSINarrow.Upper)
	v.SetDefault("rsi_overbought", p.RSIOverbought)
	v.SetDefault("trend_strength_threshold", p.TrendStrengthThreshold)
	v.SetDefault("regime_trend_strength_threshold", p.RegimeThreshold)
	v.SetDefault("exit_stop_multiple", p.ExitStopMultiple)

	g := cfg.Genetic
	v.SetDefault("ga_population_size", g.PopulationSize)
	v.SetDefault("ga_generations", g.Generations)
	v.SetDefault("ga_mutation_rate", g.MutationRate)
	v.SetDefault("ga_mutation_sigma", g.MutationSigma)
	v.SetDefault("ga_min_trades_floor", g.MinTrades)
	v.SetDefault("ga_gene_min", g.GeneMin)
	v.SetDefault("ga_gene_max", g.GeneMax)
	v.SetDefault("ga_net_profit_weight", g.NetProfitWeight)
	v.SetDefault("ga_avg_profit_weight", g.AvgProfitWeight)
	v.SetDefault("ga_penalty", g.Penalty)
	v.SetDefault("ga_seed", g.Seed)

	w := cfg.Indicators
	v.SetDefault("indicator_windows.fast_period", w.FastPeriod)
	v.SetDefault("indicator_windows.slow_period", w.SlowPeriod)
	v.SetDefault("indicator_windows.ma_type", w.MAType)
	v.SetDefault("indicator_windows.rsi_period", w.RSIPeriod)
	v.SetDefault("indicator_windows.atr_period", w.ATRPeriod)
	v.SetDefault("indicator_windows.adx_period", w.ADXPeriod)
	v.SetDefault("indicator_windows.macd_fast", w.MACDFast)
	v.SetDefault("indicator_windows.macd_slow", w.MACDSlow)
	v.SetDefault("indicator_windows.macd_signal", w.MACDSignal)
	v.SetDefault("indicator_windows.vwap_mode", string(w.VWAPMode))
	v.SetDefault("indicator_windows.vwap_window", w.VWAPWindow)

	v.SetDefault("score_weights.pnl_weight", cfg.Score.PnLWeight)
	v.SetDefault("score_weights.win_rate_weight", cfg.Score.WinRateWeight)

	v.SetDefault("grid.max_combinations", cfg.Grid.MaxCombinations)
	v.SetDefault("grid.random_samples", cfg.Grid.RandomSamples)
	v.SetDefault("grid.top_n", cfg.Grid.TopN)
	v.SetDefault("grid.seed", cfg.Grid.Seed)

	v.SetDefault("log.backend", cfg.Log.Backend)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.json", cfg.Log.JSON)
	v.SetDefault("log.colored", cfg.Log.Colored)
	v.SetDefault("log.datetime_layout", cfg.Log.DateTimeLayout)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.path", cfg.Storage.Path)

	v.SetDefault("telegram.enabled", cfg.Telegram.Enabled)
	v.SetDefault("telegram.token", cfg.Telegram.Token)

	v.SetDefault("mail.enabled", cfg.Mail.Enabled)
	v.SetDefault("mail.server", cfg.Mail.SMTPServerAddress)
	v.SetDefault("mail.port", cfg.Mail.SMTPServerPort)
	v.SetDefault("mail.from", cfg.Mail.From)
	v.SetDefault("mail.to", cfg.Mail.To)
	v.SetDefault("mail.password", cfg.Mail.Password)

	v.SetDefault("binance.api_key", cfg.Binance.APIKey)
	v.SetDefault("binance.secret_key", cfg.Binance.SecretKey)
	v.SetDefault("binance.testnet", cfg.Binance.Testnet)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

func weightMaps(weights core.SignalWeights) []map[string]any {
	out := make([]map[string]any, len(weights))
	for i, w := range weights {
		out[i] = map[string]any{"predicate": string(w.Predicate), "weight": w.Weight}
	}
	return out
}

// Interval parses the timeframe, e.g. "15m" or "1d"
func (c *Config) Interval() (time.Duration, error) {
	d, err := str2duration.ParseDuration(c.Timeframe)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", c.Timeframe, err)
	}
	return d, nil
}

// Validate checks the configuration and returns the first problem found
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return errors.New("symbol is required")
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	if c.LookbackBars < 0 {
		return fmt.Errorf("lookback_bars cannot be negative, got %d", c.LookbackBars)
	}

	switch c.Source {
	case "csv":
		if c.DataFile == "" {
			return errors.New("data_file is required when source is csv")
		}
	case "binance":
		if c.LookbackBars == 0 {
			return errors.New("lookback_bars must be set when source is binance")
		}
	default:
		return fmt.Errorf("unknown source %q (csv, binance)", c.Source)
	}

	switch c.GapPolicy {
	case core.GapIgnore, core.GapReject, core.GapForwardFill:
	default:
		return fmt.Errorf("unknown gap_policy %q", c.GapPolicy)
	}

	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicator_windows: %w", err)
	}
	if err := c.Parameters.Validate(); err != nil {
		return err
	}
	if err := c.Genetic.Validate(); err != nil {
		return err
	}

	switch c.Log.Backend {
	case "zerolog", "logrus":
	default:
		return fmt.Errorf("unknown log backend %q (zerolog, logrus)", c.Log.Backend)
	}

	switch c.Storage.Driver {
	case "none":
	case "buntdb", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q (none, buntdb, sqlite)", c.Storage.Driver)
	}

	if c.Telegram.Enabled && (c.Telegram.Token == "" || len(c.Telegram.Users) == 0) {
		return errors.New("telegram needs a token and at least one user")
	}
	if c.Mail.Enabled && (c.Mail.SMTPServerAddress == "" || c.Mail.To == "" || c.Mail.From == "") {
		return errors.New("mail needs a server, a sender and a recipient")
	}

	return nil
}
