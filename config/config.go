// Package config loads the trader configuration from YAML, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/logging"
	"github.com/rustyeddy/cryptotrader/internal/retry"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/risk"
	"github.com/rustyeddy/cryptotrader/sim"
)

// EnvPrefix scopes environment overrides, e.g. TRADER_RISK_LEVERAGE.
const EnvPrefix = "TRADER"

type Config struct {
	Exchanges []ExchangeConfig `mapstructure:"exchanges" yaml:"exchanges"`
	Strategy  StrategyConfig   `mapstructure:"strategy" yaml:"strategy"`
	Risk      RiskConfig       `mapstructure:"risk" yaml:"risk"`
	Live      LiveConfig       `mapstructure:"live" yaml:"live"`
	Backtest  BacktestConfig   `mapstructure:"backtest" yaml:"backtest"`
	Journal   JournalConfig    `mapstructure:"journal" yaml:"journal"`
	Log       logging.Config   `mapstructure:"log" yaml:"log"`
	Telegram  TelegramConfig   `mapstructure:"telegram" yaml:"telegram"`
	Retry     retry.Config     `mapstructure:"retry" yaml:"retry"`
}

type ExchangeConfig struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	APIKey    string   `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APISecret string   `mapstructure:"api_secret" yaml:"api_secret,omitempty"`
	Testnet   bool     `mapstructure:"testnet" yaml:"testnet"`
	Symbols   []string `mapstructure:"symbols" yaml:"symbols"`
}

func (e ExchangeConfig) Credentials() exchange.Credentials {
	return exchange.Credentials{APIKey: e.APIKey, APISecret: e.APISecret, Testnet: e.Testnet}
}

type StrategyConfig struct {
	Name      string             `mapstructure:"name" yaml:"name"`
	Timeframe string             `mapstructure:"timeframe" yaml:"timeframe"`
	Window    int                `mapstructure:"window" yaml:"window"`
	Params    map[string]float64 `mapstructure:"params" yaml:"params"`
}

type RiskConfig struct {
	risk.Config `mapstructure:",squash" yaml:",inline"`
	Leverage    int `mapstructure:"leverage" yaml:"leverage"`
}

type LiveConfig struct {
	Interval        time.Duration `mapstructure:"interval" yaml:"interval"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff" yaml:"error_backoff"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	StreamPrices    bool          `mapstructure:"stream_prices" yaml:"stream_prices"`
}

type BacktestConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance" yaml:"initial_balance"`
	FeePct         float64 `mapstructure:"fee_pct" yaml:"fee_pct"`
	SlippagePct    float64 `mapstructure:"slippage_pct" yaml:"slippage_pct"`
	FillAt         string  `mapstructure:"fill_at" yaml:"fill_at"`
	CloseAtEnd     bool    `mapstructure:"close_at_end" yaml:"close_at_end"`
	PeriodsPerYear float64 `mapstructure:"periods_per_year" yaml:"periods_per_year"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate" yaml:"risk_free_rate"`
	CachePath      string  `mapstructure:"cache_path" yaml:"cache_path"`
}

type JournalConfig struct {
	Type       string `mapstructure:"type" yaml:"type"` // none, csv or sqlite
	DBPath     string `mapstructure:"db_path" yaml:"db_path,omitempty"`
	TradesFile string `mapstructure:"trades_file" yaml:"trades_file,omitempty"`
	EquityFile string `mapstructure:"equity_file" yaml:"equity_file,omitempty"`
}

type TelegramConfig struct {
	Token        string  `mapstructure:"token" yaml:"token,omitempty"`
	ChatID       int64   `mapstructure:"chat_id" yaml:"chat_id"`
	AllowedUsers []int64 `mapstructure:"allowed_users" yaml:"allowed_users"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" }

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Exchanges: []ExchangeConfig{{
			Name:    "binance",
			Testnet: true,
			Symbols: []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"},
		}},
		Strategy: StrategyConfig{
			Name:      "ma_crossover",
			Timeframe: string(market.H1),
			Window:    100,
			Params:    map[string]float64{"fast": 10, "slow": 20, "rsi_period": 14},
		},
		Risk: RiskConfig{Config: risk.DefaultConfig(), Leverage: 1},
		Live: LiveConfig{
			Interval:        60 * time.Second,
			ErrorBackoff:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Backtest: BacktestConfig{
			InitialBalance: 10000,
			FeePct:         0.001,
			FillAt:         string(sim.NextOpen),
			CloseAtEnd:     true,
			CachePath:      filepath.Join("data", "candles.db"),
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: filepath.Join("data", "trader.db"),
		},
		Log:   logging.DefaultConfig(),
		Retry: retry.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("exchanges", []map[string]any{{
		"name":    d.Exchanges[0].Name,
		"testnet": d.Exchanges[0].Testnet,
		"symbols": d.Exchanges[0].Symbols,
	}})

	v.SetDefault("strategy.name", d.Strategy.Name)
	v.SetDefault("strategy.timeframe", d.Strategy.Timeframe)
	v.SetDefault("strategy.window", d.Strategy.Window)
	for k, p := range d.Strategy.Params {
		v.SetDefault("strategy.params."+k, p)
	}

	v.SetDefault("risk.max_position_pct", d.Risk.MaxPositionPct)
	v.SetDefault("risk.max_absolute_qty", d.Risk.MaxAbsoluteQty)
	v.SetDefault("risk.max_total_exposure", d.Risk.MaxTotalExposure)
	v.SetDefault("risk.stop_loss_pct", d.Risk.StopLossPct)
	v.SetDefault("risk.take_profit_pct", d.Risk.TakeProfitPct)
	v.SetDefault("risk.min_confidence", d.Risk.MinConfidence)
	v.SetDefault("risk.leverage", d.Risk.Leverage)

	v.SetDefault("live.interval", d.Live.Interval)
	v.SetDefault("live.error_backoff", d.Live.ErrorBackoff)
	v.SetDefault("live.shutdown_timeout", d.Live.ShutdownTimeout)
	v.SetDefault("live.stream_prices", d.Live.StreamPrices)

	v.SetDefault("backtest.initial_balance", d.Backtest.InitialBalance)
	v.SetDefault("backtest.fee_pct", d.Backtest.FeePct)
	v.SetDefault("backtest.slippage_pct", d.Backtest.SlippagePct)
	v.SetDefault("backtest.fill_at", d.Backtest.FillAt)
	v.SetDefault("backtest.close_at_end", d.Backtest.CloseAtEnd)
	v.SetDefault("backtest.periods_per_year", d.Backtest.PeriodsPerYear)
	v.SetDefault("backtest.risk_free_rate", d.Backtest.RiskFreeRate)
	v.SetDefault("backtest.cache_path", d.Backtest.CachePath)

	v.SetDefault("journal.type", d.Journal.Type)
	v.SetDefault("journal.db_path", d.Journal.DBPath)
	v.SetDefault("journal.trades_file", d.Journal.TradesFile)
	v.SetDefault("journal.equity_file", d.Journal.EquityFile)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.allowed_users", []int64{})

	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.min", d.Retry.Min)
	v.SetDefault("retry.max", d.Retry.Max)
	v.SetDefault("retry.factor", d.Retry.Factor)
	v.SetDefault("retry.jitter", d.Retry.Jitter)
}

// Load reads path, or trader.yaml from the working directory when path is
// empty. A missing default file is not an error. Variables from .env are
// loaded first and never override the real environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("trader")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnv maps the plain environment names used by deployments onto the
// config. Binance credentials go to the exchange named binance.
func applyEnv(c *Config) error {
	if key, secret := os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"); key != "" || secret != "" || os.Getenv("BINANCE_TESTNET") != "" {
		i := c.exchangeIndex("binance")
		if i < 0 {
			c.Exchanges = append(c.Exchanges, ExchangeConfig{Name: "binance", Symbols: Default().Exchanges[0].Symbols})
			i = len(c.Exchanges) - 1
		}
		ex := &c.Exchanges[i]
		if key != "" {
			ex.APIKey = key
		}
		if secret != "" {
			ex.APISecret = secret
		}
		if s := os.Getenv("BINANCE_TESTNET"); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("BINANCE_TESTNET: %w", err)
			}
			ex.Testnet = b
		}
	}

	if s := os.Getenv("TELEGRAM_BOT_TOKEN"); s != "" {
		c.Telegram.Token = s
	}
	if s := os.Getenv("TELEGRAM_CHAT_ID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	if s := os.Getenv("TELEGRAM_ALLOWED_USERS"); s != "" {
		c.Telegram.AllowedUsers = c.Telegram.AllowedUsers[:0]
		for _, f := range strings.Split(s, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			id, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return fmt.Errorf("TELEGRAM_ALLOWED_USERS: %w", err)
			}
			c.Telegram.AllowedUsers = append(c.Telegram.AllowedUsers, id)
		}
	}
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		c.Log.Level = s
	}
	return nil
}

func (c *Config) exchangeIndex(name string) int {
	for i, e := range c.Exchanges {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

// Exchange returns the named exchange section.
func (c *Config) Exchange(name string) (ExchangeConfig, bool) {
	if i := c.exchangeIndex(name); i >= 0 {
		return c.Exchanges[i], true
	}
	return ExchangeConfig{}, false
}

// Timeframe parses Strategy.Timeframe.
func (c *Config) Timeframe() (market.Timeframe, error) {
	return market.ParseTimeframe(c.Strategy.Timeframe)
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, e := range c.Exchanges {
		switch {
		case e.Name == "":
			return fmt.Errorf("exchanges[%d].name: required", i)
		case seen[strings.ToLower(e.Name)]:
			return fmt.Errorf("exchanges[%d].name: duplicate %q", i, e.Name)
		case len(e.Symbols) == 0:
			return fmt.Errorf("exchanges[%d].symbols: at least one symbol required", i)
		}
		seen[strings.ToLower(e.Name)] = true
	}

	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name: required")
	}
	if _, err := c.Timeframe(); err != nil {
		return fmt.Errorf("strategy.timeframe: %w", err)
	}
	if c.Strategy.Window <= 0 {
		return fmt.Errorf("strategy.window: must be positive")
	}

	if err := c.Risk.Config.Validate(); err != nil {
		return err
	}
	if c.Risk.Leverage < 1 || c.Risk.Leverage > 125 {
		return fmt.Errorf("risk.leverage: must be between 1 and 125, got %d", c.Risk.Leverage)
	}

	switch {
	case c.Live.Interval <= 0:
		return fmt.Errorf("live.interval: must be positive")
	case c.Live.ErrorBackoff <= 0:
		return fmt.Errorf("live.error_backoff: must be positive")
	case c.Live.ShutdownTimeout <= 0:
		return fmt.Errorf("live.shutdown_timeout: must be positive")
	}

	b := c.Backtest
	switch {
	case b.InitialBalance <= 0:
		return fmt.Errorf("backtest.initial_balance: must be positive")
	case b.FeePct < 0 || b.FeePct >= 1:
		return fmt.Errorf("backtest.fee_pct: must be in [0, 1)")
	case b.SlippagePct < 0 || b.SlippagePct >= 1:
		return fmt.Errorf("backtest.slippage_pct: must be in [0, 1)")
	case b.PeriodsPerYear < 0:
		return fmt.Errorf("backtest.periods_per_year: must not be negative")
	}
	if _, err := sim.ParseFillAt(b.FillAt); err != nil {
		return fmt.Errorf("backtest.%w", err)
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal: trades_file and equity_file required for csv")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path: required for sqlite")
		}
	default:
		return fmt.Errorf("journal.type: must be none, csv or sqlite, got %q", c.Journal.Type)
	}

	if c.Telegram.Enabled() && c.Telegram.ChatID == 0 && len(c.Telegram.AllowedUsers) == 0 {
		return fmt.Errorf("telegram: chat_id or allowed_users required with a token")
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts: must be at least 1")
	}
	if c.Retry.Min <= 0 || c.Retry.Max < c.Retry.Min {
		return fmt.Errorf("retry: need 0 < min <= max")
	}
	return nil
}

// ValidateLive adds the checks only live trading needs.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("exchanges: at least one exchange required for live trading")
	}
	for i, e := range c.Exchanges {
		if e.APIKey == "" || e.APISecret == "" {
			return fmt.Errorf("exchanges[%d] %s: api_key and api_secret required for live trading", i, e.Name)
		}
	}
	return nil
}

// SaveToFile writes the config as YAML. The file may hold secrets, so it is
// created owner-only.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
