package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"halving-chart/internal/logging"
	"halving-chart/internal/pipeline"
	"halving-chart/internal/signals"
)

// EnvPrefix prefixes every environment override, e.g. HALVINGCHART_SOURCE_SYMBOL.
const EnvPrefix = "HALVINGCHART"

// Config materialises application configuration.
type Config struct {
	App        AppConfig       `mapstructure:"app"`
	Logging    logging.Config  `mapstructure:"logging"`
	Source     SourceConfig    `mapstructure:"source"`
	Indicators pipeline.Config `mapstructure:"indicators"`
	Signals    SignalsConfig   `mapstructure:"signals"`
	Chart      ChartConfig     `mapstructure:"chart"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler"`
	Ethereum   EthereumConfig  `mapstructure:"ethereum"`
	Alerting   AlertingConfig  `mapstructure:"alerting"`
	Export     ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SourceConfig points at the OHLCV provider.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Symbol         string        `mapstructure:"symbol"`
	Timeframe      string        `mapstructure:"timeframe"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SignalsConfig is the halving anchor table.
type SignalsConfig struct {
	Anchors          []string `mapstructure:"anchors"`
	TopOffsetDays    int      `mapstructure:"top_offset_days"`
	BottomOffsetDays int      `mapstructure:"bottom_offset_days"`
}

// ChartConfig sets the rendered image.
type ChartConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Output string `mapstructure:"output"`
	Title  string `mapstructure:"title"`
}

// DatabaseConfig selects the optional bar cache. Driver is postgres or sqlite.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the refresh cadence of the run command.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EthereumConfig covers the on-chain reference price.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	FeedAddress    string        `mapstructure:"feed_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines signal notifications.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Overbought float64        `mapstructure:"overbought"`
	Oversold   float64        `mapstructure:"oversold"`
	Cooldown   time.Duration  `mapstructure:"cooldown"`
	Channels   []string       `mapstructure:"channels"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for notifications.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv exports KEY=VALUE pairs from path without overriding variables
// already present in the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "halvingchart")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("source.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("source.symbol", "BTC-USD")
	v.SetDefault("source.timeframe", "1d")
	v.SetDefault("source.request_timeout", "15s")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (compatible; halvingchart/1.0)")

	defaults := pipeline.DefaultConfig()
	v.SetDefault("indicators.bollinger.window", defaults.Bollinger.Window)
	v.SetDefault("indicators.bollinger.std_dev_mult", defaults.Bollinger.StdDevMult)
	v.SetDefault("indicators.ema_spans", defaults.EMASpans)
	v.SetDefault("indicators.stochastic.k_window", defaults.Stochastic.KWindow)
	v.SetDefault("indicators.stochastic.d_window", defaults.Stochastic.DWindow)
	v.SetDefault("indicators.stochastic.k_smooth", defaults.Stochastic.KSmooth)

	anchors := make([]string, len(signals.Halvings))
	for i, d := range signals.Halvings {
		anchors[i] = d.String()
	}
	v.SetDefault("signals.anchors", anchors)
	v.SetDefault("signals.top_offset_days", signals.DefaultTopOffsetDays)
	v.SetDefault("signals.bottom_offset_days", signals.DefaultBottomOffsetDays)

	v.SetDefault("chart.width", 1600)
	v.SetDefault("chart.height", 900)
	v.SetDefault("chart.output", "chart.png")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "4h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x4841564c))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("ethereum.feed_address", "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.overbought", 80.0)
	v.SetDefault("alerting.oversold", 20.0)
	v.SetDefault("alerting.cooldown", "12h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
		dc.WeaklyTypedInput = true
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Source.Symbol == "" {
		return fmt.Errorf("source.symbol must be set")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Chart.Width < 200 || c.Chart.Height < 200 {
		return fmt.Errorf("chart.width and chart.height must be at least 200")
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if _, err := c.Signals.Table(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q unsupported (postgres|sqlite)", c.Database.Driver)
	}
	if c.Alerting.Oversold < 0 || c.Alerting.Overbought > 100 || c.Alerting.Oversold >= c.Alerting.Overbought {
		return fmt.Errorf("alerting levels must satisfy 0 <= oversold < overbought <= 100")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// Table parses the configured anchors into a signal table.
func (s SignalsConfig) Table() (signals.Table, error) {
	anchors := make([]signals.Date, 0, len(s.Anchors))
	for _, raw := range s.Anchors {
		d, err := signals.ParseDate(strings.TrimSpace(raw))
		if err != nil {
			return signals.Table{}, fmt.Errorf("signals.anchors: %w", err)
		}
		anchors = append(anchors, d)
	}
	table, err := signals.NewTable(anchors, s.TopOffsetDays, s.BottomOffsetDays)
	if err != nil {
		return signals.Table{}, fmt.Errorf("signals: %w", err)
	}
	return table, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
