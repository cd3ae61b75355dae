package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"arbscout/internal/fees"
	"arbscout/internal/model"
)

// ErrInvalid is returned when the loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Scanner   ScannerConfig             `mapstructure:"scanner"`
	Exchanges map[string]ExchangeConfig `mapstructure:"exchanges"`
	Notify    NotifyConfig              `mapstructure:"notify"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Log       LogConfig                 `mapstructure:"log"`
}

// ScannerConfig defines the arbitrage scan settings.
type ScannerConfig struct {
	Symbols              []string      `mapstructure:"symbols"`
	TradeAmount          float64       `mapstructure:"trade_amount"`
	ProfitThreshold      float64       `mapstructure:"profit_threshold"`
	Interval             time.Duration `mapstructure:"interval"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	StrictWithdrawalFees bool          `mapstructure:"strict_withdrawal_fees"`
}

// ExchangeConfig defines settings for a specific exchange. Kind selects the
// client implementation and defaults to the map key. Enabled defaults to true
// for every exchange listed in the config file.
type ExchangeConfig struct {
	Enabled           bool               `mapstructure:"enabled"`
	Kind              string             `mapstructure:"kind"`
	TradingFee        float64            `mapstructure:"trading_fee"`
	WithdrawalFees    map[string]float64 `mapstructure:"withdrawal_fees"`
	BaseURL           string             `mapstructure:"base_url"`
	WSURL             string             `mapstructure:"ws_url"`
	RequestsPerSecond float64            `mapstructure:"requests_per_second"`
	MaxStaleness      time.Duration      `mapstructure:"max_staleness"`
	APIKey            string             `mapstructure:"api_key"`
	APISecret         string             `mapstructure:"api_secret"`
	Passphrase        string             `mapstructure:"passphrase"`
}

// NotifyConfig holds alert channel credentials. Empty values disable a channel.
type NotifyConfig struct {
	TelegramToken     string `mapstructure:"telegram_token"`
	TelegramChatID    string `mapstructure:"telegram_chat_id"`
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ConnString renders a postgres URL for pgx.
func (d DatabaseConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig defines the price cache connection.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MetricsConfig defines the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig defines the log level and the rotating file sink.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var defaultSymbols = []string{"TRX/USDT", "XRP/USDT", "DOGE/USDT", "ADA/USDT"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scanner.symbols", defaultSymbols)
	v.SetDefault("scanner.trade_amount", 1000.0)
	v.SetDefault("scanner.profit_threshold", 1.0)
	v.SetDefault("scanner.interval", 5*time.Second)
	v.SetDefault("scanner.fetch_timeout", 4*time.Second)
	v.SetDefault("scanner.strict_withdrawal_fees", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arbscout")
	v.SetDefault("database.dbname", "arbscout")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.ttl", time.Minute)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "arbscout.log")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
}

// LoadConfig reads configuration from path/config.yaml, a .env file in path
// and environment variables, then validates it.
func LoadConfig(path string) (Config, error) {
	// Missing .env is fine, credentials may come from the real environment.
	_ = godotenv.Load(path + "/.env")

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Legacy variable names for the bot credentials.
	_ = v.BindEnv("notify.telegram_token", "NOTIFY_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("notify.telegram_chat_id", "NOTIFY_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("notify.discord_webhook_url", "NOTIFY_DISCORD_WEBHOOK_URL", "DISCORD_WEBHOOK_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	// A listed exchange is enabled unless it says otherwise.
	for name := range v.GetStringMap("exchanges") {
		v.SetDefault("exchanges."+name+".enabled", true)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyEnvCredentials(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvCredentials fills exchange credentials from <NAME>_API_KEY,
// <NAME>_API_SECRET (or <NAME>_SECRET_KEY) and <NAME>_PASSPHRASE.
// AutomaticEnv cannot reach keys inside a map.
func (c *Config) applyEnvCredentials(lookup func(string) (string, bool)) {
	for name, ex := range c.Exchanges {
		prefix := strings.ToUpper(name) + "_"
		if val, ok := lookup(prefix + "API_KEY"); ok {
			ex.APIKey = val
		}
		if val, ok := lookup(prefix + "API_SECRET"); ok {
			ex.APISecret = val
		} else if val, ok := lookup(prefix + "SECRET_KEY"); ok {
			ex.APISecret = val
		}
		if val, ok := lookup(prefix + "PASSPHRASE"); ok {
			ex.Passphrase = val
		}
		c.Exchanges[name] = ex
	}
}

// Validate checks the configuration and joins every problem found.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(c.Scanner.Symbols) == 0 {
		add("scanner.symbols is empty")
	}
	for _, s := range c.Scanner.Symbols {
		if _, err := model.ParseSymbol(s); err != nil {
			add("scanner.symbols: %v", err)
		}
	}
	if !(c.Scanner.TradeAmount > 0) || math.IsInf(c.Scanner.TradeAmount, 0) {
		add("scanner.trade_amount must be positive, got %v", c.Scanner.TradeAmount)
	}
	if !(c.Scanner.ProfitThreshold >= 0) {
		add("scanner.profit_threshold must be non-negative, got %v", c.Scanner.ProfitThreshold)
	}
	if c.Scanner.Interval <= 0 {
		add("scanner.interval must be positive, got %s", c.Scanner.Interval)
	}
	if c.Scanner.FetchTimeout < 0 {
		add("scanner.fetch_timeout must not be negative, got %s", c.Scanner.FetchTimeout)
	}

	enabled := c.EnabledExchanges()
	if len(enabled) < 2 {
		add("at least two enabled exchanges are required, got %d", len(enabled))
	}
	for _, name := range enabled {
		ex := c.Exchanges[name]
		if !(ex.TradingFee >= 0 && ex.TradingFee < 1) {
			add("exchanges.%s.trading_fee must be in [0, 1), got %v", name, ex.TradingFee)
		}
		for asset, fee := range ex.WithdrawalFees {
			if !(fee >= 0) || math.IsInf(fee, 0) {
				add("exchanges.%s.withdrawal_fees.%s must be non-negative, got %v", name, asset, fee)
			}
		}
		if ex.RequestsPerSecond < 0 {
			add("exchanges.%s.requests_per_second must not be negative", name)
		}
	}

	if c.Database.Enabled && c.Database.Host == "" {
		add("database.host is required when the database is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis.addr is required when redis is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr is required when metrics are enabled")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify.telegram_token and notify.telegram_chat_id must be set together")
	}

	return errors.Join(errs...)
}

// Symbols returns the parsed scanner symbols. Call after Validate.
func (c Config) Symbols() []model.Symbol {
	out := make([]model.Symbol, 0, len(c.Scanner.Symbols))
	for _, s := range c.Scanner.Symbols {
		if sym, err := model.ParseSymbol(s); err == nil {
			out = append(out, sym)
		}
	}
	return out
}

// DisabledExchanges returns the normalized names of exchanges configured
// with enabled: false, sorted.
func (c Config) DisabledExchanges() []string {
	var names []string
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			names = append(names, model.NormalizeExchange(name))
		}
	}
	sort.Strings(names)
	return names
}

// EnabledExchanges returns the normalized names of enabled exchanges, sorted.
func (c Config) EnabledExchanges() []string {
	var names []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			names = append(names, model.NormalizeExchange(name))
		}
	}
	sort.Strings(names)
	return names
}

// Exchange returns the settings of the named exchange, matching the map key
// case-insensitively.
func (c Config) Exchange(name string) (ExchangeConfig, bool) {
	name = model.NormalizeExchange(name)
	for key, ex := range c.Exchanges {
		if model.NormalizeExchange(key) == name {
			return ex, true
		}
	}
	return ExchangeConfig{}, false
}

// FeeModel builds the fee model of the enabled exchanges.
func (c Config) FeeModel() (*fees.Model, error) {
	table := make(map[string]fees.ExchangeFees)
	for _, name := range c.EnabledExchanges() {
		ex, _ := c.Exchange(name)
		table[name] = fees.ExchangeFees{
			TradingFee:     ex.TradingFee,
			WithdrawalFees: ex.WithdrawalFees,
		}
	}
	return fees.NewModel(table)
}

// MissingWithdrawalFees lists the (base asset, exchange) pairs of the
// configured symbols and enabled exchanges that have no withdrawal fee.
func (c Config) MissingWithdrawalFees(fm *fees.Model) []fees.AssetExchange {
	var assets []string
	for _, s := range c.Symbols() {
		assets = append(assets, s.Base)
	}
	return fm.MissingWithdrawalFees(assets, c.EnabledExchanges())
}
