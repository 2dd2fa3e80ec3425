package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Trading   TradingConfig   `yaml:"trading"`
	Market    MarketConfig    `yaml:"market"`
	Logging   LoggingConfig   `yaml:"logging"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

type HTTPConfig struct {
	Port         string        `yaml:"port" env:"PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"10s"`
	CORSOrigins  []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:","`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"trading-simulator-secret"`
	InternalKey string `yaml:"internal_key" env:"INTERNAL_API_KEY" env-default:"internal-key"`
	APIKey      string `yaml:"api_key" env:"API_KEY" env-default:"test-api-key"`
	APISecret   string `yaml:"api_secret" env:"API_SECRET" env-default:"test-api-secret"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	Path     string         `yaml:"path" env:"DB_PATH" env-default:"trading.db"`
	Postgres PostgresConfig `yaml:"postgres"`
	Debug    bool           `yaml:"debug" env:"DB_DEBUG"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PG_PORT" env-default:"5432"`
	Username string `yaml:"username" env:"PG_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"PG_PASSWORD"`
	Database string `yaml:"database" env:"PG_DATABASE" env-default:"trading"`
	SSLMode  string `yaml:"sslmode" env:"PG_SSLMODE" env-default:"disable"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		p.Host, p.Port, p.Username, p.Password, p.Database, p.SSLMode)
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"REDIS_ENABLED"`
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	PriceTTL time.Duration `yaml:"price_ttl" env-default:"10m"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled" env:"NATS_ENABLED"`
	URL     string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	Subject string `yaml:"subject" env-default:"prices.*"`
}

type TradingConfig struct {
	FeeRate          string        `yaml:"fee_rate" env:"TRADING_FEE_RATE" env-default:"0.001"`
	OrderExpiry      time.Duration `yaml:"order_expiry" env:"ORDER_EXPIRY" env-default:"168h"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env-default:"1m"`
	ExpiryInterval   time.Duration `yaml:"expiry_interval" env-default:"24h"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env-default:"24h"`
	Currencies       []string      `yaml:"currencies" env-default:"GBP,USD,EUR"`
	StartingBalance  string        `yaml:"starting_balance" env-default:"0"`
}

type MarketConfig struct {
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Assets    []AssetConfig    `yaml:"assets"`
}

type ExchangeConfig struct {
	Code        string   `yaml:"code"`
	Name        string   `yaml:"name"`
	Timezone    string   `yaml:"timezone"`
	Open        string   `yaml:"open"`
	Close       string   `yaml:"close"`
	TradingDays []string `yaml:"trading_days"`
}

type AssetConfig struct {
	Symbol    string `yaml:"symbol"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Currency  string `yaml:"currency"`
	Exchange  string `yaml:"exchange"`
	Active    *bool  `yaml:"active"`
	SeedPrice string `yaml:"seed_price"`
}

func (a AssetConfig) IsActive() bool {
	return a.Active == nil || *a.Active
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"true"`
}

type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled" env:"PYROSCOPE_ENABLED"`
	ServerAddress string `yaml:"server_address" env:"PYROSCOPE_SERVER" env-default:"http://localhost:4040"`
	AppName       string `yaml:"app_name" env-default:"trading-simulator"`
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// FeeRate returns the parsed trading fee rate.
func (c *Config) FeeRate() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.FeeRate)
}

func (c *Config) StartingBalance() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.StartingBalance)
}

// Validate checks values cleanenv cannot express as tags.
func (c *Config) Validate() error {
	fee, err := decimal.NewFromString(c.Trading.FeeRate)
	if err != nil {
		return fmt.Errorf("trading.fee_rate: %w", err)
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("trading.fee_rate must be in [0, 1)")
	}
	if c.Trading.OrderExpiry <= 0 {
		return errors.New("trading.order_expiry must be positive")
	}
	if c.Trading.SnapshotInterval < 0 {
		return errors.New("trading.snapshot_interval must not be negative")
	}
	start, err := decimal.NewFromString(c.Trading.StartingBalance)
	if err != nil {
		return fmt.Errorf("trading.starting_balance: %w", err)
	}
	if start.IsNegative() {
		return errors.New("trading.starting_balance must not be negative")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	exchanges := make(map[string]bool, len(c.Market.Exchanges))
	for _, ex := range c.Market.Exchanges {
		if ex.Code == "" {
			return errors.New("market.exchanges: code is required")
		}
		if _, err := time.LoadLocation(ex.Timezone); err != nil {
			return fmt.Errorf("exchange %s: %w", ex.Code, err)
		}
		open, err := time.Parse("15:04", ex.Open)
		if err != nil {
			return fmt.Errorf("exchange %s open: %w", ex.Code, err)
		}
		closeAt, err := time.Parse("15:04", ex.Close)
		if err != nil {
			return fmt.Errorf("exchange %s close: %w", ex.Code, err)
		}
		if !open.Before(closeAt) {
			return fmt.Errorf("exchange %s: open must be before close", ex.Code)
		}
		exchanges[ex.Code] = true
	}
	for _, a := range c.Market.Assets {
		if a.Symbol == "" || a.Currency == "" {
			return errors.New("market.assets: symbol and currency are required")
		}
		if a.Exchange != "" && !exchanges[a.Exchange] {
			return fmt.Errorf("asset %s: unknown exchange %s", a.Symbol, a.Exchange)
		}
		if a.SeedPrice != "" {
			if _, err := decimal.NewFromString(a.SeedPrice); err != nil {
				return fmt.Errorf("asset %s seed_price: %w", a.Symbol, err)
			}
		}
	}
	return nil
}

// Load reads an optional .env file, then the YAML file at path with
// environment overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad resolves the config path from -config or CONFIG_PATH and panics
// on any error.
func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
