// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Book      BookConfig      `mapstructure:"book"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name          string        `mapstructure:"name"`
	Environment   string        `mapstructure:"environment"`
	LogLevel      string        `mapstructure:"log_level"`
	HealthPort    int           `mapstructure:"health_port"`
	TerminalGrace time.Duration `mapstructure:"terminal_grace"`
}

// ExchangeConfig holds venue connectivity configuration.
type ExchangeConfig struct {
	Name           string        `mapstructure:"name"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	RESTURL        string        `mapstructure:"rest_url"`
	Symbols        []string      `mapstructure:"symbols"`
	DepthSpeedMs   int           `mapstructure:"depth_speed_ms"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// BookConfig holds order book reconstruction configuration.
type BookConfig struct {
	ViewDepth       int           `mapstructure:"view_depth"`
	SnapshotDepth   int           `mapstructure:"snapshot_depth"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout"`
	MaxResyncs      int           `mapstructure:"max_resyncs"`
	ResyncWindow    time.Duration `mapstructure:"resync_window"`
}

// MetricsConfig holds liquidity metric configuration.
type MetricsConfig struct {
	PeriodMs      int       `mapstructure:"period_ms"`
	DepthBandsBps []int     `mapstructure:"depth_bands_bps"`
	ImbalanceTopN int       `mapstructure:"imbalance_top_n"`
	NotionalsUSD  []float64 `mapstructure:"notionals_usd"`
}

// Period returns the metric publication period.
func (c *MetricsConfig) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// NotionalsDecimal returns notional sizes as decimal.Decimal slice.
func (c *MetricsConfig) NotionalsDecimal() []decimal.Decimal {
	result := make([]decimal.Decimal, len(c.NotionalsUSD))
	for i, n := range c.NotionalsUSD {
		result[i] = decimal.NewFromFloat(n)
	}
	return result
}

// AnomalyConfig holds anomaly detection configuration.
type AnomalyConfig struct {
	WindowSize       int           `mapstructure:"window_size"`
	MinSamples       int           `mapstructure:"min_samples"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	MonitoredMetrics []string      `mapstructure:"monitored_metrics"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Name      string `mapstructure:"name"`
	SSLMode   string `mapstructure:"ssl_mode"`
	BatchSize int    `mapstructure:"batch_size"`
}

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("LCM")
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// A password in the config file is ignored; only DB_PASSWORD counts.
	cfg.Database.Password = os.Getenv("DB_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "LCM_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "LCM_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "LCM_LOG_LEVEL", "LOG_LEVEL")

	// Exchange
	v.BindEnv("exchange.name", "LCM_EXCHANGE")
	v.BindEnv("exchange.websocket_url", "LCM_EXCHANGE_WS_URL", "EXCHANGE_WS_URL")
	v.BindEnv("exchange.rest_url", "LCM_EXCHANGE_REST_URL", "EXCHANGE_REST_URL")
	v.BindEnv("exchange.symbols", "LCM_SYMBOLS")

	// Database; the password is only ever taken from the environment
	v.BindEnv("database.host", "LCM_DB_HOST", "DB_HOST")
	v.BindEnv("database.port", "LCM_DB_PORT", "DB_PORT")
	v.BindEnv("database.user", "LCM_DB_USER", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "LCM_DB_NAME", "DB_NAME")

	// Telemetry
	v.BindEnv("telemetry.enabled", "LCM_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "LCM_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "LCM_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "liquidity-crunch-monitor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)
	v.SetDefault("app.terminal_grace", "2m")

	// Exchange defaults
	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("exchange.rest_url", "https://api.binance.com")
	v.SetDefault("exchange.symbols", []string{"BTCUSDT"})
	v.SetDefault("exchange.depth_speed_ms", 100)
	v.SetDefault("exchange.initial_backoff", "2s")
	v.SetDefault("exchange.max_backoff", "60s")

	// Book defaults
	v.SetDefault("book.view_depth", 50)
	v.SetDefault("book.snapshot_depth", 1000)
	v.SetDefault("book.snapshot_timeout", "10s")
	v.SetDefault("book.max_resyncs", 3)
	v.SetDefault("book.resync_window", "60s")

	// Metrics defaults
	v.SetDefault("metrics.period_ms", 1000)
	v.SetDefault("metrics.depth_bands_bps", []int{10, 50, 100})
	v.SetDefault("metrics.imbalance_top_n", 5)
	v.SetDefault("metrics.notionals_usd", []float64{100_000, 500_000, 1_000_000})

	// Anomaly defaults
	v.SetDefault("anomaly.window_size", 300)
	v.SetDefault("anomaly.min_samples", 30)
	v.SetDefault("anomaly.cooldown", "5s")
	v.SetDefault("anomaly.monitored_metrics", []string{"spread_bps", "depth_10bps_usd", "imbalance"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "monitor")
	v.SetDefault("database.name", "liquidity")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.batch_size", 50)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "liquidity-crunch-monitor")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Exchange.WebSocketURL == "" {
		return fmt.Errorf("exchange.websocket_url is required")
	}
	if c.Exchange.RESTURL == "" {
		return fmt.Errorf("exchange.rest_url is required")
	}
	if len(c.Exchange.Symbols) == 0 {
		return fmt.Errorf("exchange.symbols cannot be empty")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	if c.Book.ViewDepth <= 0 {
		return fmt.Errorf("book.view_depth must be positive")
	}
	if c.Metrics.PeriodMs <= 0 {
		return fmt.Errorf("metrics.period_ms must be positive")
	}
	if c.Anomaly.WindowSize < c.Anomaly.MinSamples {
		return fmt.Errorf("anomaly.window_size must be >= anomaly.min_samples")
	}
	for _, b := range c.Metrics.DepthBandsBps {
		if b <= 0 {
			return fmt.Errorf("metrics.depth_bands_bps entries must be positive")
		}
	}
	return nil
}
