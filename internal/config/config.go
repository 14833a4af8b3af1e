package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orderexec/pkg/trading"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ORDEREXEC_"

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `json:"app" yaml:"app"`
	Exchange  ExchangeConfig  `json:"exchange" yaml:"exchange"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	API       APIConfig       `json:"api" yaml:"api"`
}

// AppConfig contains basic application configuration
type AppConfig struct {
	Name            string        `json:"name" yaml:"name"`
	Version         string        `json:"version" yaml:"version"`
	Environment     string        `json:"environment" yaml:"environment"` // "development", "production", "test"
	Debug           bool          `json:"debug" yaml:"debug"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ExchangeConfig selects and tunes the exchange client
type ExchangeConfig struct {
	Simulation trading.SimulationConfig `json:"simulation" yaml:"simulation"`
	Guard      trading.GuardConfig      `json:"guard" yaml:"guard"`
}

// ExecutionConfig holds the policy defaults applied when a request omits them
type ExecutionConfig struct {
	// TWAP
	TWAPDurationMinutes   float64 `json:"twap_duration_minutes" yaml:"twap_duration_minutes"`
	TWAPSliceCount        int     `json:"twap_slice_count" yaml:"twap_slice_count"`
	TWAPRandomize         bool    `json:"twap_randomize" yaml:"twap_randomize"`
	TWAPMaxPriceDeviation float64 `json:"twap_max_price_deviation" yaml:"twap_max_price_deviation"` // 2%

	// VWAP
	VWAPDurationMinutes   int     `json:"vwap_duration_minutes" yaml:"vwap_duration_minutes"`
	VWAPParticipationRate float64 `json:"vwap_participation_rate" yaml:"vwap_participation_rate"`
	VWAPProfileSmoothing  int     `json:"vwap_profile_smoothing" yaml:"vwap_profile_smoothing"`

	// Observed volume per bucket; empty keeps the built-in intraday profile
	VWAPHourlyVolumes []float64 `json:"vwap_hourly_volumes,omitempty" yaml:"vwap_hourly_volumes,omitempty"`

	// Iceberg
	IcebergPriceVariance          float64       `json:"iceberg_price_variance" yaml:"iceberg_price_variance"`
	IcebergRetryInterval          time.Duration `json:"iceberg_retry_interval" yaml:"iceberg_retry_interval"`
	IcebergMaxConsecutiveFailures int           `json:"iceberg_max_consecutive_failures" yaml:"iceberg_max_consecutive_failures"` // 0 = unbounded

	// Bracket
	BracketPollInterval time.Duration `json:"bracket_poll_interval" yaml:"bracket_poll_interval"`
}

// DatabaseConfig contains execution journal configuration
type DatabaseConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"` // "sqlite", "postgres"
	Path    string `json:"path" yaml:"path"`     // sqlite file
	DSN     string `json:"dsn" yaml:"dsn"`       // postgres connection string

	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level"`         // "debug", "info", "warn", "error"
	Format    string `json:"format" yaml:"format"`       // "json", "text"
	Output    string `json:"output" yaml:"output"`       // "stdout", "file", "both"
	Directory string `json:"directory" yaml:"directory"` // Log file directory
	FileName  string `json:"file_name" yaml:"file_name"`

	// File rotation
	MaxSize    int  `json:"max_size" yaml:"max_size"`       // Max MB per file
	MaxBackups int  `json:"max_backups" yaml:"max_backups"` // Max number of old files
	MaxAge     int  `json:"max_age" yaml:"max_age"`         // Max days to retain
	Compress   bool `json:"compress" yaml:"compress"`
}

// APIConfig contains the HTTP surface configuration
type APIConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	ListenAddr   string        `json:"listen_addr" yaml:"listen_addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	HistoryLimit int           `json:"history_limit" yaml:"history_limit"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:            "orderexec",
			Version:         "1.0.0",
			Environment:     "development",
			Debug:           false,
			ShutdownTimeout: 10 * time.Second,
		},
		Exchange: ExchangeConfig{
			Simulation: trading.SimulationConfig{
				ExecutionConfig: trading.ExecutionConfig{
					ProviderType: "simulation",
					Exchange:     "simulated",
					Commission:   0.0004, // 0.04%
					Slippage:     0.0005, // 0.05%
				},
				InitialPrices: map[string]float64{
					"BTCUSDT": 50000,
					"ETHUSDT": 3000,
				},
				Volatility:    0.0005,
				Latency:       20 * time.Millisecond,
				RejectionRate: 0.02,
				LimitOrders:   true,
			},
			Guard: trading.GuardConfig{
				CallTimeout:   5 * time.Second,
				RatePerSecond: 10,
				Burst:         5,
			},
		},
		Execution: ExecutionConfig{
			TWAPDurationMinutes:   60,
			TWAPSliceCount:        12,
			TWAPRandomize:         true,
			TWAPMaxPriceDeviation: 0.02,
			VWAPDurationMinutes:   60,
			VWAPParticipationRate: 0.1,
			VWAPProfileSmoothing:  3,
			IcebergPriceVariance:  0.001,
			IcebergRetryInterval:  time.Second,
			BracketPollInterval:   time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         true,
			Driver:          "sqlite",
			Path:            "./data/orderexec.db",
			MaxOpenConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			Directory:  "./logs",
			FileName:   "orderexec.log",
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		},
		API: APIConfig{
			Enabled:      true,
			ListenAddr:   ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			HistoryLimit: 100,
		},
	}
}

// LoadConfig loads configuration from file, then applies .env and
// environment overrides. A missing file is created with the defaults.
func LoadConfig(configPath string) (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := unmarshal(configPath, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshal(configPath, config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

func marshal(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// ApplyEnv overrides file values with ORDEREXEC_* environment variables
func (c *Config) ApplyEnv() {
	c.App.Environment = GetEnv(EnvPrefix+"ENV", c.App.Environment)
	c.App.Debug = GetEnvBool(EnvPrefix+"DEBUG", c.App.Debug)

	c.Exchange.Simulation.APIKey = GetEnv(EnvPrefix+"API_KEY", c.Exchange.Simulation.APIKey)
	c.Exchange.Simulation.APISecret = GetEnv(EnvPrefix+"API_SECRET", c.Exchange.Simulation.APISecret)
	c.Exchange.Simulation.RejectionRate = GetEnvFloat(EnvPrefix+"REJECTION_RATE", c.Exchange.Simulation.RejectionRate)
	c.Exchange.Guard.CallTimeout = GetEnvDuration(EnvPrefix+"CALL_TIMEOUT", c.Exchange.Guard.CallTimeout)
	c.Exchange.Guard.RatePerSecond = GetEnvFloat(EnvPrefix+"RATE_LIMIT", c.Exchange.Guard.RatePerSecond)

	c.Database.Enabled = GetEnvBool(EnvPrefix+"DB_ENABLED", c.Database.Enabled)
	c.Database.Driver = GetEnv(EnvPrefix+"DB_DRIVER", c.Database.Driver)
	c.Database.Path = GetEnv(EnvPrefix+"DB_PATH", c.Database.Path)
	c.Database.DSN = GetEnv(EnvPrefix+"DB_DSN", c.Database.DSN)

	c.Logging.Level = GetEnv(EnvPrefix+"LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnv(EnvPrefix+"LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = GetEnv(EnvPrefix+"LOG_OUTPUT", c.Logging.Output)

	c.API.Enabled = GetEnvBool(EnvPrefix+"API_ENABLED", c.API.Enabled)
	c.API.ListenAddr = GetEnv(EnvPrefix+"API_ADDR", c.API.ListenAddr)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	// Exchange
	if c.Exchange.Simulation.ProviderType == "" {
		return fmt.Errorf("exchange provider type is required")
	}
	if c.Exchange.Simulation.RejectionRate < 0 || c.Exchange.Simulation.RejectionRate > 1 {
		return fmt.Errorf("rejection rate must be between 0 and 1")
	}
	if c.Exchange.Guard.RatePerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	// Execution defaults
	if c.Execution.TWAPDurationMinutes <= 0 {
		return fmt.Errorf("twap duration must be positive")
	}
	if c.Execution.TWAPSliceCount <= 0 {
		return fmt.Errorf("twap slice count must be positive")
	}
	if c.Execution.TWAPMaxPriceDeviation <= 0 {
		return fmt.Errorf("twap max price deviation must be positive")
	}
	if c.Execution.VWAPDurationMinutes <= 0 {
		return fmt.Errorf("vwap duration must be positive")
	}
	for i, v := range c.Execution.VWAPHourlyVolumes {
		if v < 0 {
			return fmt.Errorf("vwap hourly volume %d cannot be negative", i)
		}
	}
	if c.Execution.IcebergPriceVariance < 0 || c.Execution.IcebergPriceVariance >= 1 {
		return fmt.Errorf("iceberg price variance must be in [0, 1)")
	}
	if c.Execution.IcebergMaxConsecutiveFailures < 0 {
		return fmt.Errorf("iceberg max consecutive failures cannot be negative")
	}

	// Database
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite":
			if c.Database.Path == "" {
				return fmt.Errorf("database path is required for sqlite")
			}
		case "postgres":
			if c.Database.DSN == "" {
				return fmt.Errorf("database dsn is required for postgres")
			}
		default:
			return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
		}
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.API.Enabled && c.API.ListenAddr == "" {
		return fmt.Errorf("api listen address is required")
	}

	return nil
}

// GetEnv returns environment variable with default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool returns boolean environment variable with default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvFloat returns float environment variable with default value
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvInt returns integer environment variable with default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration returns duration environment variable with default value
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
