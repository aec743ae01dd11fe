// Package config loads service configuration from YAML and FLE_ environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Safety   SafetyConfig   `mapstructure:"safety"`
	Loan     LoanConfig     `mapstructure:"loan"`
	Events   EventsConfig   `mapstructure:"events"`
	Registry RegistryConfig `mapstructure:"registry"`

	// Environment describes the in-process execution environment.
	Environment EnvironmentConfig `mapstructure:"environment"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // optional analytics mirror
	Migrate       bool   `mapstructure:"migrate"`
}

type ChainConfig struct {
	RPCEndpoint    string        `mapstructure:"rpc_endpoint"` // empty = static gas price
	WSEndpoint     string        `mapstructure:"ws_endpoint"`  // empty = no head subscription
	OracleAddress  string        `mapstructure:"oracle_address"`
	GasPollSpec    string        `mapstructure:"gas_poll_spec"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type SafetyConfig struct {
	MaxSlippageBps   uint32   `mapstructure:"max_slippage_bps"`
	DeadlineBuffer   int64    `mapstructure:"deadline_buffer"`
	MinProfitBps     uint32   `mapstructure:"min_profit_bps"`
	MaxGasPriceGwei  uint64   `mapstructure:"max_gas_price_gwei"`
	MaxExecutionTime int64    `mapstructure:"max_execution_time"`
	Executors        []string `mapstructure:"executors"`
}

type LoanConfig struct {
	Address    string `mapstructure:"address"`
	PremiumBps uint32 `mapstructure:"premium_bps"`
}

type EventsConfig struct {
	AMQPURL string `mapstructure:"amqp_url"` // empty = events are dropped
	Queue   string `mapstructure:"queue"`
}

type RegistryConfig struct {
	MaxStrategiesPerUser int `mapstructure:"max_strategies_per_user"`
	MaxActions           int `mapstructure:"max_actions"`
}

// Load reads path (unless envOnly) and overlays FLE_ environment variables.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	}
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly && path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", true)
	v.SetDefault("chain.rpc_endpoint", "")
	v.SetDefault("chain.ws_endpoint", "")
	v.SetDefault("chain.oracle_address", "")
	v.SetDefault("chain.gas_poll_spec", "*/15 * * * * *")
	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.max_retries", 3)
	v.SetDefault("safety.max_slippage_bps", 300)
	v.SetDefault("safety.deadline_buffer", 300)
	v.SetDefault("safety.min_profit_bps", 10)
	v.SetDefault("safety.max_gas_price_gwei", 100)
	v.SetDefault("safety.max_execution_time", 300)
	v.SetDefault("loan.premium_bps", 5)
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.queue", "flashloan.outcomes")
	v.SetDefault("registry.max_strategies_per_user", 50)
	v.SetDefault("registry.max_actions", 20)
	v.SetDefault("environment.gas_price_gwei", 20)
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory, postgres", c.Storage.Driver))
	}

	switch c.Log.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.encoding %q is not one of json, console", c.Log.Encoding))
	}

	if c.Safety.MaxSlippageBps > 10_000 {
		errs = append(errs, fmt.Errorf("safety.max_slippage_bps %d exceeds 10000", c.Safety.MaxSlippageBps))
	}
	if c.Safety.MinProfitBps > 10_000 {
		errs = append(errs, fmt.Errorf("safety.min_profit_bps %d exceeds 10000", c.Safety.MinProfitBps))
	}
	if c.Safety.MaxGasPriceGwei == 0 {
		errs = append(errs, errors.New("safety.max_gas_price_gwei must be positive"))
	}
	if c.Safety.MaxExecutionTime <= 0 {
		errs = append(errs, errors.New("safety.max_execution_time must be positive"))
	}
	for _, e := range c.Safety.Executors {
		if !common.IsHexAddress(e) {
			errs = append(errs, fmt.Errorf("safety.executors: %q is not an address", e))
		}
	}
	if c.Loan.PremiumBps > 10_000 {
		errs = append(errs, fmt.Errorf("loan.premium_bps %d exceeds 10000", c.Loan.PremiumBps))
	}
	if c.Chain.OracleAddress != "" && c.Chain.RPCEndpoint == "" {
		errs = append(errs, errors.New("chain.oracle_address requires chain.rpc_endpoint"))
	}
	if c.Registry.MaxStrategiesPerUser <= 0 || c.Registry.MaxActions <= 0 {
		errs = append(errs, errors.New("registry limits must be positive"))
	}

	if err := c.Environment.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
