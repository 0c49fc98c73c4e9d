package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Backend          string `mapstructure:"backend"`
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	KeyPrefix        string `mapstructure:"key_prefix"`
	OperationTimeout string `mapstructure:"operation_timeout"`
	CheckInterval    string `mapstructure:"check_interval"`
}

type BreakerConfig struct {
	FailureThreshold  float64 `mapstructure:"failure_threshold"`
	MinimumThroughput int64   `mapstructure:"minimum_throughput"`
	BreakDuration     string  `mapstructure:"break_duration"`
	SamplingDuration  string  `mapstructure:"sampling_duration"`
	LeaseTTL          string  `mapstructure:"lease_ttl"`
	LocalShadow       bool    `mapstructure:"local_shadow"`
}

type UpstreamConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Store     StoreConfig      `mapstructure:"store"`
	Breaker   BreakerConfig    `mapstructure:"breaker"`
	Upstreams []UpstreamConfig `mapstructure:"upstreams"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetDefault("store.backend", StoreRedis)
	viper.SetDefault("store.address", "localhost:6379")
	viper.SetDefault("store.db", 0)
	viper.SetDefault("store.key_prefix", "cb:distributed")
	viper.SetDefault("store.operation_timeout", "5s")
	viper.SetDefault("store.check_interval", "5s")

	viper.SetDefault("breaker.failure_threshold", 0.5)
	viper.SetDefault("breaker.minimum_throughput", 5)
	viper.SetDefault("breaker.break_duration", "30s")
	viper.SetDefault("breaker.sampling_duration", "10s")
	viper.SetDefault("breaker.lease_ttl", "5s")
	viper.SetDefault("breaker.local_shadow", true)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Store,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StoreConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StoreConfig")
				}
				fields := []*validation.FieldRules{
					validation.Field(&sc.Backend,
						validation.Required,
						validation.In(StoreRedis, StoreMemory),
					),
					validation.Field(&sc.KeyPrefix, validation.Required),
					validation.Field(&sc.OperationTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&sc.CheckInterval,
						validation.Required,
						validation.By(validateDuration),
					),
				}
				if sc.Backend == StoreRedis {
					fields = append(fields, validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					))
				}
				return validation.ValidateStruct(&sc, fields...)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold,
						validation.Min(0.0),
						validation.Max(1.0),
					),
					validation.Field(&bc.MinimumThroughput,
						validation.Required,
						validation.Min(int64(1)),
					),
					validation.Field(&bc.BreakDuration,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.SamplingDuration,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.LeaseTTL,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Upstreams,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateUpstreamConfig)),
		),
	)
}

func validateUpstreamConfig(value interface{}) error {
	uc, ok := value.(UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
	}
	return validation.ValidateStruct(&uc,
		validation.Field(&uc.Name, validation.Required),
		validation.Field(&uc.URL,
			validation.Required,
			validation.By(validateServerURL),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validation.NewError("validation_invalid_url", "must be an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "must use http or https")
	}

	return nil
}
