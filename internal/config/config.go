package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server      ServerConfig     `yaml:"server" mapstructure:"server"`
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
	Cache       CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Inquiry     InquiryConfig    `yaml:"inquiry" mapstructure:"inquiry"`
	Rules       ServiceConfig    `yaml:"rules" mapstructure:"rules"`
	Update      ServiceConfig    `yaml:"update" mapstructure:"update"`
	Formatter   ServiceConfig    `yaml:"formatter" mapstructure:"formatter"`
	HTTP        HTTPConfig       `yaml:"http" mapstructure:"http"`
	Breaker     BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	InternalIDs InternalIDConfig `yaml:"internal_ids" mapstructure:"internal_ids"`
	Registry    RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Metrics     MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Engine      EngineConfig     `yaml:"engine" mapstructure:"engine"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeoutSecs  int `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs" validate:"min=0"`
	WriteTimeoutSecs int `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs" validate:"min=0"`

	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string      `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string      `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
	Kafka  KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaConfig configures the optional Kafka log sink. Empty brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// CacheConfig selects and configures the object cache backend.
type CacheConfig struct {
	Driver   string      `yaml:"driver" mapstructure:"driver" validate:"oneof=http redis"`
	FetchURL string      `yaml:"fetch_url" mapstructure:"fetch_url" validate:"omitempty,url"`
	StoreURL string      `yaml:"store_url" mapstructure:"store_url" validate:"omitempty,url"`
	Redis    RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the direct Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db" validate:"min=0"`
}

// InquiryConfig configures the TBA inquiry service.
type InquiryConfig struct {
	URL    string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	TBAURL string `yaml:"tba_url" mapstructure:"tba_url"`
}

// ServiceConfig holds the endpoint of a downstream service.
type ServiceConfig struct {
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
}

// HTTPConfig configures outbound HTTP calls.
type HTTPConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=0"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"min=0"`
}

// BreakerConfig configures the per-service circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"min=0"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs" validate:"min=0"`
}

// InternalIDConfig points at the per-client internal id mapping.
type InternalIDConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RegistryConfig configures consul registration. Empty address disables it.
type RegistryConfig struct {
	ConsulAddr  string `yaml:"consul_addr" mapstructure:"consul_addr"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name" validate:"required_with=ConsulAddr"`
	AdvertiseIP string `yaml:"advertise_ip" mapstructure:"advertise_ip"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// EngineConfig tunes the reconciliation engine.
type EngineConfig struct {
	ParallelFetch int `yaml:"parallel_fetch" mapstructure:"parallel_fetch" validate:"min=0"`
}

var validate = validator.New()

// Load reads configuration from the file at path, or from an optional
// config.yaml in the working directory when path is empty, then from the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout_secs", 30)
	v.SetDefault("server.write_timeout_secs", 600)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.kafka.topic", "")
	v.SetDefault("cache.driver", "http")
	v.SetDefault("cache.fetch_url", "")
	v.SetDefault("cache.store_url", "")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("inquiry.url", "")
	v.SetDefault("inquiry.tba_url", "")
	v.SetDefault("rules.url", "")
	v.SetDefault("update.url", "")
	v.SetDefault("formatter.url", "")
	v.SetDefault("http.timeout_secs", 300)
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("internal_ids.path", "")
	v.SetDefault("registry.consul_addr", "")
	v.SetDefault("registry.service_name", "tba-source-matcher")
	v.SetDefault("registry.advertise_ip", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("engine.parallel_fetch", 4)

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	if len(c.Log.Kafka.Brokers) > 0 && c.Log.Kafka.Topic == "" {
		return eris.New("config: validate: log.kafka.topic is required when brokers are set")
	}
	return nil
}

// InitLogger initializes the global zap logger. When Kafka brokers are
// configured the stdout core is teed with a Kafka core.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink := NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		kafkaCore := NewKafkaCore(sink, zapCfg.Level)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, kafkaCore)
		}))
		setSink(sink)
	}

	zap.ReplaceGlobals(logger)

	return nil
}
