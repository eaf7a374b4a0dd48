// Package config loads TinyOlly's configuration from environment variables
// (and an optional .env file for local development), the same precedence
// order the teacher uses: config file (optional) < environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete process configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	GRPC        GRPCConfig        `mapstructure:"grpc"`
	OpAMP       OpAMPConfig       `mapstructure:"opamp"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Environment string            `mapstructure:"environment"`
}

// ServerConfig holds the OTLP HTTP + Query HTTP listener settings.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	SelfServiceName   string        `mapstructure:"self_service_name"`
	CORSAllowedOrigins []string     `mapstructure:"cors_allowed_origins"`
	HTTPPort          int           `mapstructure:"http_port"`
	QueryPort         int           `mapstructure:"query_port"`
	MaxRequestBytes   int64         `mapstructure:"max_request_bytes"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig holds the OTLP gRPC receiver settings.
type GRPCConfig struct {
	Port           int   `mapstructure:"port"`
	MaxRecvMsgSize int64 `mapstructure:"max_recv_msg_size"`
}

// OpAMPConfig holds the OpAMP WebSocket + REST surface settings.
type OpAMPConfig struct {
	CollectorConfigPath string        `mapstructure:"collector_config_path"`
	WSPort              int           `mapstructure:"ws_port"`
	RESTPort            int           `mapstructure:"rest_port"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
}

// StoreConfig holds the ephemeral Store's retention and capacity settings.
type StoreConfig struct {
	Backend             string `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr           string `mapstructure:"redis_addr"`
	RetentionSeconds    int    `mapstructure:"retention_seconds"`
	MaxMetricCardinality int   `mapstructure:"max_metric_cardinality"`
	MaxBytes            int64  `mapstructure:"max_bytes"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig controls TinyOlly's own logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// Load reads configuration from an optional .env file, an optional
// ./config.yaml, and environment variables (highest precedence), applying
// the defaults and env var names from spec §6.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/tinyolly")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnv("server.http_port", "HTTP_PORT")
	bindEnv("server.query_port", "QUERY_PORT")
	bindEnv("grpc.port", "OTLP_GRPC_PORT")
	bindEnv("opamp.ws_port", "OPAMP_PORT")
	bindEnv("opamp.rest_port", "OPAMP_REST_PORT")
	bindEnv("opamp.collector_config_path", "COLLECTOR_CONFIG_PATH")
	bindEnv("store.max_metric_cardinality", "MAX_METRIC_CARDINALITY")
	bindEnv("store.retention_seconds", "RETENTION_SECONDS")
	bindEnv("store.backend", "STORE_BACKEND")
	bindEnv("store.redis_addr", "REDIS_ADDR")
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
	bindEnv("server.self_service_name", "SELF_SERVICE_NAME")
	bindEnv("environment", "ENV")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindEnv mirrors the teacher's viper.BindEnv call pattern; BindEnv only
// errors on malformed arguments, which these string literals never are.
func bindEnv(key, env string) {
	_ = viper.BindEnv(key, env)
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.http_port", 4318)
	viper.SetDefault("server.query_port", 5005)
	viper.SetDefault("server.self_service_name", "tinyolly")
	viper.SetDefault("server.max_request_bytes", 16<<20) // 16 MiB, spec §4.4
	viper.SetDefault("server.request_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.cors_allowed_origins", []string{"*"})

	viper.SetDefault("grpc.port", 4343)
	viper.SetDefault("grpc.max_recv_msg_size", 16<<20)

	viper.SetDefault("opamp.ws_port", 4320)
	viper.SetDefault("opamp.rest_port", 4321)
	viper.SetDefault("opamp.heartbeat_interval", "30s")
	viper.SetDefault("opamp.collector_config_path", "")

	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.redis_addr", "localhost:6379")
	viper.SetDefault("store.retention_seconds", 1800)
	viper.SetDefault("store.max_metric_cardinality", 1000)
	viper.SetDefault("store.max_bytes", 512<<20) // 512 MiB
	viper.SetDefault("store.sweep_interval", "30s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Validate checks invariants Load can't express as viper defaults alone.
func (c *Config) Validate() error {
	if c.Store.MaxMetricCardinality <= 0 {
		return fmt.Errorf("store.max_metric_cardinality must be > 0")
	}
	if c.Store.RetentionSeconds <= 0 {
		return fmt.Errorf("store.retention_seconds must be > 0")
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "redis" {
		return fmt.Errorf("store.backend must be 'memory' or 'redis', got %q", c.Store.Backend)
	}
	return nil
}

// RetentionTTL is the configured retention window as a time.Duration.
func (c *Config) RetentionTTL() time.Duration {
	return time.Duration(c.Store.RetentionSeconds) * time.Second
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}
