package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Provider  ProviderSettings  `mapstructure:"provider"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Local     LocalSettings     `mapstructure:"local"`
	Directory DirectorySettings `mapstructure:"directory"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ProviderSettings selects which identity back-end serves the process.
// The choice is read once at start and never re-evaluated.
type ProviderSettings struct {
	Kind string `mapstructure:"kind"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
	InitMaxAttempts   int           `mapstructure:"init_max_attempts"`
	InitRetryBackoff  time.Duration `mapstructure:"init_retry_backoff"`
}

// AdminDSN is the connection string against the maintenance database, used
// only to create the target database when it does not exist yet.
func (s PostgresSettings) AdminDSN() string {
	return s.dsn("postgres")
}

// DSN is the connection string against the target database.
func (s PostgresSettings) DSN() string {
	return s.dsn(s.Database)
}

func (s PostgresSettings) dsn(database string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, database, s.SSLMode,
	)
}

// LocalSettings configures the local-credential provider.
type LocalSettings struct {
	PasswordMinLength int           `mapstructure:"password_min_length"`
	PasswordMinScore  int           `mapstructure:"password_min_score"`
	LockoutThreshold  int           `mapstructure:"lockout_threshold"`
	LockoutWindow     time.Duration `mapstructure:"lockout_window"`
}

// DirectorySettings configures the directory-backed provider.
type DirectorySettings struct {
	TenantID    string        `mapstructure:"tenant_id"`
	ClientID    string        `mapstructure:"client_id"`
	GroupPrefix string        `mapstructure:"group_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	CachePrefix string        `mapstructure:"cache_prefix"`
}

type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type TelemetrySettings struct {
	MetricsPort  int     `mapstructure:"metrics_port"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IDENTITY")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"provider.kind",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.auto_migrate",
		"postgres.init_max_attempts",
		"postgres.init_retry_backoff",
		"local.password_min_length",
		"local.password_min_score",
		"local.lockout_threshold",
		"local.lockout_window",
		"directory.tenant_id",
		"directory.client_id",
		"directory.group_prefix",
		"directory.cache_ttl",
		"directory.cache_prefix",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"telemetry.metrics_port",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("provider.kind", "LocalCredential")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "identity")
	v.SetDefault("postgres.password", "identity_password")
	v.SetDefault("postgres.database", "identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("postgres.init_max_attempts", 5)
	v.SetDefault("postgres.init_retry_backoff", "2s")

	v.SetDefault("local.password_min_length", 10)
	v.SetDefault("local.password_min_score", 3)
	v.SetDefault("local.lockout_threshold", 5)
	v.SetDefault("local.lockout_window", "15m")

	v.SetDefault("directory.group_prefix", "app-")
	v.SetDefault("directory.cache_ttl", "5m")
	v.SetDefault("directory.cache_prefix", "identity:assoc")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "identity")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "identity-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "IDENTITY_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
