package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the compliance service
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Compliance   ComplianceConfig   `mapstructure:"compliance"`
	PriceFeed    PriceFeedConfig    `mapstructure:"price_feed"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Notification NotificationConfig `mapstructure:"notification"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Security     SecurityConfig     `mapstructure:"security"`
	Debug        bool               `mapstructure:"debug"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestSize  string        `mapstructure:"max_request_size"`
}

// StorageConfig selects the persistence backend ("postgres" or "memory")
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int32         `mapstructure:"max_open_conns"`
	MinIdleConns    int32         `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers            []string `mapstructure:"brokers"`
	ClientID           string   `mapstructure:"client_id"`
	NotificationsTopic string   `mapstructure:"notifications_topic"`
}

// ComplianceConfig holds statutory reporting configuration
type ComplianceConfig struct {
	ReportingCurrency string          `mapstructure:"reporting_currency"`
	Timezone          string          `mapstructure:"timezone"`
	FixedHolidays     []string        `mapstructure:"fixed_holidays"` // MM-DD
	TTRThreshold      decimal.Decimal `mapstructure:"-"`
	TTRThresholdRaw   string          `mapstructure:"ttr_threshold"`
	TTRAlertWindow    int             `mapstructure:"ttr_alert_window"`
	TTRUrgentDays     int             `mapstructure:"ttr_urgent_days"`
	SMRAlertWindow    int             `mapstructure:"smr_alert_window"`
	SMRUrgentDays     int             `mapstructure:"smr_urgent_days"`
	StaffRecipients   []string        `mapstructure:"staff_recipients"`
	ManagementContact []string        `mapstructure:"management_recipients"`
}

// PriceFeedConfig holds the live FX/metals price feed configuration
type PriceFeedConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxCacheAge      time.Duration `mapstructure:"max_cache_age"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_open_delay"`
}

// MonitorConfig holds deadline monitor configuration
type MonitorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Schedule     string        `mapstructure:"schedule"`
	ClaimTTL     time.Duration `mapstructure:"claim_ttl"`
	SweepTimeout time.Duration `mapstructure:"sweep_timeout"`
}

// NotificationConfig holds outbound notification configuration
type NotificationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName   string  `mapstructure:"service_name"`
	Environment   string  `mapstructure:"environment"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
	Enabled       bool    `mapstructure:"enabled"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	JWTSecret      string   `mapstructure:"jwt_secret"`
	JWTIssuer      string   `mapstructure:"jwt_issuer"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COMPLIANCE_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/compliance-service")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	threshold, err := decimal.NewFromString(cfg.Compliance.TTRThresholdRaw)
	if err != nil {
		return nil, err
	}
	cfg.Compliance.TTRThreshold = threshold

	return &cfg, nil
}

// Location resolves the statutory reference time zone
func (c ComplianceConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	// Server defaults
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_request_size", "1M")

	v.SetDefault("storage.backend", "postgres")
	v.SetDefault("storage.run_migrations", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "compliance_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.min_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "compliance-service")
	v.SetDefault("kafka.notifications_topic", "bullion.compliance.notifications")

	// Compliance defaults (AUSTRAC reporting, AUD)
	v.SetDefault("compliance.reporting_currency", "AUD")
	v.SetDefault("compliance.timezone", "Australia/Sydney")
	v.SetDefault("compliance.fixed_holidays", []string{"01-01", "01-26", "12-25", "12-26"})
	v.SetDefault("compliance.ttr_threshold", "10000")
	v.SetDefault("compliance.ttr_alert_window", 5)
	v.SetDefault("compliance.ttr_urgent_days", 2)
	v.SetDefault("compliance.smr_alert_window", 2)
	v.SetDefault("compliance.smr_urgent_days", 1)
	v.SetDefault("compliance.staff_recipients", []string{"compliance@localhost"})
	v.SetDefault("compliance.management_recipients", []string{"management@localhost"})

	// Price feed defaults
	v.SetDefault("price_feed.base_url", "http://localhost:8090")
	v.SetDefault("price_feed.timeout", "5s")
	v.SetDefault("price_feed.max_cache_age", "168h") // 7 days
	v.SetDefault("price_feed.breaker_failures", 3)
	v.SetDefault("price_feed.breaker_open_delay", "1m")

	// Monitor defaults
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.schedule", "0 7 * * *")
	v.SetDefault("monitor.claim_ttl", "10m")
	v.SetDefault("monitor.sweep_timeout", "15m")

	v.SetDefault("notification.timeout", "10s")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "compliance-service")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 0.1)
	v.SetDefault("telemetry.enabled", false)

	// Security defaults
	v.SetDefault("security.jwt_issuer", "bullion-admin")
	v.SetDefault("security.allowed_origins", []string{"*"})
}
