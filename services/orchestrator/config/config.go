package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the orchestrator service.
type Config struct {
	LogLevel     string
	HTTPPort     string
	MetricsAddr  string
	OTelEndpoint string

	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string

	PollInterval     time.Duration
	CalendarInterval time.Duration
	MaxConcurrent    int
	BatchSize        int
	StageTimeout     time.Duration

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	AgentBaseURL string

	WPBaseURL      string
	WPUsername     string
	WPPassword     string
	WPRateLimit    int
	WPRateInterval time.Duration
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),

		PostgresDSN:  v.GetString("postgres_dsn"),
		RedisAddr:    v.GetString("redis_addr"),
		KafkaBrokers: v.GetString("kafka_brokers"),

		PollInterval:     v.GetDuration("poll_interval"),
		CalendarInterval: v.GetDuration("calendar_interval"),
		MaxConcurrent:    v.GetInt("max_concurrent"),
		BatchSize:        v.GetInt("batch_size"),
		StageTimeout:     v.GetDuration("stage_timeout"),

		MaxRetries: v.GetInt("max_retries"),
		BaseDelay:  v.GetDuration("base_delay"),
		MaxDelay:   v.GetDuration("max_delay"),

		AgentBaseURL: v.GetString("agent_base_url"),

		WPBaseURL:      v.GetString("wp_base_url"),
		WPUsername:     v.GetString("wp_username"),
		WPPassword:     v.GetString("wp_password"),
		WPRateLimit:    v.GetInt("wp_rate_limit"),
		WPRateInterval: v.GetDuration("wp_rate_interval"),
	}
}
