package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg = Default()

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"habitpact"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"habitpact"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本，账本导出走这里；为空则全部走主库
	PostgreSQLReplicaHost string `env:"POSTGRESQL_REPLICA_HOST" envDefault:""`
	PostgreSQLReplicaPort string `env:"POSTGRESQL_REPLICA_PORT" envDefault:"5432"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"hp"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数

	// 打卡与连胜配置
	EngineTimezone     string `env:"ENGINE_TIMEZONE" envDefault:"UTC"`
	MaxBackfillDays    int    `env:"MAX_BACKFILL_DAYS" envDefault:"7"`
	VerificationQuorum int    `env:"VERIFICATION_QUORUM" envDefault:"1"`
	FreezeMaxBalance   int    `env:"FREEZE_MAX_BALANCE" envDefault:"3"`
	FreezeGrantEvery   int    `env:"FREEZE_GRANT_EVERY" envDefault:"7"`

	// 结算配置，金额单位均为分
	PlatformFeeBps    int64  `env:"PLATFORM_FEE_BPS" envDefault:"700"`
	PlatformAccountID int64  `env:"PLATFORM_ACCOUNT_ID" envDefault:"1"`
	CharityAccountID  int64  `env:"CHARITY_ACCOUNT_ID" envDefault:"2"`
	DefaultCurrency   string `env:"DEFAULT_CURRENCY" envDefault:"USD"`

	// 支付通道配置
	PayoutProvider    string        `env:"PAYOUT_PROVIDER" envDefault:"mock"` // http, mock
	PayoutBaseURL     string        `env:"PAYOUT_BASE_URL" envDefault:""`
	PayoutAPIKey      string        `env:"PAYOUT_API_KEY" envDefault:""`
	PayoutTimeout     time.Duration `env:"PAYOUT_TIMEOUT" envDefault:"10s"`
	PayoutMaxAttempts int           `env:"PAYOUT_MAX_ATTEMPTS" envDefault:"5"`
	BillingBaseURL    string        `env:"BILLING_BASE_URL" envDefault:""`

	// 调度配置
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"2m"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	PayoutBatchSize int           `env:"PAYOUT_BATCH_SIZE" envDefault:"50"`
}

// Default 返回 envDefault 与当前环境变量合成的配置，不读取 .env 也不校验
func Default() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Printf("WARN: Cannot apply config defaults: %v", err)
	}
	return c
}

// Load 读取 .env 与环境变量并校验，由各个进程的 main 调用
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	Cfg = cfg
	return nil
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.EngineTimezone); err != nil {
		return fmt.Errorf("ENGINE_TIMEZONE is invalid: %w", err)
	}

	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be within [0, 10000], got %d", c.PlatformFeeBps)
	}

	if c.FreezeMaxBalance < 0 || c.FreezeGrantEvery <= 0 {
		return fmt.Errorf("FREEZE_MAX_BALANCE must be >= 0 and FREEZE_GRANT_EVERY > 0")
	}

	if c.VerificationQuorum < 1 {
		return fmt.Errorf("VERIFICATION_QUORUM must be >= 1")
	}

	if c.MaxBackfillDays < 0 {
		return fmt.Errorf("MAX_BACKFILL_DAYS must be >= 0")
	}

	if c.PayoutMaxAttempts < 1 {
		return fmt.Errorf("PAYOUT_MAX_ATTEMPTS must be >= 1")
	}

	if c.PlatformAccountID == c.CharityAccountID {
		return fmt.Errorf("PLATFORM_ACCOUNT_ID and CHARITY_ACCOUNT_ID must differ")
	}

	if c.PayoutProvider == "http" && c.PayoutBaseURL == "" {
		return fmt.Errorf("PAYOUT_BASE_URL is required when PAYOUT_PROVIDER=http")
	}

	if c.BillingBaseURL == "" {
		log.Printf("WARN: BILLING_BASE_URL is not set, streak restoration payments cannot be confirmed")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

// GetReplicaDSN 副本只替换 host/port，其余沿用主库配置
func (c *Config) GetReplicaDSN() string {
	if c.PostgreSQLReplicaHost == "" {
		return ""
	}
	return "host=" + c.PostgreSQLReplicaHost +
		" port=" + c.PostgreSQLReplicaPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.EngineTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
