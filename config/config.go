package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8000"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"otelsamples"`
	// ServiceVersion 同时作为 /api/status 返回的版本号
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
	WebFramework   string `env:"WEB_FRAMEWORK" envDefault:"hertz"`

	// 对齐 gunicorn.conf.py: timeout=30, keepalive=2, max_requests=1000
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ServerKeepAlive    time.Duration `env:"SERVER_KEEPALIVE" envDefault:"2s"`
	ServerMaxRequests  int           `env:"SERVER_MAX_REQUESTS" envDefault:"1000"`

	// OpenTelemetry 配置
	TracesExporter  string  `env:"OTEL_TRACES_EXPORTER" envDefault:"otlp"`  // otlp, console, none
	MetricsExporter string  `env:"OTEL_METRICS_EXPORTER" envDefault:"otlp"` // otlp, prometheus, none
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	SampleRatio     float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
	MetricsPath     string  `env:"METRICS_PATH" envDefault:"/metrics"`

	// 托管导出器注入
	ManagedDisabled bool   `env:"MANAGED_OTEL_DISABLED" envDefault:"false"`
	ManagedEndpoint string `env:"MANAGED_OTEL_ENDPOINT" envDefault:"https://managed-backend.example.com/traces"`
	ManagedService  string `env:"MANAGED_OTEL_SERVICE" envDefault:"managed-service"`

	// 数据库配置
	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite, postgres
	SQLitePath string `env:"SQLITE_PATH" envDefault:"otelsamples.db"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"otelsamples"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"otelsamples"`

	// RabbitMQ 配置
	RabbitMQAddr      string        `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort      string        `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername  string        `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword  string        `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost     string        `env:"RABBITMQ_VHOST" envDefault:"/"`
	RabbitMQHeartbeat time.Duration `env:"RABBITMQ_HEARTBEAT" envDefault:"600s"`
	RabbitMQMode      string        `env:"RABBITMQ_MODE" envDefault:"sync"` // sync, async

	// Kafka 配置
	KafkaBootstrapServers string        `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"`
	KafkaTopic            string        `env:"KAFKA_TOPIC" envDefault:"test-topic"`
	KafkaGroupID          string        `env:"KAFKA_GROUP_ID" envDefault:"test-group"`
	KafkaClientID         string        `env:"KAFKA_CLIENT_ID" envDefault:"python-producer"`
	KafkaRunDuration      time.Duration `env:"KAFKA_RUN_DURATION" envDefault:"30s"`
	KafkaProduceInterval  time.Duration `env:"KAFKA_PRODUCE_INTERVAL" envDefault:"2s"`
	KafkaDeliveryMode     string        `env:"KAFKA_DELIVERY_MODE" envDefault:"sync"` // sync, async

	// 任务队列配置
	TasksQueue             string        `env:"TASKS_QUEUE" envDefault:"celery"`
	TasksResultExpires     time.Duration `env:"TASKS_RESULT_EXPIRES" envDefault:"3600s"`
	TasksConcurrency       int           `env:"TASKS_CONCURRENCY" envDefault:"4"`
	TasksHeartbeatInterval time.Duration `env:"TASKS_HEARTBEAT_INTERVAL" envDefault:"10s"`
	TasksRateLimitRPM      int           `env:"TASKS_RATE_LIMIT_RPM" envDefault:"120"`

	// AWS 演示
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSDemoEnabled bool   `env:"AWS_DEMO_ENABLED" envDefault:"true"`

	OutboundDemoURL string `env:"OUTBOUND_DEMO_URL" envDefault:"https://aws.amazon.com/"`

	// MCP 配置
	MCPAddr string `env:"MCP_ADDR" envDefault:":8000"`
	MCPURL  string `env:"MCP_URL" envDefault:"http://localhost:8000/mcp"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
	Cfg = cfg

	validateConfig()
}

// Load 从环境变量解析一份新的配置
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// 示例程序只告警，不因缺少外部依赖而退出
func validateConfig() {
	switch Cfg.TracesExporter {
	case "otlp", "console", "none":
	default:
		log.Printf("WARN: OTEL_TRACES_EXPORTER=%q is unknown, falling back to otlp", Cfg.TracesExporter)
		Cfg.TracesExporter = "otlp"
	}

	switch Cfg.MetricsExporter {
	case "otlp", "prometheus", "none":
	default:
		log.Printf("WARN: OTEL_METRICS_EXPORTER=%q is unknown, falling back to otlp", Cfg.MetricsExporter)
		Cfg.MetricsExporter = "otlp"
	}

	if Cfg.SampleRatio < 0 || Cfg.SampleRatio > 1 {
		log.Printf("WARN: OTEL_SAMPLE_RATIO=%v is out of range, using 1", Cfg.SampleRatio)
		Cfg.SampleRatio = 1
	}

	if Cfg.DBDriver != "sqlite" && Cfg.DBDriver != "postgres" {
		log.Printf("WARN: DB_DRIVER=%q is unknown, falling back to sqlite", Cfg.DBDriver)
		Cfg.DBDriver = "sqlite"
	}

	if Cfg.TasksConcurrency <= 0 {
		Cfg.TasksConcurrency = 1
	}
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

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsAsyncRabbitMQ() bool {
	return c.RabbitMQMode == "async"
}
