// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию Payment Service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Jaeger    JaegerConfig
	Metrics   MetricsConfig
	Processor ProcessorConfig
	Events    EventsConfig
	Recovery  RecoveryConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"payment-service"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig содержит настройки HTTP API.
type HTTPConfig struct {
	Host            string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"HTTP_PORT" envDefault:"3002"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"` // process ждёт симуляцию шлюза
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"password"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"payment_db"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"MYSQL_AUTO_MIGRATE" envDefault:"true"`
}

// DSN возвращает строку подключения к MySQL.
// clientFoundRows: UPDATE без фактических изменений всё равно возвращает 1 затронутую строку.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
// Redis опционален: используется только для защиты от параллельного process.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"payment-service-group"`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"false"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"` // Включить metrics endpoint
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`    // Порт для /metrics
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ProcessorConfig содержит настройки симулятора платёжного шлюза.
type ProcessorConfig struct {
	ChargeFailureRate float64       `env:"PROCESSOR_CHARGE_FAILURE_RATE" envDefault:"0.1"`
	RefundFailureRate float64       `env:"PROCESSOR_REFUND_FAILURE_RATE" envDefault:"0.05"`
	ChargeDelay       time.Duration `env:"PROCESSOR_CHARGE_DELAY" envDefault:"2s"`
	RefundDelay       time.Duration `env:"PROCESSOR_REFUND_DELAY" envDefault:"1500ms"`
	Timeout           time.Duration `env:"PROCESSOR_TIMEOUT" envDefault:"30s"`
	BreakerEnabled    bool          `env:"PROCESSOR_BREAKER_ENABLED" envDefault:"true"`
}

// Режимы публикации событий.
const (
	PublishModeDirect = "direct" // сразу в Kafka, без повторов
	PublishModeOutbox = "outbox" // через таблицу outbox и OutboxWorker
)

// EventsConfig содержит настройки публикации доменных событий.
type EventsConfig struct {
	PublishMode string `env:"EVENTS_PUBLISH_MODE" envDefault:"direct"`
}

// RecoveryConfig содержит настройки воркера зависших платежей.
type RecoveryConfig struct {
	Enabled      bool          `env:"STUCK_RECOVERY_ENABLED" envDefault:"true"`
	Timeout      time.Duration `env:"STUCK_PROCESSING_TIMEOUT" envDefault:"5m"`
	PollInterval time.Duration `env:"STUCK_POLL_INTERVAL" envDefault:"30s"`
	BatchSize    int           `env:"STUCK_BATCH_SIZE" envDefault:"50"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файл не найден)
	_ = godotenv.Load()

	return parse()
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет значения, которые env не может проверить тегами.
func (c *Config) validate() error {
	switch c.Events.PublishMode {
	case PublishModeDirect, PublishModeOutbox:
	default:
		return fmt.Errorf("неизвестный EVENTS_PUBLISH_MODE: %q", c.Events.PublishMode)
	}

	for name, rate := range map[string]float64{
		"PROCESSOR_CHARGE_FAILURE_RATE": c.Processor.ChargeFailureRate,
		"PROCESSOR_REFUND_FAILURE_RATE": c.Processor.RefundFailureRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s должен быть в диапазоне [0, 1], получено %v", name, rate)
		}
	}

	// Иначе воркер закроет платёж, пока шлюз ещё отвечает
	if c.Recovery.Enabled && c.Recovery.Timeout <= c.Processor.Timeout {
		return fmt.Errorf("STUCK_PROCESSING_TIMEOUT (%s) должен быть больше PROCESSOR_TIMEOUT (%s)",
			c.Recovery.Timeout, c.Processor.Timeout)
	}

	return nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
