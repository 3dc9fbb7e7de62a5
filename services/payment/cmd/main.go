// Payment Service — микросервис жизненного цикла платежей.
// REST API на gin, события платежей в Kafka, автосоздание платежей по order.created.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"example.com/payment-service/pkg/circuitbreaker"
	"example.com/payment-service/pkg/config"
	dbpkg "example.com/payment-service/pkg/db"
	"example.com/payment-service/pkg/healthcheck"
	"example.com/payment-service/pkg/kafka"
	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/pkg/metrics"
	"example.com/payment-service/pkg/outbox"
	"example.com/payment-service/pkg/tracing"
	"example.com/payment-service/services/payment/internal/events"
	"example.com/payment-service/services/payment/internal/handler"
	"example.com/payment-service/services/payment/internal/lock"
	"example.com/payment-service/services/payment/internal/processor"
	"example.com/payment-service/services/payment/internal/repository"
	"example.com/payment-service/services/payment/internal/service"
)

// guardTTL ограничивает блокировку обработки, если процесс упал посреди списания.
const guardTTL = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:   cfg.App.LogLevel,
		Pretty:  cfg.App.LogPretty,
		Service: cfg.App.Name,
	})
	log := logger.Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("addr", cfg.HTTP.Addr()).
		Str("publish_mode", cfg.Events.PublishMode).
		Msg("Запуск Payment Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.App.Name,
		Environment:    cfg.App.Env,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	if cfg.MySQL.AutoMigrate {
		if err := dbpkg.Migrate(db, &repository.PaymentModel{}, &outbox.Model{}); err != nil {
			log.Fatal().Err(err).Msg("Ошибка миграции схемы")
		}
	}

	rdb, err := dbpkg.ConnectRedis(context.Background(), cfg.Redis)
	if err != nil {
		// Redis нужен только для защиты от параллельного process
		log.Warn().Err(err).Msg("Redis недоступен, защита от параллельной обработки отключена")
	}
	if rdb != nil {
		log.Info().Msg("Подключение к Redis установлено")
	}

	// ReadinessChecker для /readyz — проверяет MySQL, Redis (если включен) и Kafka
	checks := []healthcheck.Check{healthcheck.MySQL(db), healthcheck.Kafka(cfg.Kafka.Brokers)}
	if rdb != nil {
		checks = append(checks, healthcheck.Redis(rdb))
	}
	readinessCheck := healthcheck.Composite(checks...)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			cfg.App.Name,
			metrics.WithReadinessCheck(metrics.ReadinessChecker(readinessCheck)),
		)
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workersWg sync.WaitGroup
	runWorker := func(name string, fn func(ctx context.Context)) {
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("worker", name).Msg("Паника в фоновом воркере")
				}
			}()
			fn(ctx)
		}()
	}

	// === Kafka ===

	topicsCtx, topicsCancel := context.WithTimeout(ctx, 10*time.Second)
	allTopics := append(kafka.PaymentTopics(), kafka.OrderTopics()...)
	if err := kafka.EnsureTopics(topicsCtx, cfg.Kafka.Brokers, allTopics); err != nil {
		log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
	}
	topicsCancel()

	kafkaCfg := kafka.Config{Brokers: cfg.Kafka.Brokers}
	kafkaProducer, err := kafka.NewProducer(kafkaCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
	}

	// === Бизнес-логика ===

	paymentRepo := repository.NewPaymentRepository(db)
	publisher := newPublisher(cfg, db, kafkaProducer, runWorker)
	gateway := newGateway(cfg.Processor)

	opts := []service.Option{service.WithProcessorTimeout(cfg.Processor.Timeout)}
	if rdb != nil {
		opts = append(opts, service.WithGuard(lock.NewGuard(rdb, guardTTL)))
	}
	manager := service.NewManager(paymentRepo, gateway, publisher, opts...)

	// Автосоздание платежей по событиям заказов
	dispatcher := events.NewOrderDispatcher(manager)
	kafkaConsumer, err := kafka.NewConsumer(kafkaCfg, dispatcher.Topics(), cfg.Kafka.ConsumerGroup)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka Consumer")
	}
	kafkaConsumer.SetDLQProducer(kafkaProducer)
	runWorker("order-consumer", func(ctx context.Context) {
		if err := kafkaConsumer.Consume(ctx, dispatcher.Handle); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Ошибка Kafka Consumer")
		}
	})

	if cfg.Recovery.Enabled {
		recovery := service.NewRecoveryWorker(manager, service.RecoveryConfig{
			PollInterval: cfg.Recovery.PollInterval,
			StuckTimeout: cfg.Recovery.Timeout,
			BatchSize:    cfg.Recovery.BatchSize,
		})
		runWorker("stuck-recovery", recovery.Run)
	}

	// === HTTP API ===

	router, err := handler.NewRouter(handler.RouterConfig{
		Payments:       manager,
		ServiceName:    cfg.App.Name,
		ReadinessCheck: handler.ReadinessChecker(readinessCheck),
		Debug:          cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания HTTP роутера")
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP сервер остановился с ошибкой")
	}

	// Сначала перестаём принимать запросы, затем останавливаем воркеры
	httpCtx, httpCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}
	httpCancel()

	cancel()
	workersWg.Wait()

	if err := kafkaConsumer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Consumer")
	}
	if err := kafkaProducer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
	}
	closeRedis(rdb)
	if err := dbpkg.Close(db); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия MySQL")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment Service остановлен")
}

// newPublisher выбирает публикацию напрямую в Kafka или через outbox.
// В режиме outbox запускает OutboxWorker.
func newPublisher(
	cfg *config.Config,
	db *gorm.DB,
	producer *kafka.Producer,
	runWorker func(name string, fn func(ctx context.Context)),
) events.Publisher {
	if cfg.Events.PublishMode != config.PublishModeOutbox {
		return events.NewKafkaPublisher(producer)
	}

	outboxRepo := outbox.NewRepository(db, events.AggregateType)
	worker := outbox.NewWorker(outboxRepo, producer, outbox.DefaultWorkerConfig())
	runWorker("outbox", worker.Run)

	logger.Info().Msg("События публикуются через outbox")
	return events.NewOutboxPublisher(outboxRepo)
}

// newGateway собирает шлюз: симулятор, метрики, circuit breaker.
func newGateway(cfg config.ProcessorConfig) processor.Gateway {
	var gw processor.Gateway = processor.NewSimulated(processor.PolicyFromConfig(cfg))
	gw = processor.WithMetrics(gw)
	if cfg.BreakerEnabled {
		gw = processor.WithBreaker(gw, circuitbreaker.DefaultSettings())
	}
	return gw
}

func closeRedis(rdb *redis.Client) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("Ошибка закрытия Redis")
	}
}
