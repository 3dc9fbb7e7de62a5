package outbox

import (
	"context"
	"fmt"
	"time"

	"example.com/payment-service/pkg/kafka"
	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/pkg/metrics"
)

// KafkaProducer — минимальный интерфейс producer для Worker.
type KafkaProducer interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// WorkerConfig — настройки Worker.
type WorkerConfig struct {
	PollInterval time.Duration // интервал опроса таблицы
	BatchSize    int           // записей за один проход
	MaxRetries   int           // после превышения запись уходит в DLQ
	Retention    time.Duration // срок хранения отправленных записей
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: time.Second,
		BatchSize:    100,
		MaxRetries:   5,
		Retention:    7 * 24 * time.Hour,
	}
}

const cleanupInterval = time.Hour

// Worker пересылает записи outbox в Kafka.
type Worker struct {
	repo     Repository
	producer KafkaProducer
	cfg      WorkerConfig
}

// NewWorker создаёт Worker.
func NewWorker(repo Repository, producer KafkaProducer, cfg WorkerConfig) *Worker {
	return &Worker{repo: repo, producer: producer, cfg: cfg}
}

// Run блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

// ProcessBatch обрабатывает одну пачку неотправленных записей.
// Возвращает количество успешно отправленных.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка чтения outbox")
		return 0
	}

	sent := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return sent
		}

		if record.RetryCount >= w.cfg.MaxRetries {
			w.deadLetter(ctx, record)
			continue
		}

		if err := w.Send(ctx, record); err == nil {
			sent++
		}
	}
	return sent
}

// Send отправляет одну запись и отмечает результат в репозитории.
func (w *Worker) Send(ctx context.Context, record *Record) error {
	log := logger.FromContext(ctx)

	err := w.producer.SendMessage(ctx, toMessage(record, record.Topic))
	metrics.RecordEventPublished(record.Topic, err)
	if err != nil {
		log.Error().
			Err(err).
			Str("outbox_id", record.ID).
			Str("topic", record.Topic).
			Int("retry_count", record.RetryCount).
			Msg("Ошибка отправки записи outbox в Kafka")

		if markErr := w.repo.MarkFailed(ctx, record.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как failed")
		}
		return err
	}

	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		// Запись будет отправлена повторно: at-least-once
		log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как обработанной")
		return err
	}

	log.Debug().
		Str("outbox_id", record.ID).
		Str("topic", record.Topic).
		Str("event_type", record.EventType).
		Msg("Запись outbox отправлена в Kafka")
	return nil
}

// deadLetter выводит запись из очереди, сохранив копию в DLQ топике.
func (w *Worker) deadLetter(ctx context.Context, record *Record) {
	log := logger.FromContext(ctx)

	msg := toMessage(record, kafka.TopicDLQ)
	msg.Headers["dlq_original_topic"] = record.Topic
	msg.Headers["dlq_retry_count"] = fmt.Sprint(record.RetryCount)
	if record.LastError != nil {
		msg.Headers["dlq_error"] = *record.LastError
	}
	if err := w.producer.SendMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("outbox_id", record.ID).Msg("Не удалось отправить запись outbox в DLQ")
	}

	log.Warn().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Str("aggregate_id", record.AggregateID).
		Int("retry_count", record.RetryCount).
		Msg("Dead letter: превышен лимит попыток, запись выведена из очереди")

	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки dead letter")
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	deleted, err := w.repo.DeleteProcessedBefore(ctx, time.Now().Add(-w.cfg.Retention))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Ошибка очистки outbox")
		return
	}
	if deleted > 0 {
		logger.Ctx(ctx).Info().Int64("deleted", deleted).Msg("Очистка отправленных записей outbox")
	}
}

func toMessage(record *Record, topic string) *kafka.Message {
	headers := make(map[string]string, len(record.Headers)+1)
	for k, v := range record.Headers {
		headers[k] = v
	}
	headers[kafka.HeaderEventType] = record.EventType

	return &kafka.Message{
		Topic:   topic,
		Key:     []byte(record.MessageKey),
		Value:   record.Payload,
		Headers: headers,
	}
}
