// Package events публикует доменные события платежей и разбирает события заказов.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/payment-service/pkg/kafka"
	"example.com/payment-service/pkg/outbox"
	"example.com/payment-service/services/payment/internal/domain"
)

// AggregateType — тип агрегата в таблице outbox.
const AggregateType = "payment"

// Publisher отправляет событие в топик. Повторов нет: at-most-once.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event domain.Event) error
}

// TopicFor возвращает топик для доменного события.
func TopicFor(event domain.Event) string {
	switch event.EventType() {
	case domain.EventPaymentCreated:
		return kafka.TopicPaymentCreated
	case domain.EventPaymentProcessed:
		return kafka.TopicPaymentProcessed
	case domain.EventPaymentStatusChanged:
		return kafka.TopicPaymentStatusChanged
	case domain.EventPaymentRefunded:
		return kafka.TopicPaymentRefunded
	case domain.EventPaymentCancelled:
		return kafka.TopicPaymentCancelled
	default:
		return ""
	}
}

// MessageSender — часть kafka.Producer, нужная KafkaPublisher.
type MessageSender interface {
	SendWithHeaders(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaPublisher публикует события напрямую в Kafka.
type KafkaPublisher struct {
	sender MessageSender
}

// NewKafkaPublisher создаёт KafkaPublisher.
func NewKafkaPublisher(sender MessageSender) *KafkaPublisher {
	return &KafkaPublisher{sender: sender}
}

// Publish сериализует событие в JSON и отправляет с header event_type.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", event.EventType(), err)
	}

	return p.sender.SendWithHeaders(ctx, topic, []byte(key), payload, map[string]string{
		kafka.HeaderEventType: event.EventType(),
	})
}

// OutboxPublisher пишет события в таблицу outbox, отправку в Kafka выполняет outbox.Worker.
type OutboxPublisher struct {
	repo outbox.Repository
}

// NewOutboxPublisher создаёт OutboxPublisher.
func NewOutboxPublisher(repo outbox.Repository) *OutboxPublisher {
	return &OutboxPublisher{repo: repo}
}

// Publish сохраняет событие в outbox вместе с trace_id и correlation_id запроса.
func (p *OutboxPublisher) Publish(ctx context.Context, topic, key string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", event.EventType(), err)
	}

	headers := map[string]string{}
	if traceID := kafka.TraceIDFromContext(ctx); traceID != "" {
		headers[kafka.HeaderTraceID] = traceID
	}
	if correlationID := kafka.CorrelationIDFromContext(ctx); correlationID != "" {
		headers[kafka.HeaderCorrelationID] = correlationID
	}

	record := outbox.NewRecord(AggregateType, key, event.EventType(), topic, payload, headers)
	if err := p.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("ошибка записи события в outbox: %w", err)
	}
	return nil
}
