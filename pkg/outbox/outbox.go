// Package outbox реализует Outbox Pattern для доставки доменных событий в Kafka.
// Событие сначала пишется в таблицу outbox, затем Worker пересылает его в Kafka
// с повторами (at-least-once).
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Record — запись в таблице outbox.
type Record struct {
	ID            string            // UUID записи
	AggregateType string            // Тип агрегата (payment)
	AggregateID   string            // ID агрегата (payment_id)
	EventType     string            // Тип события (PaymentCreated, PaymentProcessed...)
	Topic         string            // Kafka топик
	MessageKey    string            // Ключ сообщения
	Payload       []byte            // JSON payload
	Headers       map[string]string // trace_id, correlation_id
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil — ещё не отправлена
	RetryCount    int
	LastError     *string
}

// NewRecord создаёт запись outbox с новым UUID.
func NewRecord(aggregateType, aggregateID, eventType, topic string, payload []byte, headers map[string]string) *Record {
	return &Record{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		MessageKey:    aggregateID,
		Payload:       payload,
		Headers:       headers,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsProcessed возвращает true, если запись уже отправлена или выведена из очереди.
func (r *Record) IsProcessed() bool {
	return r.ProcessedAt != nil
}
