package events

import (
	"context"
	"sync"

	"example.com/payment-service/services/payment/internal/domain"
)

// Published — событие, сохранённое RecordingPublisher.
type Published struct {
	Topic string
	Key   string
	Event domain.Event
}

// RecordingPublisher запоминает события в памяти. Используется в тестах и при
// запуске без Kafka.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
	err    error
}

// NewRecordingPublisher создаёт пустой RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// FailWith заставляет Publish возвращать err. Событие при этом не сохраняется.
func (r *RecordingPublisher) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *RecordingPublisher) Publish(_ context.Context, topic, key string, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, Published{Topic: topic, Key: key, Event: event})
	return nil
}

// Events возвращает копию опубликованных событий.
func (r *RecordingPublisher) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// Topics возвращает топики опубликованных событий по порядку.
func (r *RecordingPublisher) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, len(r.events))
	for i, e := range r.events {
		topics[i] = e.Topic
	}
	return topics
}

// Reset очищает сохранённые события.
func (r *RecordingPublisher) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
