package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/payment-service/pkg/kafka"
)

// =============================================================================
// Моки
// =============================================================================

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, r *Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Record), args.Error(1)
}

func (m *mockRepository) MarkProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) MarkFailed(ctx context.Context, id string, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *mockRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) SendMessage(ctx context.Context, msg *kafka.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// =============================================================================
// Тесты
// =============================================================================

func TestWorker_Send_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	worker := NewWorker(repo, producer, DefaultWorkerConfig())

	record := &Record{
		ID:         "outbox-1",
		EventType:  "PaymentCreated",
		Topic:      kafka.TopicPaymentCreated,
		MessageKey: "payment-1",
		Payload:    []byte(`{"paymentId":"payment-1"}`),
		Headers:    map[string]string{kafka.HeaderTraceID: "trace-1"},
	}

	producer.On("SendMessage", ctx, mock.MatchedBy(func(msg *kafka.Message) bool {
		return msg.Topic == kafka.TopicPaymentCreated &&
			string(msg.Key) == "payment-1" &&
			msg.Headers[kafka.HeaderTraceID] == "trace-1" &&
			msg.Headers[kafka.HeaderEventType] == "PaymentCreated"
	})).Return(nil)
	repo.On("MarkProcessed", ctx, "outbox-1").Return(nil)

	require.NoError(t, worker.Send(ctx, record))

	producer.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestWorker_Send_Error(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	worker := NewWorker(repo, producer, DefaultWorkerConfig())

	record := &Record{ID: "outbox-1", Topic: kafka.TopicPaymentCreated, MessageKey: "payment-1", Payload: []byte(`{}`)}

	sendErr := errors.New("kafka unavailable")
	producer.On("SendMessage", ctx, mock.Anything).Return(sendErr)
	repo.On("MarkFailed", ctx, "outbox-1", sendErr).Return(nil)

	err := worker.Send(ctx, record)

	assert.ErrorIs(t, err, sendErr)
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestWorker_ProcessBatch_DeadLetter(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	cfg := WorkerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetries: 3}
	worker := NewWorker(repo, producer, cfg)

	lastErr := "broker down"
	dead := &Record{
		ID:          "outbox-dead",
		AggregateID: "payment-9",
		EventType:   "PaymentRefunded",
		Topic:       kafka.TopicPaymentRefunded,
		MessageKey:  "payment-9",
		Payload:     []byte(`{}`),
		RetryCount:  3,
		LastError:   &lastErr,
	}

	repo.On("GetUnprocessed", ctx, cfg.BatchSize).Return([]*Record{dead}, nil)
	producer.On("SendMessage", ctx, mock.MatchedBy(func(msg *kafka.Message) bool {
		return msg.Topic == kafka.TopicDLQ &&
			msg.Headers["dlq_original_topic"] == kafka.TopicPaymentRefunded &&
			msg.Headers["dlq_error"] == lastErr
	})).Return(nil)
	repo.On("MarkProcessed", ctx, "outbox-dead").Return(nil)

	sent := worker.ProcessBatch(ctx)

	assert.Equal(t, 0, sent)
	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestWorker_ProcessBatch_Mixed(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	cfg := WorkerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetries: 5}
	worker := NewWorker(repo, producer, cfg)

	records := []*Record{
		{ID: "outbox-1", Topic: kafka.TopicPaymentCreated, MessageKey: "p-1", Payload: []byte(`{}`)},
		{ID: "outbox-2", Topic: kafka.TopicPaymentProcessed, MessageKey: "p-2", Payload: []byte(`{}`)},
	}
	sendErr := errors.New("timeout")

	repo.On("GetUnprocessed", ctx, cfg.BatchSize).Return(records, nil)
	producer.On("SendMessage", ctx, mock.MatchedBy(func(msg *kafka.Message) bool { return string(msg.Key) == "p-1" })).Return(nil)
	producer.On("SendMessage", ctx, mock.MatchedBy(func(msg *kafka.Message) bool { return string(msg.Key) == "p-2" })).Return(sendErr)
	repo.On("MarkProcessed", ctx, "outbox-1").Return(nil)
	repo.On("MarkFailed", ctx, "outbox-2", sendErr).Return(nil)

	assert.Equal(t, 1, worker.ProcessBatch(ctx))
	repo.AssertExpectations(t)
}

func TestWorker_ProcessBatch_RepoError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	worker := NewWorker(repo, producer, DefaultWorkerConfig())

	repo.On("GetUnprocessed", ctx, mock.AnythingOfType("int")).Return(nil, errors.New("db down"))

	assert.Equal(t, 0, worker.ProcessBatch(ctx))
	producer.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestWorker_Run_ContextCancel(t *testing.T) {
	repo := new(mockRepository)
	producer := new(mockProducer)
	cfg := WorkerConfig{PollInterval: 20 * time.Millisecond, BatchSize: 10, MaxRetries: 5, Retention: time.Hour}
	worker := NewWorker(repo, producer, cfg)

	repo.On("GetUnprocessed", mock.Anything, cfg.BatchSize).Return([]*Record{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Worker не остановился после отмены context")
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord("payment", "payment-1", "PaymentCreated", kafka.TopicPaymentCreated, []byte(`{}`), nil)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "payment-1", r.MessageKey)
	assert.False(t, r.IsProcessed())
}
