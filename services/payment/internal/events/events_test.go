package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/payment-service/pkg/kafka"
	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/pkg/outbox"
	"example.com/payment-service/services/payment/internal/domain"
)

// =============================================================================
// Моки
// =============================================================================

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendWithHeaders(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	return m.Called(ctx, topic, key, value, headers).Error(0)
}

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Create(ctx context.Context, r *outbox.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockOutboxRepo) GetUnprocessed(ctx context.Context, limit int) ([]*outbox.Record, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*outbox.Record), args.Error(1)
}

func (m *mockOutboxRepo) MarkProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id string, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *mockOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockOrderHandler struct {
	mock.Mock
}

func (m *mockOrderHandler) HandleOrderCreated(ctx context.Context, evt domain.OrderCreated) error {
	return m.Called(ctx, evt).Error(0)
}

func cancelledEvent() domain.PaymentCancelled {
	return domain.PaymentCancelled{
		PaymentID:   "payment-1",
		OrderID:     "order-1",
		CustomerID:  "customer-1",
		CancelledAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// =============================================================================
// Publisher
// =============================================================================

func TestTopicFor(t *testing.T) {
	tests := []struct {
		event domain.Event
		topic string
	}{
		{domain.PaymentCreated{}, kafka.TopicPaymentCreated},
		{domain.PaymentProcessed{}, kafka.TopicPaymentProcessed},
		{domain.PaymentStatusChanged{}, kafka.TopicPaymentStatusChanged},
		{domain.PaymentRefunded{}, kafka.TopicPaymentRefunded},
		{domain.PaymentCancelled{}, kafka.TopicPaymentCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.event.EventType(), func(t *testing.T) {
			assert.Equal(t, tt.topic, TopicFor(tt.event))
		})
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	sender := new(mockSender)
	pub := NewKafkaPublisher(sender)

	sender.On("SendWithHeaders", ctx, kafka.TopicPaymentCancelled, []byte("payment-1"),
		mock.MatchedBy(func(value []byte) bool {
			var got map[string]any
			return json.Unmarshal(value, &got) == nil &&
				got["paymentId"] == "payment-1" &&
				got["cancelledAt"] == "2024-01-02T03:04:05Z"
		}),
		map[string]string{kafka.HeaderEventType: domain.EventPaymentCancelled},
	).Return(nil)

	require.NoError(t, pub.Publish(ctx, kafka.TopicPaymentCancelled, "payment-1", cancelledEvent()))
	sender.AssertExpectations(t)
}

func TestKafkaPublisher_PropagatesError(t *testing.T) {
	sender := new(mockSender)
	pub := NewKafkaPublisher(sender)
	errKafka := errors.New("broker unavailable")

	sender.On("SendWithHeaders", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errKafka)

	err := pub.Publish(context.Background(), kafka.TopicPaymentCancelled, "payment-1", cancelledEvent())

	assert.ErrorIs(t, err, errKafka)
}

func TestOutboxPublisher_Publish(t *testing.T) {
	ctx := logger.NewContextWithIDs(context.Background(), "trace-1", "corr-1")
	repo := new(mockOutboxRepo)
	pub := NewOutboxPublisher(repo)

	repo.On("Create", ctx, mock.MatchedBy(func(r *outbox.Record) bool {
		return r.AggregateType == AggregateType &&
			r.AggregateID == "payment-1" &&
			r.MessageKey == "payment-1" &&
			r.Topic == kafka.TopicPaymentCancelled &&
			r.EventType == domain.EventPaymentCancelled &&
			r.Headers[kafka.HeaderTraceID] == "trace-1" &&
			r.Headers[kafka.HeaderCorrelationID] == "corr-1"
	})).Return(nil)

	require.NoError(t, pub.Publish(ctx, kafka.TopicPaymentCancelled, "payment-1", cancelledEvent()))
	repo.AssertExpectations(t)
}

func TestOutboxPublisher_Error(t *testing.T) {
	repo := new(mockOutboxRepo)
	pub := NewOutboxPublisher(repo)
	errDB := errors.New("db down")

	repo.On("Create", mock.Anything, mock.Anything).Return(errDB)

	err := pub.Publish(context.Background(), kafka.TopicPaymentCancelled, "payment-1", cancelledEvent())

	assert.ErrorIs(t, err, errDB)
}

func TestRecordingPublisher(t *testing.T) {
	rec := NewRecordingPublisher()

	require.NoError(t, rec.Publish(context.Background(), "a", "k", cancelledEvent()))
	rec.FailWith(errors.New("boom"))
	require.Error(t, rec.Publish(context.Background(), "b", "k", cancelledEvent()))

	assert.Equal(t, []string{"a"}, rec.Topics())
	rec.Reset()
	assert.Empty(t, rec.Events())
}

// =============================================================================
// OrderDispatcher
// =============================================================================

func TestOrderDispatcher_OrderCreated(t *testing.T) {
	ctx := context.Background()
	handler := new(mockOrderHandler)
	d := NewOrderDispatcher(handler)

	handler.On("HandleOrderCreated", ctx, mock.MatchedBy(func(evt domain.OrderCreated) bool {
		return evt.OrderID == "order-1" &&
			evt.CustomerID == "customer-1" &&
			evt.TotalAmount.String() == "250.75" &&
			len(evt.Items) == 1
	})).Return(nil)

	err := d.Handle(ctx, &kafka.Message{
		Topic: kafka.TopicOrderCreated,
		Value: []byte(`{"orderId":"order-1","customerId":"customer-1","totalAmount":250.75,"items":[{"sku":"x"}],"createdAt":"2024-01-01T00:00:00Z"}`),
	})

	require.NoError(t, err)
	handler.AssertExpectations(t)
}

func TestOrderDispatcher_HandlerErrorIsSwallowed(t *testing.T) {
	handler := new(mockOrderHandler)
	d := NewOrderDispatcher(handler)

	handler.On("HandleOrderCreated", mock.Anything, mock.Anything).Return(domain.ErrDuplicatePayment)

	err := d.Handle(context.Background(), &kafka.Message{
		Topic: kafka.TopicOrderCreated,
		Value: []byte(`{"orderId":"order-1","customerId":"c","totalAmount":10}`),
	})

	assert.NoError(t, err)
	handler.AssertExpectations(t)
}

func TestOrderDispatcher_IgnoredMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  *kafka.Message
	}{
		{"неизвестный топик", &kafka.Message{Topic: "order.archived", Value: []byte(`{}`)}},
		{"битый JSON", &kafka.Message{Topic: kafka.TopicOrderCreated, Value: []byte(`{not json`)}},
		{"пустое сообщение", &kafka.Message{Topic: kafka.TopicOrderCreated}},
		{"смена статуса", &kafka.Message{Topic: kafka.TopicOrderStatusChanged, Value: []byte(`{"orderId":"o","oldStatus":"pending","newStatus":"shipped"}`)}},
		{"отмена заказа", &kafka.Message{Topic: kafka.TopicOrderStatusChanged, Value: []byte(`{"orderId":"o","oldStatus":"pending","newStatus":"cancelled"}`)}},
		{"удаление заказа", &kafka.Message{Topic: kafka.TopicOrderDeleted, Value: []byte(`{"orderId":"o","customerId":"c"}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := new(mockOrderHandler)
			d := NewOrderDispatcher(handler)

			assert.NoError(t, d.Handle(context.Background(), tt.msg))
			handler.AssertNotCalled(t, "HandleOrderCreated", mock.Anything, mock.Anything)
		})
	}
}

func TestOrderDispatcher_Topics(t *testing.T) {
	d := NewOrderDispatcher(new(mockOrderHandler))

	assert.ElementsMatch(t, []string{kafka.TopicOrderCreated, kafka.TopicOrderStatusChanged, kafka.TopicOrderDeleted}, d.Topics())
}
