package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/payment-service/pkg/logger"
)

func TestMessageConversion(t *testing.T) {
	now := time.Now()
	km := kafka.Message{
		Topic:     TopicOrderCreated,
		Partition: 2,
		Offset:    42,
		Key:       []byte("order-1"),
		Value:     []byte(`{"orderId":"order-1"}`),
		Headers:   []kafka.Header{{Key: HeaderTraceID, Value: []byte("trace-1")}},
		Time:      now,
	}

	msg := fromKafkaMessage(km)

	assert.Equal(t, TopicOrderCreated, msg.Topic)
	assert.Equal(t, 2, msg.Partition)
	assert.Equal(t, int64(42), msg.Offset)
	assert.Equal(t, "trace-1", msg.Headers[HeaderTraceID])

	back := msg.toKafkaMessage()
	assert.Equal(t, km.Key, back.Key)
	assert.Equal(t, km.Value, back.Value)
	require.Len(t, back.Headers, 1)
	assert.Equal(t, HeaderTraceID, back.Headers[0].Key)
}

func TestContextFromMessage(t *testing.T) {
	msg := &Message{Headers: map[string]string{
		HeaderTraceID:       "trace-1",
		HeaderCorrelationID: "corr-1",
	}}

	ctx := ContextFromMessage(context.Background(), msg)

	assert.Equal(t, "trace-1", logger.TraceIDFromContext(ctx))
	assert.Equal(t, "corr-1", logger.CorrelationIDFromContext(ctx))
}

func TestWithRetry(t *testing.T) {
	t.Run("успех после повтора", func(t *testing.T) {
		calls := 0
		h := WithRetry(func(context.Context, *Message) error {
			calls++
			if calls < 2 {
				return errors.New("временная ошибка")
			}
			return nil
		}, 3)

		require.NoError(t, h(context.Background(), &Message{}))
		assert.Equal(t, 2, calls)
	})

	t.Run("исчерпаны попытки", func(t *testing.T) {
		errBoom := errors.New("boom")
		calls := 0
		h := WithRetry(func(context.Context, *Message) error {
			calls++
			return errBoom
		}, 1)

		err := h(context.Background(), &Message{})

		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 2, calls)
	})

	t.Run("отмена контекста прерывает ожидание", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		h := WithRetry(func(context.Context, *Message) error {
			cancel()
			return errors.New("ошибка")
		}, 5)

		assert.ErrorIs(t, h(ctx, &Message{}), context.Canceled)
	})
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(Config{}, OrderTopics(), "group")
	assert.Error(t, err)

	_, err = NewConsumer(Config{Brokers: []string{"localhost:9092"}}, nil, "group")
	assert.Error(t, err)

	_, err = NewConsumer(Config{Brokers: []string{"localhost:9092"}}, OrderTopics(), "")
	assert.Error(t, err)
}

func TestNewProducer_NoBrokers(t *testing.T) {
	_, err := NewProducer(Config{})
	assert.Error(t, err)
}
