package events

import (
	"context"
	"encoding/json"

	"example.com/payment-service/pkg/kafka"
	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/services/payment/internal/domain"
)

// OrderCreatedHandler — получатель события создания заказа.
type OrderCreatedHandler interface {
	HandleOrderCreated(ctx context.Context, evt domain.OrderCreated) error
}

// OrderDispatcher распределяет события заказов по обработчикам.
type OrderDispatcher struct {
	handler OrderCreatedHandler
	routes  map[string]func(ctx context.Context, msg *kafka.Message)
}

// NewOrderDispatcher создаёт диспетчер событий Order Service.
func NewOrderDispatcher(handler OrderCreatedHandler) *OrderDispatcher {
	d := &OrderDispatcher{handler: handler}
	d.routes = map[string]func(ctx context.Context, msg *kafka.Message){
		kafka.TopicOrderCreated:       d.orderCreated,
		kafka.TopicOrderStatusChanged: d.orderStatusChanged,
		kafka.TopicOrderDeleted:       d.orderDeleted,
	}
	return d
}

// Topics возвращает топики, на которые нужно подписаться.
func (d *OrderDispatcher) Topics() []string {
	return kafka.OrderTopics()
}

// Handle реализует kafka.MessageHandler.
// Всегда возвращает nil: ошибки обработки логируются, сообщение не уходит в DLQ.
func (d *OrderDispatcher) Handle(ctx context.Context, msg *kafka.Message) error {
	log := logger.Ctx(ctx)

	route, ok := d.routes[msg.Topic]
	if !ok {
		log.Warn().Str("topic", msg.Topic).Msg("Неизвестный топик, сообщение пропущено")
		return nil
	}
	if len(msg.Value) == 0 {
		log.Warn().Str("topic", msg.Topic).Msg("Пустое сообщение, пропущено")
		return nil
	}

	route(ctx, msg)
	return nil
}

func (d *OrderDispatcher) orderCreated(ctx context.Context, msg *kafka.Message) {
	log := logger.Ctx(ctx)

	var evt domain.OrderCreated
	if !decode(ctx, msg, &evt) {
		return
	}

	log.Info().Str("order_id", evt.OrderID).Msg("Обработка order.created")
	if err := d.handler.HandleOrderCreated(ctx, evt); err != nil {
		log.Error().Err(err).Str("order_id", evt.OrderID).Msg("Не удалось создать платёж по order.created")
		return
	}
	log.Info().Str("order_id", evt.OrderID).Msg("order.created обработан")
}

func (d *OrderDispatcher) orderStatusChanged(ctx context.Context, msg *kafka.Message) {
	var evt domain.OrderStatusChanged
	if !decode(ctx, msg, &evt) {
		return
	}

	log := logger.Ctx(ctx).With().
		Str("order_id", evt.OrderID).
		Str("old_status", evt.OldStatus).
		Str("new_status", evt.NewStatus).
		Logger()

	if evt.NewStatus == domain.OrderStatusCancelled {
		// Только логируем: платежи отменённого заказа отменяются через API
		log.Info().Msg("Заказ отменён, связанные платежи не изменяются")
		return
	}
	log.Info().Msg("Получено order.status.changed")
}

func (d *OrderDispatcher) orderDeleted(ctx context.Context, msg *kafka.Message) {
	var evt domain.OrderDeleted
	if !decode(ctx, msg, &evt) {
		return
	}
	logger.Ctx(ctx).Info().
		Str("order_id", evt.OrderID).
		Str("customer_id", evt.CustomerID).
		Msg("Заказ удалён, очистка платежей не требуется")
}

func decode(ctx context.Context, msg *kafka.Message, v any) bool {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("Ошибка десериализации события, сообщение пропущено")
		return false
	}
	return true
}
