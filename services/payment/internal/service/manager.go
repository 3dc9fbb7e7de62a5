// Package service содержит жизненный цикл платежа: проверку переходов,
// вызов шлюза, сохранение и публикацию событий.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/pkg/metrics"
	"example.com/payment-service/pkg/tracing"
	"example.com/payment-service/services/payment/internal/domain"
	"example.com/payment-service/services/payment/internal/events"
	"example.com/payment-service/services/payment/internal/processor"
	"example.com/payment-service/services/payment/internal/repository"
)

// DefaultProcessorTimeout — верхняя граница вызова шлюза.
const DefaultProcessorTimeout = 30 * time.Second

// Значения пагинации по умолчанию.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ProcessingGuard защищает платёж от параллельной обработки.
type ProcessingGuard interface {
	Acquire(ctx context.Context, paymentID string) (release func(), acquired bool, err error)
}

// CreateInput — данные нового платежа.
type CreateInput struct {
	OrderID        string
	CustomerID     string
	Amount         decimal.Decimal
	PaymentMethod  domain.PaymentMethod
	PaymentDetails *domain.PaymentDetails
}

// ProcessInput — платёжные данные для списания.
type ProcessInput struct {
	PaymentToken string
	CVV          string
}

// ListQuery — фильтр и страница выборки.
type ListQuery struct {
	Filter repository.ListFilter
	Page   int
	Limit  int
}

// PageMeta — метаданные страницы.
type PageMeta struct {
	ItemsPerPage int   `json:"itemsPerPage"`
	TotalItems   int64 `json:"totalItems"`
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
}

// ListResult — страница платежей.
type ListResult struct {
	Items []*domain.Payment
	Meta  PageMeta
}

// Manager управляет жизненным циклом платежей.
type Manager struct {
	repo             repository.PaymentRepository
	gateway          processor.Gateway
	publisher        events.Publisher
	guard            ProcessingGuard
	processorTimeout time.Duration
	now              func() time.Time
	newID            func() string
	tracer           trace.Tracer
}

// Option настраивает Manager.
type Option func(*Manager)

// WithGuard включает защиту от параллельной обработки.
func WithGuard(g ProcessingGuard) Option {
	return func(m *Manager) { m.guard = g }
}

// WithProcessorTimeout задаёт таймаут вызова шлюза.
func WithProcessorTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.processorTimeout = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator подменяет генератор ID платежей.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// NewManager создаёт Manager.
func NewManager(repo repository.PaymentRepository, gateway processor.Gateway, publisher events.Publisher, opts ...Option) *Manager {
	m := &Manager{
		repo:             repo,
		gateway:          gateway,
		publisher:        publisher,
		processorTimeout: DefaultProcessorTimeout,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            func() string { return uuid.New().String() },
		tracer:           tracing.Tracer("payment-service/lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// Операции жизненного цикла
// =============================================================================

// Create создаёт PENDING платёж, если по заказу ещё нет завершённого платежа.
func (m *Manager) Create(ctx context.Context, in CreateInput) (_ *domain.Payment, err error) {
	ctx, span := m.startSpan(ctx, "Create", attribute.String("order.id", in.OrderID))
	defer func() { endSpan(span, err) }()

	existing, err := m.repo.FindByOrderID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.Status == domain.PaymentStatusCompleted {
			return nil, fmt.Errorf("%w: заказ %s", domain.ErrDuplicatePayment, in.OrderID)
		}
	}

	payment, err := domain.NewPayment(m.newID(), in.OrderID, in.CustomerID, in.Amount,
		in.PaymentMethod, in.PaymentDetails, m.now())
	if err != nil {
		return nil, err
	}

	if err := m.repo.Create(ctx, payment); err != nil {
		return nil, err
	}
	metrics.RecordTransition("", string(payment.Status))

	logger.Ctx(ctx).Info().
		Str("payment_id", payment.ID).
		Str("order_id", payment.OrderID).
		Str("amount", payment.Amount.String()).
		Msg("Платёж создан")

	m.publish(ctx, domain.NewPaymentCreated(payment))
	return payment, nil
}

// Process списывает средства по PENDING платежу.
// PROCESSING сохраняется до вызова шлюза, после этого отмена запроса не прерывает обработку.
// Отказ шлюза не является ошибкой: возвращается FAILED платёж.
func (m *Manager) Process(ctx context.Context, id string, in ProcessInput) (_ *domain.Payment, err error) {
	ctx, span := m.startSpan(ctx, "Process", attribute.String("payment.id", id))
	defer func() { endSpan(span, err) }()
	log := logger.Ctx(ctx).With().Str("payment_id", id).Logger()

	if m.guard != nil {
		release, acquired, gerr := m.guard.Acquire(ctx, id)
		defer release()
		switch {
		case gerr != nil:
			log.Warn().Err(gerr).Msg("Блокировка обработки недоступна, продолжаем без неё")
		case !acquired:
			return nil, domain.ErrProcessingInProgress
		}
	}

	payment, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: платёж %s в статусе %s, ожидался pending",
			domain.ErrInvalidTransition, id, payment.Status)
	}

	if err := payment.StartProcessing(m.now()); err != nil {
		return nil, err
	}
	if err := m.repo.UpdateFromStatus(ctx, payment, domain.PaymentStatusPending); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(domain.PaymentStatusPending), string(domain.PaymentStatusProcessing))

	// Дальше работаем без отмены вызывающего: PROCESSING уже сохранён
	dctx := context.WithoutCancel(ctx)

	result, chargeErr := m.charge(dctx, processor.ChargeRequest{
		PaymentID: id,
		Token:     in.PaymentToken,
		CVV:       in.CVV,
		Amount:    payment.Amount,
	})

	now := m.now()
	switch {
	case chargeErr != nil:
		log.Error().Err(chargeErr).Msg("Сбой платёжного шлюза")
		err = payment.Fail(domain.SystemErrorReason, now)
	case result.Success:
		err = payment.Complete(result.TransactionID, now)
	default:
		err = payment.Fail(result.FailureReason, now)
	}
	if err != nil {
		return nil, err
	}

	if err := m.repo.UpdateFromStatus(dctx, payment, domain.PaymentStatusProcessing); err != nil {
		if errors.Is(err, domain.ErrStatusChanged) {
			// RecoveryWorker уже закрыл платёж, его результат остаётся в силе
			log.Error().Err(err).
				Str("status", string(payment.Status)).
				Str("transaction_id", deref(payment.TransactionID)).
				Msg("Результат шлюза получен после восстановления платежа, требуется сверка")
			return nil, err
		}
		// Платёж остаётся в PROCESSING, его подберёт RecoveryWorker
		log.Error().Err(err).Msg("Не удалось сохранить результат обработки")
		return nil, err
	}
	metrics.RecordTransition(string(domain.PaymentStatusProcessing), string(payment.Status))

	log.Info().
		Str("status", string(payment.Status)).
		Str("failure_reason", deref(payment.FailureReason)).
		Msg("Платёж обработан")

	m.publish(dctx, domain.NewPaymentProcessed(payment, now))
	return payment, nil
}

// Refund возвращает средства по COMPLETED платежу.
// Отказ шлюза возвращает ErrRefundFailed без изменения статуса.
func (m *Manager) Refund(ctx context.Context, id string) (_ *domain.Payment, err error) {
	ctx, span := m.startSpan(ctx, "Refund", attribute.String("payment.id", id))
	defer func() { endSpan(span, err) }()
	log := logger.Ctx(ctx).With().Str("payment_id", id).Logger()

	payment, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: вернуть можно только completed платёж, текущий статус %s",
			domain.ErrInvalidTransition, payment.Status)
	}

	dctx := context.WithoutCancel(ctx)

	result, refundErr := m.refund(dctx, payment)
	if refundErr != nil {
		log.Error().Err(refundErr).Msg("Сбой платёжного шлюза при возврате")
		return nil, fmt.Errorf("%w: %w", domain.ErrRefundFailed, refundErr)
	}
	if !result.Success {
		log.Warn().Str("reason", result.FailureReason).Msg("Шлюз отклонил возврат")
		return nil, fmt.Errorf("%w: %s", domain.ErrRefundFailed, result.FailureReason)
	}

	now := m.now()
	if err := payment.Refund(result.RefundTransactionID, now); err != nil {
		return nil, err
	}
	if err := m.repo.UpdateFromStatus(dctx, payment, domain.PaymentStatusCompleted); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(domain.PaymentStatusCompleted), string(domain.PaymentStatusRefunded))

	log.Info().Str("refund_transaction_id", result.RefundTransactionID).Msg("Возврат выполнен")

	m.publish(dctx, domain.PaymentRefunded{
		PaymentID:           payment.ID,
		OrderID:             payment.OrderID,
		Amount:              payment.AmountNumber(),
		RefundTransactionID: result.RefundTransactionID,
		RefundedAt:          now,
	})
	return payment, nil
}

// Cancel отменяет PENDING платёж.
func (m *Manager) Cancel(ctx context.Context, id string) (_ *domain.Payment, err error) {
	ctx, span := m.startSpan(ctx, "Cancel", attribute.String("payment.id", id))
	defer func() { endSpan(span, err) }()

	payment, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if err := payment.Cancel(now); err != nil {
		return nil, fmt.Errorf("отменить можно только pending платёж: %w", err)
	}
	if err := m.repo.UpdateFromStatus(ctx, payment, domain.PaymentStatusPending); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(domain.PaymentStatusPending), string(domain.PaymentStatusCancelled))

	logger.Ctx(ctx).Info().Str("payment_id", id).Msg("Платёж отменён")

	m.publish(ctx, domain.PaymentCancelled{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		CustomerID:  payment.CustomerID,
		CancelledAt: now,
	})
	return payment, nil
}

// Update применяет административное частичное обновление без проверки переходов.
// PaymentStatusChanged публикуется, только если статус передан и изменился.
func (m *Manager) Update(ctx context.Context, id string, patch domain.Patch) (_ *domain.Payment, err error) {
	ctx, span := m.startSpan(ctx, "Update", attribute.String("payment.id", id))
	defer func() { endSpan(span, err) }()

	payment, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	oldStatus := payment.ApplyPatch(patch, now)
	if err := m.repo.Update(ctx, payment); err != nil {
		return nil, err
	}

	if patch.Status == nil || *patch.Status == oldStatus {
		return payment, nil
	}

	metrics.RecordTransition(string(oldStatus), string(payment.Status))
	logger.Ctx(ctx).Warn().
		Str("payment_id", id).
		Str("old_status", string(oldStatus)).
		Str("new_status", string(payment.Status)).
		Msg("Статус платежа изменён вручную")

	m.publish(ctx, domain.PaymentStatusChanged{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		OldStatus: oldStatus,
		NewStatus: payment.Status,
		UpdatedAt: now,
	})
	return payment, nil
}

// HandleOrderCreated создаёт платёж картой на сумму заказа.
func (m *Manager) HandleOrderCreated(ctx context.Context, evt domain.OrderCreated) error {
	payment, err := m.Create(ctx, CreateInput{
		OrderID:       evt.OrderID,
		CustomerID:    evt.CustomerID,
		Amount:        evt.TotalAmount,
		PaymentMethod: domain.PaymentMethodCreditCard,
	})
	if err != nil {
		return fmt.Errorf("автосоздание платежа для заказа %s: %w", evt.OrderID, err)
	}

	logger.Ctx(ctx).Info().
		Str("order_id", evt.OrderID).
		Str("payment_id", payment.ID).
		Msg("Платёж создан автоматически по заказу")
	return nil
}

// =============================================================================
// Чтение
// =============================================================================

// Get возвращает платёж по ID.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return m.repo.GetByID(ctx, id)
}

// List возвращает страницу платежей, новые первыми.
func (m *Manager) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	items, total, err := m.repo.List(ctx, q.Filter, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Items: items,
		Meta: PageMeta{
			ItemsPerPage: limit,
			TotalItems:   total,
			CurrentPage:  page,
			TotalPages:   int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

// =============================================================================
// Вспомогательные методы
// =============================================================================

func (m *Manager) charge(ctx context.Context, req processor.ChargeRequest) (processor.ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.processorTimeout)
	defer cancel()
	return m.gateway.Charge(ctx, req)
}

func (m *Manager) refund(ctx context.Context, p *domain.Payment) (processor.RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.processorTimeout)
	defer cancel()
	return m.gateway.Refund(ctx, p)
}

// publish отправляет событие после сохранения. Ошибка только логируется.
func (m *Manager) publish(ctx context.Context, event domain.Event) {
	topic := events.TopicFor(event)
	err := m.publisher.Publish(ctx, topic, event.PaymentKey(), event)
	metrics.RecordEventPublished(topic, err)
	if err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("payment_id", event.PaymentKey()).
			Str("topic", topic).
			Msg("Не удалось опубликовать событие, состояние платежа сохранено")
	}
}

func (m *Manager) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "PaymentManager."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
