// Package domain содержит бизнес-сущности Payment Service.
package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// SystemErrorReason — причина отказа, если шлюз упал или не ответил вовремя.
const SystemErrorReason = "Payment processing failed due to system error"

// Ограничения суммы соответствуют колонке amount DECIMAL(10,2).
const AmountScale = 2

// MaxAmount — первая сумма, которая уже не помещается в колонку.
var MaxAmount = decimal.New(1, 8)

// PaymentStatus — статус платежа. Значения совпадают с форматом в БД и API.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// AllStatuses возвращает все статусы платежа.
func AllStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusRefunded,
		PaymentStatusCancelled,
	}
}

// ParseStatus проверяет, что строка является известным статусом.
func ParseStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if !slices.Contains(AllStatuses(), st) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// IsTerminal возвращает true, если из статуса нет переходов.
// COMPLETED не терминальный: из него возможен возврат.
func (s PaymentStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsSettled возвращает true для статусов, которые выставляют ProcessedAt.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// =============================================================================
// Допустимые переходы состояний (State Machine)
// =============================================================================

// allowedTransitions содержит запись для каждого статуса, пустой список — терминальный.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {},
	PaymentStatusRefunded:   {},
	PaymentStatusCancelled:  {},
}

// CanTransition проверяет переход по таблице.
func CanTransition(from, to PaymentStatus) bool {
	return slices.Contains(allowedTransitions[from], to)
}

// =============================================================================
// Метод оплаты
// =============================================================================

// PaymentMethod — способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCreditCard    PaymentMethod = "credit_card"
	PaymentMethodDebitCard     PaymentMethod = "debit_card"
	PaymentMethodPayPal        PaymentMethod = "paypal"
	PaymentMethodBankTransfer  PaymentMethod = "bank_transfer"
	PaymentMethodDigitalWallet PaymentMethod = "digital_wallet"
)

// AllPaymentMethods возвращает все поддерживаемые методы оплаты.
func AllPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodCreditCard,
		PaymentMethodDebitCard,
		PaymentMethodPayPal,
		PaymentMethodBankTransfer,
		PaymentMethodDigitalWallet,
	}
}

// IsValid возвращает true для известного метода оплаты.
func (m PaymentMethod) IsValid() bool {
	return slices.Contains(AllPaymentMethods(), m)
}

// =============================================================================
// Payment — доменная сущность
// =============================================================================

// BillingAddress — платёжный адрес.
type BillingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// PaymentDetails — дополнительные данные карты. Хранятся одной JSON колонкой.
type PaymentDetails struct {
	CardLast4      string          `json:"cardLast4,omitempty"`
	CardBrand      string          `json:"cardBrand,omitempty"`
	ExpiryMonth    *int            `json:"expiryMonth,omitempty"`
	ExpiryYear     *int            `json:"expiryYear,omitempty"`
	BillingAddress *BillingAddress `json:"billingAddress,omitempty"`
}

// Payment — платёж по заказу.
type Payment struct {
	ID                  string
	OrderID             string
	CustomerID          string
	Amount              decimal.Decimal
	PaymentMethod       PaymentMethod
	Status              PaymentStatus
	TransactionID       *string
	RefundTransactionID *string
	GatewayResponse     *string
	FailureReason       *string
	PaymentDetails      *PaymentDetails
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ProcessedAt         *time.Time // выставляется при первом COMPLETED/FAILED и не сбрасывается
}

// NewPayment создаёт платёж в статусе PENDING.
func NewPayment(id, orderID, customerID string, amount decimal.Decimal, method PaymentMethod, details *PaymentDetails, now time.Time) (*Payment, error) {
	p := &Payment{
		ID:             id,
		OrderID:        orderID,
		CustomerID:     customerID,
		Amount:         amount,
		PaymentMethod:  method,
		Status:         PaymentStatusPending,
		PaymentDetails: details,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate проверяет поля, задаваемые при создании.
func (p *Payment) Validate() error {
	if p.OrderID == "" {
		return fmt.Errorf("%w: orderId обязателен", ErrValidation)
	}
	if p.CustomerID == "" {
		return fmt.Errorf("%w: customerId обязателен", ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !p.Amount.Equal(p.Amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: не более %d знаков после запятой, получено %s", ErrInvalidAmount, AmountScale, p.Amount)
	}
	if p.Amount.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: сумма должна быть меньше %s", ErrInvalidAmount, MaxAmount)
	}
	if !p.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, p.PaymentMethod)
	}
	return nil
}

// TransitionTo выполняет переход по таблице состояний.
func (p *Payment) TransitionTo(to PaymentStatus, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.setStatus(to, now)
	return nil
}

// StartProcessing переводит PENDING платёж в PROCESSING.
func (p *Payment) StartProcessing(now time.Time) error {
	return p.TransitionTo(PaymentStatusProcessing, now)
}

// Complete фиксирует успешное списание.
func (p *Payment) Complete(transactionID string, now time.Time) error {
	if err := p.TransitionTo(PaymentStatusCompleted, now); err != nil {
		return err
	}
	p.TransactionID = &transactionID
	return nil
}

// Fail фиксирует отказ шлюза с причиной.
func (p *Payment) Fail(reason string, now time.Time) error {
	if err := p.TransitionTo(PaymentStatusFailed, now); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// Refund фиксирует возврат. TransactionID исходного списания сохраняется.
func (p *Payment) Refund(refundTransactionID string, now time.Time) error {
	if err := p.TransitionTo(PaymentStatusRefunded, now); err != nil {
		return err
	}
	p.RefundTransactionID = &refundTransactionID
	return nil
}

// Cancel отменяет PENDING платёж.
func (p *Payment) Cancel(now time.Time) error {
	return p.TransitionTo(PaymentStatusCancelled, now)
}

// Patch — частичное административное обновление. nil поле не меняется.
type Patch struct {
	Status          *PaymentStatus
	TransactionID   *string
	GatewayResponse *string
	FailureReason   *string
}

// ApplyPatch применяет обновление без проверки таблицы переходов.
// Возвращает предыдущий статус.
func (p *Payment) ApplyPatch(patch Patch, now time.Time) PaymentStatus {
	old := p.Status
	if patch.Status != nil {
		p.setStatus(*patch.Status, now)
	}
	if patch.TransactionID != nil {
		p.TransactionID = patch.TransactionID
	}
	if patch.GatewayResponse != nil {
		p.GatewayResponse = patch.GatewayResponse
	}
	if patch.FailureReason != nil {
		p.FailureReason = patch.FailureReason
	}
	p.UpdatedAt = now
	return old
}

func (p *Payment) setStatus(to PaymentStatus, now time.Time) {
	p.Status = to
	p.UpdatedAt = now
	if to.IsSettled() && p.ProcessedAt == nil {
		t := now
		p.ProcessedAt = &t
	}
}
