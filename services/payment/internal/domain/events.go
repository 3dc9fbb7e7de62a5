package domain

import (
	"encoding/json"
	"time"
)

// Event — доменное событие платежа. Ключ сообщения — ID платежа.
type Event interface {
	EventType() string
	PaymentKey() string
}

// Типы доменных событий.
const (
	EventPaymentCreated       = "PaymentCreated"
	EventPaymentProcessed     = "PaymentProcessed"
	EventPaymentStatusChanged = "PaymentStatusChanged"
	EventPaymentRefunded      = "PaymentRefunded"
	EventPaymentCancelled     = "PaymentCancelled"
)

// PaymentCreated публикуется после сохранения нового платежа.
type PaymentCreated struct {
	PaymentID     string        `json:"paymentId"`
	OrderID       string        `json:"orderId"`
	CustomerID    string        `json:"customerId"`
	Amount        json.Number   `json:"amount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// PaymentProcessed публикуется после любого исхода обработки.
type PaymentProcessed struct {
	PaymentID     string      `json:"paymentId"`
	OrderID       string      `json:"orderId"`
	Amount        json.Number `json:"amount"`
	Success       bool        `json:"success"`
	TransactionID string      `json:"transactionId,omitempty"`
	ProcessedAt   time.Time   `json:"processedAt"`
}

// PaymentStatusChanged публикуется при смене статуса через административное обновление.
type PaymentStatusChanged struct {
	PaymentID string        `json:"paymentId"`
	OrderID   string        `json:"orderId"`
	OldStatus PaymentStatus `json:"oldStatus"`
	NewStatus PaymentStatus `json:"newStatus"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// PaymentRefunded публикуется только при успешном возврате.
type PaymentRefunded struct {
	PaymentID           string      `json:"paymentId"`
	OrderID             string      `json:"orderId"`
	Amount              json.Number `json:"amount"`
	RefundTransactionID string      `json:"refundTransactionId"`
	RefundedAt          time.Time   `json:"refundedAt"`
}

// PaymentCancelled публикуется после отмены PENDING платежа.
type PaymentCancelled struct {
	PaymentID   string    `json:"paymentId"`
	OrderID     string    `json:"orderId"`
	CustomerID  string    `json:"customerId"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (PaymentCreated) EventType() string       { return EventPaymentCreated }
func (PaymentProcessed) EventType() string     { return EventPaymentProcessed }
func (PaymentStatusChanged) EventType() string { return EventPaymentStatusChanged }
func (PaymentRefunded) EventType() string      { return EventPaymentRefunded }
func (PaymentCancelled) EventType() string     { return EventPaymentCancelled }

func (e PaymentCreated) PaymentKey() string       { return e.PaymentID }
func (e PaymentProcessed) PaymentKey() string     { return e.PaymentID }
func (e PaymentStatusChanged) PaymentKey() string { return e.PaymentID }
func (e PaymentRefunded) PaymentKey() string      { return e.PaymentID }
func (e PaymentCancelled) PaymentKey() string     { return e.PaymentID }

// AmountNumber возвращает сумму как JSON число без потери точности.
func (p *Payment) AmountNumber() json.Number {
	return json.Number(p.Amount.String())
}

// NewPaymentCreated собирает событие создания платежа.
func NewPaymentCreated(p *Payment) PaymentCreated {
	return PaymentCreated{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		CustomerID:    p.CustomerID,
		Amount:        p.AmountNumber(),
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     p.CreatedAt,
	}
}

// NewPaymentProcessed собирает событие результата обработки.
func NewPaymentProcessed(p *Payment, at time.Time) PaymentProcessed {
	evt := PaymentProcessed{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		Amount:      p.AmountNumber(),
		Success:     p.Status == PaymentStatusCompleted,
		ProcessedAt: at,
	}
	if evt.Success && p.TransactionID != nil {
		evt.TransactionID = *p.TransactionID
	}
	return evt
}
