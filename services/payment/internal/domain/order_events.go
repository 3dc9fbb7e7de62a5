package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderCreated — событие Order Service о новом заказе.
type OrderCreated struct {
	OrderID     string            `json:"orderId"`
	CustomerID  string            `json:"customerId"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Items       []json.RawMessage `json:"items"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// OrderStatusChanged — событие Order Service о смене статуса заказа.
type OrderStatusChanged struct {
	OrderID   string    `json:"orderId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderStatusCancelled — статус отменённого заказа.
const OrderStatusCancelled = "cancelled"

// OrderDeleted — событие Order Service об удалении заказа.
type OrderDeleted struct {
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	DeletedAt  time.Time `json:"deletedAt"`
}
