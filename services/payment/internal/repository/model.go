package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"example.com/payment-service/services/payment/internal/domain"
)

// PaymentModel — GORM модель таблицы payments.
type PaymentModel struct {
	ID                  string                                      `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID             string                                      `gorm:"column:order_id;type:varchar(64);not null;index"`
	CustomerID          string                                      `gorm:"column:customer_id;type:varchar(64);not null;index"`
	Amount              decimal.Decimal                             `gorm:"column:amount;type:decimal(10,2);not null"`
	PaymentMethod       string                                      `gorm:"column:payment_method;type:varchar(32);not null"`
	Status              string                                      `gorm:"column:status;type:varchar(20);not null;index:idx_payments_status_updated"`
	TransactionID       *string                                     `gorm:"column:transaction_id;type:varchar(64)"`
	RefundTransactionID *string                                     `gorm:"column:refund_transaction_id;type:varchar(64)"`
	GatewayResponse     *string                                     `gorm:"column:gateway_response;type:text"`
	FailureReason       *string                                     `gorm:"column:failure_reason;type:text"`
	PaymentDetails      datatypes.JSONType[*domain.PaymentDetails] `gorm:"column:payment_details;type:json;not null"`
	CreatedAt           time.Time                                   `gorm:"column:created_at;type:datetime(3);not null;index"`
	UpdatedAt           time.Time                                   `gorm:"column:updated_at;type:datetime(3);not null;index:idx_payments_status_updated"`
	ProcessedAt         *time.Time                                  `gorm:"column:processed_at;type:datetime(3)"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentModel) TableName() string {
	return "payments"
}

func (m *PaymentModel) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:                  m.ID,
		OrderID:             m.OrderID,
		CustomerID:          m.CustomerID,
		Amount:              m.Amount,
		PaymentMethod:       domain.PaymentMethod(m.PaymentMethod),
		Status:              domain.PaymentStatus(m.Status),
		TransactionID:       m.TransactionID,
		RefundTransactionID: m.RefundTransactionID,
		GatewayResponse:     m.GatewayResponse,
		FailureReason:       m.FailureReason,
		PaymentDetails:      m.PaymentDetails.Data(),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		ProcessedAt:         m.ProcessedAt,
	}
}

func modelFromDomain(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		CustomerID:          p.CustomerID,
		Amount:              p.Amount,
		PaymentMethod:       string(p.PaymentMethod),
		Status:              string(p.Status),
		TransactionID:       p.TransactionID,
		RefundTransactionID: p.RefundTransactionID,
		GatewayResponse:     p.GatewayResponse,
		FailureReason:       p.FailureReason,
		PaymentDetails:      datatypes.NewJSONType(p.PaymentDetails),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		ProcessedAt:         p.ProcessedAt,
	}
}
