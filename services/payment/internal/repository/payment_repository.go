// Package repository содержит хранилище платежей на GORM + MySQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"example.com/payment-service/services/payment/internal/domain"
)

// ListFilter — фильтр выборки платежей. Пустое поле не участвует в запросе.
type ListFilter struct {
	Status     domain.PaymentStatus
	CustomerID string
	OrderID    string
}

// PaymentRepository определяет работу с платежами в БД.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) ([]*domain.Payment, error)
	// Update перезаписывает изменяемые поля платежа (last write wins).
	Update(ctx context.Context, payment *domain.Payment) error
	// UpdateFromStatus записывает платёж, только если в БД он всё ещё в статусе from.
	// Иначе возвращает domain.ErrStatusChanged.
	UpdateFromStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error
	// List возвращает страницу платежей по created_at DESC и общее количество.
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]*domain.Payment, int64, error)
	// Delete — только для административного использования.
	Delete(ctx context.Context, id string) error
	// GetStuckProcessing возвращает PROCESSING платежи, не обновлявшиеся дольше olderThan.
	GetStuckProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error)
}

// paymentRepository — GORM реализация PaymentRepository.
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создаёт репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	if err := r.db.WithContext(ctx).Create(modelFromDomain(payment)).Error; err != nil {
		return fmt.Errorf("ошибка создания платежа: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	var model PaymentModel

	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("ошибка получения платежа: %w", err)
	}

	return model.toDomain(), nil
}

func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	var models []PaymentModel

	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("ошибка поиска платежей заказа: %w", err)
	}

	return toDomainList(models), nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	affected, err := r.update(r.db.WithContext(ctx).Where("id = ?", payment.ID), payment)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) UpdateFromStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error {
	affected, err := r.update(
		r.db.WithContext(ctx).Where("id = ? AND status = ?", payment.ID, string(from)),
		payment)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: платёж %s уже не в статусе %s", domain.ErrStatusChanged, payment.ID, from)
	}
	return nil
}

func (r *paymentRepository) update(tx *gorm.DB, payment *domain.Payment) (int64, error) {
	model := modelFromDomain(payment)

	result := tx.
		Model(&PaymentModel{}).
		Updates(map[string]any{
			"status":                model.Status,
			"transaction_id":        model.TransactionID,
			"refund_transaction_id": model.RefundTransactionID,
			"gateway_response":      model.GatewayResponse,
			"failure_reason":        model.FailureReason,
			"processed_at":          model.ProcessedAt,
			"updated_at":            model.UpdatedAt,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка обновления платежа: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *paymentRepository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]*domain.Payment, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Scopes(filter.scope).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта платежей: %w", err)
	}
	if total == 0 {
		return []*domain.Payment{}, 0, nil
	}

	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Scopes(filter.scope).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки платежей: %w", err)
	}

	return toDomainList(models), total, nil
}

// scope добавляет условия фильтра к запросу.
func (f ListFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", string(f.Status))
	}
	if f.CustomerID != "" {
		db = db.Where("customer_id = ?", f.CustomerID)
	}
	if f.OrderID != "" {
		db = db.Where("order_id = ?", f.OrderID)
	}
	return db
}

func (r *paymentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PaymentModel{})
	if result.Error != nil {
		return fmt.Errorf("ошибка удаления платежа: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) GetStuckProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	var models []PaymentModel

	threshold := time.Now().UTC().Add(-olderThan)

	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(domain.PaymentStatusProcessing), threshold).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("ошибка поиска зависших платежей: %w", err)
	}

	return toDomainList(models), nil
}

func toDomainList(models []PaymentModel) []*domain.Payment {
	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, models[i].toDomain())
	}
	return payments
}
