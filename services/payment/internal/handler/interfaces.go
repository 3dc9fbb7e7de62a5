package handler

import (
	"context"

	"example.com/payment-service/services/payment/internal/domain"
	"example.com/payment-service/services/payment/internal/service"
)

// PaymentService — операции жизненного цикла платежа.
// Позволяет мокировать service.Manager в тестах.
type PaymentService interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.Payment, error)
	Process(ctx context.Context, id string, in service.ProcessInput) (*domain.Payment, error)
	Refund(ctx context.Context, id string) (*domain.Payment, error)
	Cancel(ctx context.Context, id string) (*domain.Payment, error)
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Payment, error)
	Get(ctx context.Context, id string) (*domain.Payment, error)
	List(ctx context.Context, q service.ListQuery) (*service.ListResult, error)
}
