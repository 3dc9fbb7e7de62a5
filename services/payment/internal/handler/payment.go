package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/services/payment/internal/domain"
	"example.com/payment-service/services/payment/internal/repository"
	"example.com/payment-service/services/payment/internal/service"
)

// PaymentHandler — обработчик платежей.
type PaymentHandler struct {
	payments PaymentService
}

// NewPaymentHandler создаёт обработчик платежей.
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// === Request/Response DTOs ===

// CreatePaymentRequest — запрос на создание платежа.
// Сумма проверяется доменом: отсутствующая или неположительная даёт validation_error.
type CreatePaymentRequest struct {
	OrderID        string                 `json:"orderId" binding:"required"`
	CustomerID     string                 `json:"customerId" binding:"required"`
	Amount         decimal.Decimal        `json:"amount"`
	PaymentMethod  domain.PaymentMethod   `json:"paymentMethod" binding:"required,payment_method"`
	PaymentDetails *PaymentDetailsRequest `json:"paymentDetails"`
}

// PaymentDetailsRequest — платёжные реквизиты.
type PaymentDetailsRequest struct {
	CardLast4      string                 `json:"cardLast4"`
	CardBrand      string                 `json:"cardBrand"`
	ExpiryMonth    *int                   `json:"expiryMonth" binding:"omitempty,min=1,max=12"`
	ExpiryYear     *int                   `json:"expiryYear"`
	BillingAddress *BillingAddressRequest `json:"billingAddress"`
}

// BillingAddressRequest — адрес плательщика. Все поля обязательны.
type BillingAddressRequest struct {
	Street  string `json:"street" binding:"required"`
	City    string `json:"city" binding:"required"`
	State   string `json:"state" binding:"required"`
	ZipCode string `json:"zipCode" binding:"required"`
	Country string `json:"country" binding:"required"`
}

// ProcessPaymentRequest — платёжные данные для списания.
type ProcessPaymentRequest struct {
	PaymentToken string `json:"paymentToken" binding:"required"`
	CVV          string `json:"cvv"`
}

// UpdatePaymentRequest — административное обновление. Отсутствующее поле не меняется.
type UpdatePaymentRequest struct {
	Status          *string `json:"status" binding:"omitempty,payment_status"`
	TransactionID   *string `json:"transactionId"`
	GatewayResponse *string `json:"gatewayResponse"`
	FailureReason   *string `json:"failureReason"`
}

// ListPaymentsQuery — параметры выборки.
type ListPaymentsQuery struct {
	Status     string `form:"status" binding:"omitempty,payment_status"`
	CustomerID string `form:"customerId"`
	OrderID    string `form:"orderId"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// PaymentResponse — платёж в ответе.
type PaymentResponse struct {
	ID                  string                 `json:"id"`
	OrderID             string                 `json:"orderId"`
	CustomerID          string                 `json:"customerId"`
	Amount              json.Number            `json:"amount"`
	PaymentMethod       domain.PaymentMethod   `json:"paymentMethod"`
	Status              domain.PaymentStatus   `json:"status"`
	TransactionID       *string                `json:"transactionId,omitempty"`
	RefundTransactionID *string                `json:"refundTransactionId,omitempty"`
	GatewayResponse     *string                `json:"gatewayResponse,omitempty"`
	FailureReason       *string                `json:"failureReason,omitempty"`
	PaymentDetails      *domain.PaymentDetails `json:"paymentDetails,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
	ProcessedAt         *time.Time             `json:"processedAt,omitempty"`
}

// ListPaymentsResponse — страница платежей.
type ListPaymentsResponse struct {
	Data []PaymentResponse `json:"data"`
	Meta service.PageMeta  `json:"meta"`
}

// === Handlers ===

// CreatePayment создаёт платёж.
// POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "CreatePayment")
		return
	}

	payment, err := h.payments.Create(c.Request.Context(), service.CreateInput{
		OrderID:        req.OrderID,
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails.toDomain(),
	})
	if err != nil {
		HandleError(c, err, "CreatePayment")
		return
	}

	c.JSON(http.StatusCreated, toResponse(payment))
}

// ProcessPayment списывает средства. Отклонённый платёж тоже возвращается с 200.
// POST /api/v1/payments/:id/process
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "ProcessPayment")
		return
	}

	payment, err := h.payments.Process(c.Request.Context(), c.Param("id"), service.ProcessInput{
		PaymentToken: req.PaymentToken,
		CVV:          req.CVV,
	})
	if err != nil {
		HandleError(c, err, "ProcessPayment")
		return
	}

	c.JSON(http.StatusOK, toResponse(payment))
}

// RefundPayment возвращает средства.
// POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	payment, err := h.payments.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err, "RefundPayment")
		return
	}
	c.JSON(http.StatusOK, toResponse(payment))
}

// CancelPayment отменяет платёж.
// POST /api/v1/payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	payment, err := h.payments.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err, "CancelPayment")
		return
	}
	c.JSON(http.StatusOK, toResponse(payment))
}

// ListPayments возвращает страницу платежей.
// GET /api/v1/payments?status=completed&customerId=...&page=1&limit=10
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var q ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err, "ListPayments")
		return
	}

	result, err := h.payments.List(c.Request.Context(), service.ListQuery{
		Filter: repository.ListFilter{
			Status:     domain.PaymentStatus(q.Status),
			CustomerID: q.CustomerID,
			OrderID:    q.OrderID,
		},
		Page:  q.Page,
		Limit: q.Limit,
	})
	if err != nil {
		HandleError(c, err, "ListPayments")
		return
	}

	data := make([]PaymentResponse, len(result.Items))
	for i, p := range result.Items {
		data[i] = toResponse(p)
	}

	logger.Ctx(c.Request.Context()).Debug().
		Int("page", result.Meta.CurrentPage).
		Int("count", len(data)).
		Msg("Список платежей получен")

	c.JSON(http.StatusOK, ListPaymentsResponse{Data: data, Meta: result.Meta})
}

// GetPayment возвращает платёж по ID.
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err, "GetPayment")
		return
	}
	c.JSON(http.StatusOK, toResponse(payment))
}

// UpdatePayment применяет административное обновление.
// PUT /api/v1/payments/:id
func (h *PaymentHandler) UpdatePayment(c *gin.Context) {
	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err, "UpdatePayment")
		return
	}

	patch := domain.Patch{
		TransactionID:   req.TransactionID,
		GatewayResponse: req.GatewayResponse,
		FailureReason:   req.FailureReason,
	}
	if req.Status != nil {
		status := domain.PaymentStatus(*req.Status)
		patch.Status = &status
	}

	payment, err := h.payments.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		HandleError(c, err, "UpdatePayment")
		return
	}
	c.JSON(http.StatusOK, toResponse(payment))
}

// === Преобразования ===

func (r *PaymentDetailsRequest) toDomain() *domain.PaymentDetails {
	if r == nil {
		return nil
	}
	d := &domain.PaymentDetails{
		CardLast4:   r.CardLast4,
		CardBrand:   r.CardBrand,
		ExpiryMonth: r.ExpiryMonth,
		ExpiryYear:  r.ExpiryYear,
	}
	if a := r.BillingAddress; a != nil {
		d.BillingAddress = &domain.BillingAddress{
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			ZipCode: a.ZipCode,
			Country: a.Country,
		}
	}
	return d
}

func toResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		CustomerID:          p.CustomerID,
		Amount:              p.AmountNumber(),
		PaymentMethod:       p.PaymentMethod,
		Status:              p.Status,
		TransactionID:       p.TransactionID,
		RefundTransactionID: p.RefundTransactionID,
		GatewayResponse:     p.GatewayResponse,
		FailureReason:       p.FailureReason,
		PaymentDetails:      p.PaymentDetails,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		ProcessedAt:         p.ProcessedAt,
	}
}
