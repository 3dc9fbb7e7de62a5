// Package handler содержит HTTP обработчики REST API платежей.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/services/payment/internal/domain"
)

// Коды ошибок в ответе API.
const (
	CodeNotFound         = "not_found"
	CodeInvalidState     = "invalid_state"
	CodeDuplicatePayment = "duplicate_payment"
	CodeRefundFailed     = "refund_failed"
	CodeValidation       = "validation_error"
	CodeInternal         = "internal_error"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleError преобразует доменную ошибку в HTTP ответ.
// Используется всеми handlers для единообразной обработки ошибок.
func HandleError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	if err == nil {
		log.Error().Str("method", method).Msg("HandleError вызван с nil ошибкой")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   CodeInternal,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	var (
		httpStatus int
		code       string
	)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		httpStatus, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		httpStatus, code = http.StatusBadRequest, CodeInvalidState
	case errors.Is(err, domain.ErrDuplicatePayment):
		httpStatus, code = http.StatusBadRequest, CodeDuplicatePayment
	case errors.Is(err, domain.ErrRefundFailed):
		httpStatus, code = http.StatusBadRequest, CodeRefundFailed
	case domain.IsValidationError(err):
		httpStatus, code = http.StatusBadRequest, CodeValidation
	default:
		// Детали внутренних ошибок клиенту не отдаём
		log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   CodeInternal,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	log.Debug().Err(err).Str("method", method).Int("status", httpStatus).Msg("Ошибка запроса")
	c.JSON(httpStatus, ErrorResponse{Error: code, Message: err.Error()})
}

// badRequest отвечает 400 на невалидный запрос.
func badRequest(c *gin.Context, err error, method string) {
	logger.Ctx(c.Request.Context()).Debug().
		Err(err).
		Str("method", method).
		Msg("Невалидный запрос")
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidation,
		Message: err.Error(),
	})
}
