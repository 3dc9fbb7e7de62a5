package domain

import (
	"errors"
	"fmt"
)

// Доменные ошибки Payment Service.
var (
	// ErrPaymentNotFound — платёж не найден.
	ErrPaymentNotFound = errors.New("платёж не найден")

	// ErrInvalidTransition — операция недопустима в текущем статусе платежа.
	ErrInvalidTransition = errors.New("недопустимый переход состояния платежа")

	// ErrDuplicatePayment — для заказа уже есть завершённый платёж.
	ErrDuplicatePayment = errors.New("платёж для этого заказа уже завершён")

	// ErrRefundFailed — шлюз отклонил возврат, статус не изменён.
	ErrRefundFailed = errors.New("возврат платежа не выполнен")

	// ErrInvalidAmount — некорректная сумма платежа.
	ErrInvalidAmount = errors.New("сумма платежа должна быть больше нуля")

	// ErrInvalidPaymentMethod — неизвестный метод оплаты.
	ErrInvalidPaymentMethod = errors.New("неизвестный метод оплаты")

	// ErrInvalidStatus — неизвестный статус платежа.
	ErrInvalidStatus = errors.New("неизвестный статус платежа")

	// ErrValidation — прочие ошибки входных данных.
	ErrValidation = errors.New("некорректные данные платежа")
)

// ErrProcessingInProgress — платёж уже обрабатывается другим запросом.
// Является частным случаем ErrInvalidTransition.
var ErrProcessingInProgress = fmt.Errorf("%w: платёж уже обрабатывается", ErrInvalidTransition)

// ErrStatusChanged — статус платежа изменился между чтением и записью.
var ErrStatusChanged = fmt.Errorf("%w: статус платежа изменён параллельно", ErrInvalidTransition)

// IsValidationError возвращает true для ошибок входных данных.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrValidation)
}
