package handler

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"example.com/payment-service/services/payment/internal/domain"
)

var registerOnce sync.Once

// RegisterValidators добавляет теги payment_method и payment_status в валидатор gin.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("неожиданный движок валидации gin: %T", binding.Validator.Engine())
			return
		}
		if err = v.RegisterValidation("payment_method", validatePaymentMethod); err != nil {
			return
		}
		err = v.RegisterValidation("payment_status", validatePaymentStatus)
	})
	return err
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return domain.PaymentMethod(fl.Field().String()).IsValid()
}

func validatePaymentStatus(fl validator.FieldLevel) bool {
	_, err := domain.ParseStatus(fl.Field().String())
	return err == nil
}
