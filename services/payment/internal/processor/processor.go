// Package processor содержит симулятор платёжного шлюза и его обёртки.
package processor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/payment-service/pkg/config"
	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/services/payment/internal/domain"
)

// Причины отказа шлюза.
const (
	ReasonDailyLimit        = "Amount exceeds daily limit"
	ReasonInvalidToken      = "Invalid payment token"
	ReasonInsufficientFunds = "Insufficient funds"
	ReasonGatewayTimeout    = "Payment gateway timeout"
	ReasonNoTransactionID   = "Original transaction ID is required"
	ReasonRefundFailed      = "Refund processing failed"
)

// Тестовые токены, которые шлюз отклоняет.
const (
	TokenInvalid           = "invalid_token"
	TokenInsufficientFunds = "insufficient_funds"
)

// dailyLimit — сумма, выше которой списание отклоняется.
var dailyLimit = decimal.NewFromInt(10000)

// ChargeRequest — запрос на списание.
type ChargeRequest struct {
	PaymentID string
	Token     string
	CVV       string
	Amount    decimal.Decimal
}

// ChargeResult — результат списания. Success=false означает отказ, а не сбой.
type ChargeResult struct {
	Success       bool
	TransactionID string
	FailureReason string
}

// RefundResult — результат возврата.
type RefundResult struct {
	Success             bool
	RefundTransactionID string
	FailureReason       string
}

// Gateway — платёжный шлюз. Ошибка означает сбой шлюза, отказ возвращается в результате.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, payment *domain.Payment) (RefundResult, error)
}

// Policy задаёт случайность и задержки симулятора.
type Policy struct {
	Rand              func() float64 // значение в [0, 1)
	Now               func() time.Time
	ChargeFailureRate float64
	RefundFailureRate float64
	ChargeDelay       time.Duration
	RefundDelay       time.Duration
}

// DefaultPolicy возвращает поведение по умолчанию: 10% и 5% отказов, задержки 2s и 1.5s.
func DefaultPolicy() Policy {
	return Policy{
		Rand:              rand.Float64,
		Now:               time.Now,
		ChargeFailureRate: 0.10,
		RefundFailureRate: 0.05,
		ChargeDelay:       2 * time.Second,
		RefundDelay:       1500 * time.Millisecond,
	}
}

// PolicyFromConfig собирает Policy из конфигурации.
func PolicyFromConfig(cfg config.ProcessorConfig) Policy {
	p := DefaultPolicy()
	p.ChargeFailureRate = cfg.ChargeFailureRate
	p.RefundFailureRate = cfg.RefundFailureRate
	p.ChargeDelay = cfg.ChargeDelay
	p.RefundDelay = cfg.RefundDelay
	return p
}

// Simulated — симулятор шлюза без внешних вызовов.
type Simulated struct {
	policy Policy
}

// NewSimulated создаёт симулятор. Незаданные Rand и Now берутся по умолчанию.
func NewSimulated(policy Policy) *Simulated {
	if policy.Rand == nil {
		policy.Rand = rand.Float64
	}
	if policy.Now == nil {
		policy.Now = time.Now
	}
	return &Simulated{policy: policy}
}

// Charge проверяет правила по порядку: лимит, токен, случайный таймаут шлюза.
func (s *Simulated) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := sleep(ctx, s.policy.ChargeDelay); err != nil {
		return ChargeResult{}, err
	}

	var reason string
	switch {
	case req.Amount.GreaterThan(dailyLimit):
		reason = ReasonDailyLimit
	case req.Token == TokenInvalid:
		reason = ReasonInvalidToken
	case req.Token == TokenInsufficientFunds:
		reason = ReasonInsufficientFunds
	case s.policy.Rand() < s.policy.ChargeFailureRate:
		reason = ReasonGatewayTimeout
	}
	if reason != "" {
		logger.Ctx(ctx).Debug().
			Str("payment_id", req.PaymentID).
			Str("reason", reason).
			Msg("Шлюз отклонил списание (симуляция)")
		return ChargeResult{FailureReason: reason}, nil
	}

	return ChargeResult{
		Success:       true,
		TransactionID: newID("txn", s.policy.Now(), 9),
	}, nil
}

// Refund требует исходный transactionId и отказывает с вероятностью RefundFailureRate.
func (s *Simulated) Refund(ctx context.Context, payment *domain.Payment) (RefundResult, error) {
	if err := sleep(ctx, s.policy.RefundDelay); err != nil {
		return RefundResult{}, err
	}

	if payment.TransactionID == nil || *payment.TransactionID == "" {
		return RefundResult{FailureReason: ReasonNoTransactionID}, nil
	}
	if s.policy.Rand() < s.policy.RefundFailureRate {
		return RefundResult{FailureReason: ReasonRefundFailed}, nil
	}

	return RefundResult{
		Success:             true,
		RefundTransactionID: newID("rfnd", s.policy.Now(), 7),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("ожидание ответа шлюза прервано: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// newID формирует идентификатор вида <prefix>_<unixmillis>_<n символов base36>.
func newID(prefix string, now time.Time, n int) string {
	var b strings.Builder
	b.Grow(len(prefix) + 15 + n)
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for range n {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return b.String()
}
