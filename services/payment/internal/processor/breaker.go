package processor

import (
	"context"
	"time"

	"example.com/payment-service/pkg/circuitbreaker"
	"example.com/payment-service/pkg/metrics"
	"example.com/payment-service/services/payment/internal/domain"
)

// breakerGateway пропускает вызовы шлюза через Circuit Breaker.
// Отказы шлюза (Success=false) для breaker успешны, сбоем считается только ошибка.
type breakerGateway struct {
	next    Gateway
	charges *circuitbreaker.Breaker[ChargeResult]
	refunds *circuitbreaker.Breaker[RefundResult]
}

// WithBreaker оборачивает шлюз в Circuit Breaker.
func WithBreaker(next Gateway, settings circuitbreaker.Settings) Gateway {
	return &breakerGateway{
		next:    next,
		charges: circuitbreaker.NewWithSettings[ChargeResult]("payment-gateway-charge", settings),
		refunds: circuitbreaker.NewWithSettings[RefundResult]("payment-gateway-refund", settings),
	}
}

func (g *breakerGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return g.charges.Execute(ctx, func(ctx context.Context) (ChargeResult, error) {
		return g.next.Charge(ctx, req)
	})
}

func (g *breakerGateway) Refund(ctx context.Context, payment *domain.Payment) (RefundResult, error) {
	return g.refunds.Execute(ctx, func(ctx context.Context) (RefundResult, error) {
		return g.next.Refund(ctx, payment)
	})
}

// instrumentedGateway пишет payment_processor_duration_seconds.
type instrumentedGateway struct {
	next Gateway
}

// WithMetrics оборачивает шлюз метриками длительности.
func WithMetrics(next Gateway) Gateway {
	return &instrumentedGateway{next: next}
}

func (g *instrumentedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	start := time.Now()
	res, err := g.next.Charge(ctx, req)
	metrics.RecordProcessorCall("charge", outcome(res.Success, err), time.Since(start))
	return res, err
}

func (g *instrumentedGateway) Refund(ctx context.Context, payment *domain.Payment) (RefundResult, error) {
	start := time.Now()
	res, err := g.next.Refund(ctx, payment)
	metrics.RecordProcessorCall("refund", outcome(res.Success, err), time.Since(start))
	return res, err
}

func outcome(success bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case success:
		return "success"
	default:
		return "declined"
	}
}
