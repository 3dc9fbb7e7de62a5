package service

import (
	"context"
	"errors"
	"time"

	"example.com/payment-service/pkg/logger"
	"example.com/payment-service/pkg/metrics"
	"example.com/payment-service/services/payment/internal/domain"
)

// =============================================================================
// RecoveryWorker — перевод зависших PROCESSING платежей в FAILED
// =============================================================================

// RecoveryConfig — настройки RecoveryWorker.
type RecoveryConfig struct {
	// PollInterval — интервал между сканированиями.
	PollInterval time.Duration

	// StuckTimeout — платёж в PROCESSING дольше этого времени считается зависшим.
	StuckTimeout time.Duration

	// BatchSize — максимум платежей за один цикл.
	BatchSize int
}

// DefaultRecoveryConfig возвращает конфигурацию по умолчанию.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		PollInterval: 30 * time.Second,
		StuckTimeout: 5 * time.Minute,
		BatchSize:    50,
	}
}

// RecoverStuck переводит зависшие PROCESSING платежи в FAILED с системной причиной.
// Возвращает количество восстановленных платежей.
func (m *Manager) RecoverStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	log := logger.FromContext(ctx)

	stuck, err := m.repo.GetStuckProcessing(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, payment := range stuck {
		select {
		case <-ctx.Done():
			return recovered, ctx.Err()
		default:
		}

		now := m.now()
		if err := payment.Fail(domain.SystemErrorReason, now); err != nil {
			// Статус успел измениться после выборки
			log.Info().Str("payment_id", payment.ID).Err(err).Msg("Платёж уже не в processing, пропускаем")
			continue
		}
		if err := m.repo.UpdateFromStatus(ctx, payment, domain.PaymentStatusProcessing); err != nil {
			if errors.Is(err, domain.ErrStatusChanged) {
				log.Info().Str("payment_id", payment.ID).Msg("Платёж обработан до восстановления, пропускаем")
				continue
			}
			log.Error().Err(err).Str("payment_id", payment.ID).Msg("Ошибка сохранения зависшего платежа")
			continue
		}
		metrics.RecordTransition(string(domain.PaymentStatusProcessing), string(domain.PaymentStatusFailed))

		log.Warn().
			Str("payment_id", payment.ID).
			Str("order_id", payment.OrderID).
			Msg("Зависший платёж переведён в failed")

		m.publish(ctx, domain.NewPaymentProcessed(payment, now))
		recovered++
	}
	return recovered, nil
}

// RecoveryWorker периодически вызывает Manager.RecoverStuck.
type RecoveryWorker struct {
	manager *Manager
	cfg     RecoveryConfig
}

// NewRecoveryWorker создаёт RecoveryWorker.
func NewRecoveryWorker(manager *Manager, cfg RecoveryConfig) *RecoveryWorker {
	return &RecoveryWorker{manager: manager, cfg: cfg}
}

// Run блокирует выполнение до отмены контекста.
func (w *RecoveryWorker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Dur("stuck_timeout", w.cfg.StuckTimeout).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Recovery Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Recovery Worker")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RecoveryWorker) tick(ctx context.Context) {
	n, err := w.manager.RecoverStuck(ctx, w.cfg.StuckTimeout, w.cfg.BatchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Ошибка восстановления зависших платежей")
		return
	}
	if n > 0 {
		logger.Ctx(ctx).Warn().Int("count", n).Msg("Восстановлены зависшие платежи")
	}
}
