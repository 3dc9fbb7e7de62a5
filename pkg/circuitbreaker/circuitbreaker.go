// Package circuitbreaker предоставляет Circuit Breaker для вызовов внешних систем.
// Payment Service оборачивает им платёжный шлюз.
//
// Состояния:
//   - Closed: вызовы проходят
//   - Open: вызовы отклоняются сразу с ErrOpen
//   - Half-Open: пропускается MaxRequests пробных вызовов
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/payment-service/pkg/logger"
)

// ErrOpen — breaker открыт или в half-open исчерпан лимит пробных вызовов.
var ErrOpen = errors.New("circuit breaker открыт")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // Макс. запросов в Half-Open состоянии
	Interval     time.Duration // Интервал сброса счётчика в Closed
	Timeout      time.Duration // Время в Open до перехода в Half-Open
	FailureRatio float64       // Доля ошибок для перехода в Open
	MinRequests  uint32        // Мин. запросов для расчёта ratio
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Breaker — типизированная обёртка над gobreaker с логированием смены состояний.
type Breaker[T any] struct {
	cb   *gobreaker.CircuitBreaker[T]
	name string
}

// New создаёт Breaker с настройками по умолчанию.
func New[T any](name string) *Breaker[T] {
	return NewWithSettings[T](name, DefaultSettings())
}

// NewWithSettings создаёт Breaker с пользовательскими настройками.
func NewWithSettings[T any](name string, s Settings) *Breaker[T] {
	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		// Открываем при доле ошибок >= FailureRatio после MinRequests вызовов
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},

		// Отмена контекста вызывающим кодом не считается сбоем внешней системы
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker ОТКРЫТ — внешняя система недоступна")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker ПОЛУОТКРЫТ — пробуем восстановить")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker ЗАКРЫТ — внешняя система восстановлена")
			}
		},
	})

	return &Breaker[T]{cb: cb, name: name}
}

// Execute выполняет fn через breaker.
// Любая ошибка fn учитывается как сбой. Бизнес-отказы должны возвращаться в T, а не в error.
func (b *Breaker[T]) Execute(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (T, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	return res, err
}

// State возвращает текущее состояние breaker.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}

// Name возвращает имя breaker.
func (b *Breaker[T]) Name() string {
	return b.name
}
