package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// State Machine тесты
// =============================================================================

func TestTransitions_EveryStatusHasEntry(t *testing.T) {
	for _, s := range AllStatuses() {
		_, ok := allowedTransitions[s]
		assert.True(t, ok, "нет записи в таблице переходов для %s", s)
	}
	assert.Len(t, allowedTransitions, len(AllStatuses()))
}

func TestCanTransition(t *testing.T) {
	legal := map[PaymentStatus][]PaymentStatus{
		PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCancelled},
		PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
		PaymentStatusCompleted:  {PaymentStatusRefunded},
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := false
			for _, allowed := range legal[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   PaymentStatus
		terminal bool
	}{
		{PaymentStatusPending, false},
		{PaymentStatusProcessing, false},
		{PaymentStatusCompleted, false}, // возможен возврат
		{PaymentStatusFailed, true},
		{PaymentStatusRefunded, true},
		{PaymentStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, st)

	_, err = ParseStatus("COMPLETED")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

// =============================================================================
// Переходы сущности
// =============================================================================

func TestPayment_ProcessingFlow(t *testing.T) {
	now := time.Now().UTC()
	p := newTestPayment(t)

	require.NoError(t, p.StartProcessing(now))
	assert.Equal(t, PaymentStatusProcessing, p.Status)
	assert.Nil(t, p.ProcessedAt)

	require.NoError(t, p.Complete("txn_1", now.Add(time.Second)))
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.TransactionID)
	assert.Equal(t, "txn_1", *p.TransactionID)
	require.NotNil(t, p.ProcessedAt)
	assert.Equal(t, now.Add(time.Second), *p.ProcessedAt)

	processedAt := *p.ProcessedAt
	require.NoError(t, p.Refund("rfnd_1", now.Add(2*time.Second)))
	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.Equal(t, "txn_1", *p.TransactionID)
	assert.Equal(t, "rfnd_1", *p.RefundTransactionID)
	assert.Equal(t, processedAt, *p.ProcessedAt) // не сбрасывается
}

func TestPayment_Fail(t *testing.T) {
	now := time.Now().UTC()
	p := newTestPayment(t)
	require.NoError(t, p.StartProcessing(now))

	require.NoError(t, p.Fail("Insufficient funds", now))

	assert.Equal(t, PaymentStatusFailed, p.Status)
	assert.Equal(t, "Insufficient funds", *p.FailureReason)
	assert.NotNil(t, p.ProcessedAt)
}

func TestPayment_IllegalTransitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("complete из PENDING", func(t *testing.T) {
		p := newTestPayment(t)
		err := p.Complete("txn", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusPending, p.Status)
		assert.Nil(t, p.TransactionID)
	})

	t.Run("refund из PENDING", func(t *testing.T) {
		p := newTestPayment(t)
		assert.ErrorIs(t, p.Refund("rfnd", now), ErrInvalidTransition)
	})

	t.Run("cancel из PROCESSING", func(t *testing.T) {
		p := newTestPayment(t)
		require.NoError(t, p.StartProcessing(now))
		assert.ErrorIs(t, p.Cancel(now), ErrInvalidTransition)
	})
}

func TestPayment_ApplyPatch(t *testing.T) {
	now := time.Now().UTC()

	t.Run("обходит таблицу переходов и ставит ProcessedAt", func(t *testing.T) {
		p := newTestPayment(t)
		completed := PaymentStatusCompleted

		old := p.ApplyPatch(Patch{Status: &completed}, now)

		assert.Equal(t, PaymentStatusPending, old)
		assert.Equal(t, PaymentStatusCompleted, p.Status)
		require.NotNil(t, p.ProcessedAt)
	})

	t.Run("меняет только переданные поля", func(t *testing.T) {
		p := newTestPayment(t)
		resp := "gateway ok"

		old := p.ApplyPatch(Patch{GatewayResponse: &resp}, now)

		assert.Equal(t, PaymentStatusPending, old)
		assert.Equal(t, PaymentStatusPending, p.Status)
		assert.Equal(t, "gateway ok", *p.GatewayResponse)
		assert.Nil(t, p.TransactionID)
		assert.Nil(t, p.ProcessedAt)
	})
}

// =============================================================================
// Validation тесты
// =============================================================================

func TestNewPayment_Validation(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		orderID    string
		customerID string
		amount     decimal.Decimal
		method     PaymentMethod
		wantErr    error
	}{
		{"валидный", "order-1", "cust-1", decimal.NewFromInt(100), PaymentMethodPayPal, nil},
		{"пустой orderId", "", "cust-1", decimal.NewFromInt(100), PaymentMethodPayPal, ErrValidation},
		{"пустой customerId", "order-1", "", decimal.NewFromInt(100), PaymentMethodPayPal, ErrValidation},
		{"нулевая сумма", "order-1", "cust-1", decimal.Zero, PaymentMethodPayPal, ErrInvalidAmount},
		{"отрицательная сумма", "order-1", "cust-1", decimal.NewFromInt(-5), PaymentMethodPayPal, ErrInvalidAmount},
		{"три знака после запятой", "order-1", "cust-1", decimal.RequireFromString("0.001"), PaymentMethodPayPal, ErrInvalidAmount},
		{"лишние нули после запятой", "order-1", "cust-1", decimal.RequireFromString("10.500"), PaymentMethodPayPal, nil},
		{"максимальная сумма", "order-1", "cust-1", decimal.RequireFromString("99999999.99"), PaymentMethodPayPal, nil},
		{"сумма не помещается в колонку", "order-1", "cust-1", decimal.RequireFromString("100000000"), PaymentMethodPayPal, ErrInvalidAmount},
		{"переполнение с дробной частью", "order-1", "cust-1", decimal.RequireFromString("123456789.5"), PaymentMethodPayPal, ErrInvalidAmount},
		{"неизвестный метод", "order-1", "cust-1", decimal.NewFromInt(100), "cash", ErrInvalidPaymentMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPayment("id-1", tt.orderID, tt.customerID, tt.amount, tt.method, nil, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PaymentStatusPending, p.Status)
			assert.Equal(t, now, p.CreatedAt)
		})
	}
}

func TestNewPaymentProcessed(t *testing.T) {
	now := time.Now().UTC()
	p := newTestPayment(t)
	require.NoError(t, p.StartProcessing(now))
	require.NoError(t, p.Complete("txn_9", now))

	evt := NewPaymentProcessed(p, now)

	assert.True(t, evt.Success)
	assert.Equal(t, "txn_9", evt.TransactionID)
	assert.Equal(t, "150.5", evt.Amount.String())
}

// =============================================================================
// Helpers
// =============================================================================

func newTestPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment("payment-1", "order-1", "customer-1", decimal.RequireFromString("150.50"),
		PaymentMethodCreditCard, nil, time.Now().UTC())
	require.NoError(t, err)
	return p
}
