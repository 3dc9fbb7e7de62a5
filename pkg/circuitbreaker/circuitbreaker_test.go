package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestBreaker_PassesResult(t *testing.T) {
	b := NewWithSettings[string]("test", testSettings())

	res, err := b.Execute(context.Background(), func(context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b := NewWithSettings[int]("gateway", testSettings())
	errBoom := errors.New("gateway crashed")

	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), func(context.Context) (int, error) {
			return 0, errBoom
		})
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	called := false
	_, err := b.Execute(context.Background(), func(context.Context) (int, error) {
		called = true
		return 1, nil
	})

	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	b := NewWithSettings[int]("gateway", testSettings())

	for i := 0; i < 2; i++ {
		_, _ = b.Execute(context.Background(), func(context.Context) (int, error) {
			return 0, errors.New("fail")
		})
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(80 * time.Millisecond)

	res, err := b.Execute(context.Background(), func(context.Context) (int, error) {
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, res)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_CanceledIsNotFailure(t *testing.T) {
	b := NewWithSettings[int]("gateway", testSettings())

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), func(context.Context) (int, error) {
			return 0, context.Canceled
		})
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}
