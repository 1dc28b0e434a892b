package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")

	for i := 0; i < 5; i++ {
		err := cb.Execute(failing)
		assert.ErrorIs(t, err, errBoom)
	}

	err := cb.Execute(succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.state)
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(failing)
	}
	require.NoError(t, cb.Execute(succeeding))

	// The failure streak restarted, so four more failures stay closed.
	for i := 0; i < 4; i++ {
		err := cb.Execute(failing)
		assert.ErrorIs(t, err, errBoom)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.cooldown = 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		_ = cb.Execute(failing)
	}
	require.ErrorIs(t, cb.Execute(succeeding), ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)

	// First probe after cooldown goes through and closes the breaker.
	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateClosed, cb.state)
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.cooldown = 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		_ = cb.Execute(failing)
	}
	time.Sleep(15 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(failing), errBoom)
	assert.Equal(t, StateOpen, cb.state)
	assert.ErrorIs(t, cb.Execute(succeeding), ErrCircuitOpen)
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(3)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Regexp(t, "^[0-9A-F]+$", code)

	other, err := GenerateCode(3)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}
