package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCircuitBreakerCycle exercises a full open/half-open/close cycle
// with F=3, S=2, T=100ms.
func TestCircuitBreakerCycle(t *testing.T) {
	cb := New("conn-1", Config{FailureThreshold: 3, SuccessThreshold: 2, RecoveryTimeout: 100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		require.True(t, cb.CanAttemptConnection())
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttemptConnection())

	time.Sleep(150 * time.Millisecond)
	assert.True(t, cb.CanAttemptConnection())
	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())

	require.True(t, cb.CanAttemptConnection())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.FailureCount())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New("conn-2", Config{FailureThreshold: 2, SuccessThreshold: 2, RecoveryTimeout: 50 * time.Millisecond})

	cb.CanAttemptConnection()
	cb.RecordFailure()
	cb.CanAttemptConnection()
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(80 * time.Millisecond)
	require.True(t, cb.CanAttemptConnection())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewDefault("conn-3")
	for i := 0; i < 5; i++ {
		cb.CanAttemptConnection()
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, cb.State())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanAttemptConnection())
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	cb := New("conn-4", Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Millisecond})
	var transitions []string
	cb.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	cb.CanAttemptConnection()
	cb.RecordFailure()
	assert.Contains(t, transitions, "CLOSED->OPEN")
}
