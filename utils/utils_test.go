package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Circuit Breaker Tests

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker("test")
	cb.failureThreshold = 3
	cb.timeout = time.Minute
	cb.now = func() time.Time { return *now }
	return cb
}

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Equal(t, "test", cb.name)
	assert.Equal(t, uint32(5), cb.failureThreshold)
	assert.Equal(t, 30*time.Second, cb.timeout)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	err := cb.Execute(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")

	expectedError := errors.New("test error")
	err := cb.Execute(func() error { return expectedError })

	assert.Equal(t, expectedError, err)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("failure") })
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)

	_ = cb.Execute(func() error { return errors.New("failure") })
	_ = cb.Execute(func() error { return errors.New("failure") })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("failure") })

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("failure") })
	}
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("failure") })
	}
	now = now.Add(2 * time.Minute)

	_ = cb.Execute(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

// Random code tests

func TestRandomAlphanumeric(t *testing.T) {
	code, err := RandomAlphanumeric(32)
	require.NoError(t, err)
	assert.Len(t, code, 32)
	for _, r := range code {
		assert.Contains(t, alphanumeric, string(r))
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	expectedError := errors.New("connection failed")
	mock.ExpectPing().SetErr(expectedError)

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func BenchmarkRandomAlphanumeric(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RandomAlphanumeric(10)
	}
}
