package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that trips after 2 failures
	cb := NewCircuitBreaker("embed", WithMaxFailures(2))
	boom := errors.New("boom")

	// When: two calls fail
	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })

	// Then: the next call fails fast without running fn
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ProbeAfterTimeout(t *testing.T) {
	// Given: an open breaker
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("embed", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.now))
	_ = cb.Execute(func() error { return errors.New("down") })
	assert.Equal(t, StateOpen, cb.State())

	// When: the reset timeout passes
	clock.t = clock.t.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful probe closes the circuit
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("embed", WithMaxFailures(3), WithResetTimeout(time.Second), WithClock(clock.now))
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("down") })
	}

	clock.t = clock.t.Add(2 * time.Second)
	err := cb.Execute(func() error { return errors.New("still down") })

	assert.EqualError(t, err, "still down")
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("embed", WithMaxFailures(2))

	_ = cb.Execute(func() error { return errors.New("once") })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("twice") })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "embed", cb.Name())
}
