package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = &StatusError{Provider: "avm", StatusCode: http.StatusServiceUnavailable}

func failing(_ context.Context) error { return errUpstream }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker("avm", BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	for range 3 {
		require.ErrorIs(t, b.Call(context.Background(), failing), errUpstream)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := NewBreaker("parcel", BreakerConfig{Threshold: 2})
	notFound := &StatusError{Provider: "parcel", StatusCode: http.StatusNotFound}
	for range 5 {
		_ = b.Call(context.Background(), func(_ context.Context) error { return notFound })
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker("tax", BreakerConfig{Threshold: 3})
	_ = b.Call(context.Background(), failing)
	_ = b.Call(context.Background(), failing)
	assert.Equal(t, 2, b.Failures())

	require.NoError(t, b.Call(context.Background(), func(_ context.Context) error { return nil }))
	assert.Zero(t, b.Failures())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var transitions []string
	b := NewBreaker("flood", BreakerConfig{
		Threshold: 1,
		Cooldown:  10 * time.Second,
		OnChange: func(provider string, from, to BreakerState) {
			transitions = append(transitions, provider+":"+from.String()+"->"+to.String())
		},
	})
	b.now = func() time.Time { return now }

	_ = b.Call(context.Background(), failing)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Call(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{
		"flood:closed->open",
		"flood:open->half-open",
		"flood:half-open->closed",
	}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := NewBreaker("liens", BreakerConfig{Threshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	_ = b.Call(context.Background(), failing)
	now = now.Add(2 * time.Second)

	_ = b.Call(context.Background(), failing)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Call(context.Background(), failing), ErrCircuitOpen)
}

func TestCallVal(t *testing.T) {
	t.Parallel()

	b := NewBreaker("schools", DefaultBreakerConfig())
	v, err := CallVal(context.Background(), b, func(_ context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = CallVal(context.Background(), b, func(_ context.Context) (int, error) { return 0, errors.New("boom") })
	assert.EqualError(t, err, "boom")
}

func TestBreakers_ForReturnsSameInstance(t *testing.T) {
	t.Parallel()

	bs := NewBreakers(DefaultBreakerConfig())

	var wg sync.WaitGroup
	got := make([]*Breaker, 10)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = bs.For("permits")
		}()
	}
	wg.Wait()

	for _, b := range got {
		assert.Same(t, got[0], b)
	}
	assert.Equal(t, map[string]BreakerState{"permits": StateClosed}, bs.States())
	assert.NotSame(t, got[0], bs.For("noise"))
}
