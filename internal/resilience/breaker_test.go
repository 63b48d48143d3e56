package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoSuchOrg = errors.New("no such organization")

func fail(_ context.Context) (int, error) { return 0, errors.New("upstream 503") }

func ok(_ context.Context) (int, error) { return 1, nil }

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{
		Name:             "propublica",
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, errNoSuchOrg) },
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	v, err := Call(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for range 3 {
		_, _ = Call(context.Background(), b, fail)
	}
	assert.Equal(t, Open, b.State())

	called := false
	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	for range 5 {
		_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 0, errNoSuchOrg })
		assert.ErrorIs(t, err, errNoSuchOrg)
	}
	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Failures())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, fail)
	assert.Equal(t, 2, b.Failures())

	_, _ = Call(context.Background(), b, ok)
	assert.Zero(t, b.Failures())
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)

	_, _ = Call(context.Background(), b, fail)
	require.Equal(t, Open, b.State())

	*now = now.Add(31 * time.Second)
	assert.Equal(t, HalfOpen, b.State())

	_, err := Call(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, 30*time.Second)

	_, _ = Call(context.Background(), b, fail)
	*now = now.Add(31 * time.Second)

	_, err := Call(context.Background(), b, fail)
	require.Error(t, err)
	assert.Equal(t, Open, b.State())

	_, err = Call(context.Background(), b, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		Name:             "irs_990",
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_, _ = Call(context.Background(), b, fail)
	assert.Equal(t, []string{"irs_990:closed->open"}, transitions)
}

func TestNewBreakerConfig(t *testing.T) {
	cfg := NewBreakerConfig("irs_bmf", 0, 0)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)

	cfg = NewBreakerConfig("irs_bmf", 2, 10)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.ResetTimeout)
	assert.Equal(t, "irs_bmf", cfg.Name)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
