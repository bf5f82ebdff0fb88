package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func quick(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_RetriesMarkedErrorsUntilSuccess(t *testing.T) {
	calls := 0
	err := quick(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedReturnsUnmarkedCause(t *testing.T) {
	calls := 0
	err := quick(2).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 2, calls)
}

func TestDo_UnmarkedAndPermanentErrorsStop(t *testing.T) {
	calls := 0
	err := quick(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)

	calls = 0
	p := quick(5)
	p.RetryIf = func(error) bool { return true }
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestStorePolicy_RetriesSelectedErrors(t *testing.T) {
	p := StorePolicy(func(err error) bool { return errors.Is(err, errFlaky) })
	p.BaseDelay = time.Millisecond

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := quick(3).Do(ctx, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	})
	assert.Same(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 30 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.backoff(2))
	assert.Equal(t, 30*time.Millisecond, p.backoff(5))

	j := EnrichmentPolicy()
	for range 20 {
		d := j.backoff(1)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
	}
}
