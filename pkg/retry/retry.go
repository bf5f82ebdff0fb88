// Package retry re-runs short operations with doubling, jittered backoff.
// Store units of work retry on serialization conflicts; the persona
// enrichment call retries once on transient upstream errors.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt under a policy without RetryIf.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Permanent marks err as final, whatever the policy says.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy describes how an operation is retried. The zero value runs once.
type Policy struct {
	// Attempts includes the first call.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter spreads each delay by +/- that fraction.
	Jitter float64

	// RetryIf selects retryable errors. Nil retries errors marked Retryable.
	RetryIf func(error) bool
}

// StorePolicy retries a unit of work that lost a race with another writer.
func StorePolicy(retryIf func(error) bool) Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  time.Second,
		Jitter:    0.05,
		RetryIf:   retryIf,
	}
}

// EnrichmentPolicy gives the generative backend one more chance.
func EnrichmentPolicy() Policy {
	return Policy{
		Attempts:  2,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  time.Second,
		Jitter:    0.2,
	}
}

// Do calls op until it succeeds, fails with an error the policy does not
// retry, runs out of attempts, or ctx ends. Marker wrappers are removed from
// the returned error; a cancelled wait returns the last operation error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = unmark(err)

		if !p.retries(err) || attempt >= attempts {
			return last
		}

		t := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
}

func (p Policy) retries(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	var re *retryableError
	return errors.As(err, &re)
}

// backoff is BaseDelay doubled per completed attempt, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && (p.MaxDelay <= 0 || d < p.MaxDelay); i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

func unmark(err error) error {
	switch e := err.(type) {
	case *retryableError:
		return e.err
	case *permanentError:
		return e.err
	}
	return err
}
