// Package backoff converts transient send errors into randomized
// exponential delays, so that best-effort alias-protocol deliveries
// (§4.J, §7 MessageLost) and remote declares keep retrying instead of
// giving up on the first transient failure, without ever blocking
// forever: the caller controls the deadline via ctx.
package backoff

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// Retry calls try repeatedly until it returns a nil error, using the
// default exponential backoff configuration.
func Retry(ctx context.Context, try func() error) error {
	return Config{}.Retry(ctx, try)
}

// Config parameterizes Retry. Report, if set, is called with each
// error try returns; a non-nil return from Report aborts the retry
// loop with that error. If nil, errors are reported via log.Println.
type Config struct {
	Report  func(error) error
	MaxWait time.Duration
}

func defaultReport(err error) error {
	log.Println(err.Error())
	return nil
}

// grow computes the next wait duration given the previous one and how
// long the last attempt itself took: the attempt's own cost becomes a
// floor under the backoff (retrying faster than the work being
// retried takes is pointless), jitter is layered on top, and MaxWait
// clamps the result if set.
func (c Config) grow(prev, elapsed time.Duration) time.Duration {
	if prev < elapsed {
		prev = elapsed
	}
	next := prev + time.Duration(rand.Int63n(int64(prev)+1))
	if c.MaxWait > 0 && next > c.MaxWait {
		next = c.MaxWait
	}
	return next
}

// Retry calls try repeatedly, backing off between attempts, until it
// succeeds, Report returns a non-nil error, or ctx is done.
func (c Config) Retry(ctx context.Context, try func() error) error {
	if c.Report == nil {
		c.Report = defaultReport
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	wait := time.Duration(1)
	for {
		start := time.Now()
		attemptErr := try()
		if attemptErr == nil {
			return nil
		}
		if reportErr := c.Report(attemptErr); reportErr != nil {
			return reportErr
		}

		wait = c.grow(wait, time.Since(start))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
