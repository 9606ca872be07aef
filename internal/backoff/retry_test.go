package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/latticeflow/dflow/internal/backoff"
)

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := backoff.Config{MaxWait: 5 * time.Millisecond, Report: func(error) error { return nil }}.
		Retry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryAbortsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	err := backoff.Config{Report: func(e error) error { return permanent }}.
		Retry(context.Background(), func() error {
			attempts++
			return errors.New("transient")
		})
	if err != permanent {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before abort, got %d", attempts)
	}
}

func TestRetryRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := backoff.Retry(ctx, func() error { return errors.New("x") })
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
