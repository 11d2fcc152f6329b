package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := NewPermanentError("commit", errors.New("not a repository"))

	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return permanent
	})

	if attempts != 1 {
		t.Errorf("expected 1 attempt for permanent error, got %d", attempts)
	}
	var pe *PermanentError
	if !errors.As(err, &pe) {
		t.Error("expected PermanentError to propagate")
	}
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	attempts := 0
	hash, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("index lock held")
		}
		return "abc1234", nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if hash != "abc1234" {
		t.Errorf("expected hash, got %q", hash)
	}
}

func TestRetryObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error {
		return errors.New("always failing")
	})

	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return errors.New("down")
	})

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}
