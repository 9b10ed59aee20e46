package retry

import (
	"context"
	"errors"
	"testing"

	"pharmatrace/internal/apperr"
)

func TestConflictRetryStrategy_Success(t *testing.T) {
	strategy := NewConflictRetryStrategy(3)

	err := strategy.Execute(context.Background(), func() error {
		return nil // Success on first try
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestConflictRetryStrategy_SuccessAfterConflicts(t *testing.T) {
	strategy := NewConflictRetryStrategy(5)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &apperr.DuplicateKeyError{Field: "patient_id", Value: "PT-1001"}
		}
		return nil // Fresh candidate landed on 3rd attempt
	})

	if err != nil {
		t.Errorf("Expected no error after retries, got: %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestConflictRetryStrategy_NonConflictError(t *testing.T) {
	strategy := NewConflictRetryStrategy(5)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		return errors.New("connection refused") // Not a uniqueness conflict
	})

	if err == nil {
		t.Error("Expected error for non-conflict failure")
	}

	if attempts != 1 {
		t.Errorf("Expected only 1 attempt for non-conflict error, got: %d", attempts)
	}
}

func TestConflictRetryStrategy_AttemptsExhausted(t *testing.T) {
	strategy := NewConflictRetryStrategy(3)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		return &apperr.DuplicateKeyError{Field: "organization_id", Value: "ORG-1"}
	})

	if err == nil {
		t.Error("Expected error after exhausting attempts")
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}

	var dup *apperr.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Errorf("Expected wrapped DuplicateKeyError, got: %v", err)
	}
}

func TestConflictRetryStrategy_ContextCancelled(t *testing.T) {
	strategy := NewConflictRetryStrategy(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := strategy.Execute(ctx, func() error {
		t.Error("Operation should not run with cancelled context")
		return nil
	})

	if err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestNoRetryStrategy_SingleAttempt(t *testing.T) {
	strategy := NewNoRetryStrategy()

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		return &apperr.DuplicateKeyError{Field: "patient_id", Value: "PT-1"}
	})

	if err == nil {
		t.Error("Expected the conflict to surface unchanged")
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got: %d", attempts)
	}
}
