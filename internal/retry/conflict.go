package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pharmatrace/internal/apperr"
)

// ConflictRetryStrategy retries an insert that lost a uniqueness race.
// It backs the "propose candidate, attempt insert, on conflict retry with a
// new suffix" pattern: the operation itself must propose a fresh candidate on
// each attempt, so no delay between attempts is needed. Any error other than
// a duplicate-key violation fails immediately.
type ConflictRetryStrategy struct {
	maxAttempts int
}

// NewConflictRetryStrategy creates a ConflictRetryStrategy with the given
// attempt budget
func NewConflictRetryStrategy(maxAttempts int) *ConflictRetryStrategy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ConflictRetryStrategy{maxAttempts: maxAttempts}
}

// Execute runs the operation until it succeeds, hits a non-conflict error,
// or exhausts the attempt budget
func (s *ConflictRetryStrategy) Execute(ctx context.Context, operation Operation) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled during retry: %w", err)
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				slog.Info("Insert succeeded after conflict retry",
					"attempt", attempt,
					"max_attempts", s.maxAttempts)
			}
			return nil
		}

		var dup *apperr.DuplicateKeyError
		if !errors.As(err, &dup) {
			return err
		}
		lastErr = err

		slog.Debug("Candidate lost uniqueness race, retrying with new candidate",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"field", dup.Field)
	}

	return fmt.Errorf("insert failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// Name returns the strategy name
func (s *ConflictRetryStrategy) Name() string {
	return "ConflictRetry"
}
