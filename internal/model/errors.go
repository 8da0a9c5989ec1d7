package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Request path errors, surfaced directly as HTTP responses.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")

	// External service failures.
	ErrFetch      = errors.New("fetch failed")
	ErrParse      = errors.New("parse failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrIndex      = errors.New("vector index failed")
	ErrGeneration = errors.New("generation failed")

	// ErrEmptyAnswer is returned when the generation service answered with
	// no usable text. It is kept apart from ErrGeneration so callers can tell
	// a degraded answer from a transport failure.
	ErrEmptyAnswer = errors.New("empty answer")

	ErrQuotaExceeded = errors.New("plan quota exceeded")

	// ErrTimeout marks the retryable failure class.
	ErrTimeout = errors.New("timeout")

	// ErrStatusFinal is returned when a status write targets a file that
	// already reached SUCCESS or FAILED.
	ErrStatusFinal = errors.New("file status is final")

	ErrDuplicateUpload = errors.New("duplicate upload")

	// ErrNotReady is returned when a chat targets a file whose ingestion
	// has not finished successfully.
	ErrNotReady = errors.New("file is not ready")
)

// Retryable reports whether err belongs to the retryable failure class.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// WrapService tags err with the service class. A context deadline is also
// tagged as ErrTimeout so it stays retryable.
func WrapService(class error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %w", op, class, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, class, err)
}
