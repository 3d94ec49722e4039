package experiment

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/headline-goat/variant-goat/internal/store"
)

// ValidationError reports malformed input. It is always returned before
// anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConflictError reports a lifecycle operation attempted from a state that
// does not allow it, including losing a race to another caller.
type ConflictError struct {
	TestID string
	Op     string
	Status store.TestStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s test %s: status is %s", e.Op, e.TestID, e.Status)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PersistenceError wraps a store failure. Its message never includes the
// underlying error so it can be shown to API callers as is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s", e.Op)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// storeError maps a store failure on a test to the engine's typed errors.
func (e *Engine) storeError(op, testID string, err error) error {
	var conflict *store.StatusConflict
	switch {
	case errors.As(err, &conflict):
		conflictsTotal.WithLabelValues(op).Inc()
		e.logger.Warn("lifecycle conflict",
			slog.String("test_id", testID),
			slog.String("op", op),
			slog.String("status", string(conflict.Current)))
		return &ConflictError{TestID: testID, Op: op, Status: conflict.Current}
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Kind: "test", ID: testID}
	default:
		e.logger.Error("store failure",
			slog.String("test_id", testID),
			slog.String("op", op),
			slog.String("error", err.Error()))
		return &PersistenceError{Op: op, Err: err}
	}
}
