package experiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/headline-goat/variant-goat/internal/store"
)

// StartTest moves a draft test to running and stamps started_at.
func (e *Engine) StartTest(ctx context.Context, testID string) error {
	now := e.clock()
	return e.transition(ctx, "start", testID, store.Transition{
		From:      []store.TestStatus{store.StatusDraft},
		To:        store.StatusRunning,
		StartedAt: &now,
	})
}

func (e *Engine) PauseTest(ctx context.Context, testID string) error {
	return e.transition(ctx, "pause", testID, store.Transition{
		From: []store.TestStatus{store.StatusRunning},
		To:   store.StatusPaused,
	})
}

func (e *Engine) ResumeTest(ctx context.Context, testID string) error {
	return e.transition(ctx, "resume", testID, store.Transition{
		From: []store.TestStatus{store.StatusPaused},
		To:   store.StatusRunning,
	})
}

// CancelTest ends a test that has not completed. Cancellation is a status
// flip with a timestamp; nothing else is awaited.
func (e *Engine) CancelTest(ctx context.Context, testID string) error {
	now := e.clock()
	return e.transition(ctx, "cancel", testID, store.Transition{
		From:    []store.TestStatus{store.StatusDraft, store.StatusRunning, store.StatusPaused},
		To:      store.StatusCancelled,
		EndedAt: &now,
	})
}

// transition applies a status-guarded update. Losing a race, or calling
// from the wrong state, yields a *ConflictError and is never retried.
func (e *Engine) transition(ctx context.Context, op, testID string, tr store.Transition) (err error) {
	ctx, span := startSpan(ctx, "experiment."+op, testID)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	if err := e.store.TransitionTest(ctx, testID, tr); err != nil {
		transitionsTotal.WithLabelValues(op, "rejected").Inc()
		return e.storeError(op, testID, err)
	}

	transitionsTotal.WithLabelValues(op, "ok").Inc()
	e.logger.Info("test transitioned",
		slog.String("test_id", testID),
		slog.String("op", op),
		slog.String("status", string(tr.To)),
		slog.Duration("took", time.Since(start)))
	return nil
}
