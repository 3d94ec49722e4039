package experiment

import (
	"context"
	"log/slog"

	"github.com/headline-goat/variant-goat/internal/store"
)

// DeclareWinner completes a running or paused test with the given winner
// and freezes a results summary. Later results never change it.
func (e *Engine) DeclareWinner(ctx context.Context, testID, winnerVariantID string, confidence float64) error {
	return e.declare(ctx, testID, winnerVariantID, confidence, store.DeclaredManual)
}

func (e *Engine) declare(ctx context.Context, testID, winnerVariantID string, confidence float64, by store.DeclaredBy) (err error) {
	ctx, span := startSpan(ctx, "experiment.DeclareWinner", testID)
	defer func() { endSpan(span, err) }()

	if confidence < 0 || confidence > 1 {
		return invalid("confidence", "must be between 0 and 1")
	}

	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return e.storeError("get test", testID, err)
	}
	if test.Status != store.StatusRunning && test.Status != store.StatusPaused {
		conflictsTotal.WithLabelValues("declare winner").Inc()
		return &ConflictError{TestID: testID, Op: "declare winner", Status: test.Status}
	}
	if !containsID(test.VariantIDs(), winnerVariantID) {
		return &NotFoundError{Kind: "variant", ID: winnerVariantID}
	}

	summary, err := e.buildSummary(ctx, test, winnerVariantID, confidence, by)
	if err != nil {
		return err
	}

	err = e.store.TransitionTest(ctx, testID, store.Transition{
		From:    []store.TestStatus{store.StatusRunning, store.StatusPaused},
		To:      store.StatusCompleted,
		EndedAt: &summary.DeclaredAt,
		Winner: &store.WinnerDeclaration{
			VariantID:  winnerVariantID,
			Confidence: confidence,
			DeclaredAt: summary.DeclaredAt,
			Summary:    summary,
		},
	})
	if err != nil {
		transitionsTotal.WithLabelValues("declare winner", "rejected").Inc()
		return e.storeError("declare winner", testID, err)
	}

	transitionsTotal.WithLabelValues("declare winner", "ok").Inc()
	e.logger.Info("winner declared",
		slog.String("test_id", testID),
		slog.String("variant_id", winnerVariantID),
		slog.Float64("confidence", confidence),
		slog.String("declared_by", string(by)))
	return nil
}

// buildSummary aggregates the test's results as of now. The verdict is
// compared against the winner when it is a test variant, and is omitted
// when no results were ever recorded.
func (e *Engine) buildSummary(ctx context.Context, test *store.Test, winnerVariantID string, confidence float64, by store.DeclaredBy) (*store.ResultsSummary, error) {
	variants, err := e.listVariants(ctx, test)
	if err != nil {
		return nil, err
	}
	results, err := e.store.ListDailyResults(ctx, store.ResultFilter{TestID: test.ID})
	if err != nil {
		return nil, e.storeError("list results", test.ID, err)
	}

	summary := &store.ResultsSummary{
		Version:       store.ResultsSummaryVersion,
		DeclaredBy:    by,
		DeclaredAt:    e.clock(),
		Confidence:    confidence,
		PrimaryMetric: test.PrimaryMetric,
		Variants:      Aggregate(variants, results),
	}
	if len(results) == 0 {
		return summary, nil
	}

	compareWith := ""
	if winnerVariantID != test.ControlVariantID {
		compareWith = winnerVariantID
	}
	verdict, err := Evaluate(test, variants, results, compareWith)
	if err != nil {
		verdict, err = Evaluate(test, variants, results, "")
		if err != nil {
			return nil, err
		}
	}
	summary.Verdict = verdict.Snapshot()
	return summary, nil
}
