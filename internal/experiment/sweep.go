package experiment

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/variant-goat/internal/store"
)

type SweepOptions struct {
	// Concurrency bounds how many tests are evaluated at once.
	Concurrency int
	// AutoDeclare completes tests whose verdict is ready to declare.
	AutoDeclare bool
	OwnerID     string
}

type SweepOutcome struct {
	TestID   string              `json:"test_id"`
	Name     string              `json:"name"`
	Result   *SignificanceResult `json:"result,omitempty"`
	Declared bool                `json:"declared"`
	Overdue  bool                `json:"overdue"`
	Error    string              `json:"error,omitempty"`
}

type SweepReport struct {
	Evaluated int            `json:"evaluated"`
	Declared  int            `json:"declared"`
	Overdue   int            `json:"overdue"`
	Failed    int            `json:"failed"`
	Outcomes  []SweepOutcome `json:"outcomes"`
}

// Sweep re-evaluates every running test. A failure on one test is
// reported in its outcome and never stops the others. Running tests past
// their scheduled end are flagged overdue but left running.
func (e *Engine) Sweep(ctx context.Context, opts SweepOptions) (_ *SweepReport, err error) {
	ctx, span := startSpan(ctx, "experiment.Sweep", "")
	defer func() { endSpan(span, err) }()

	tests, err := e.GetTests(ctx, store.TestFilter{Status: store.StatusRunning, OwnerID: opts.OwnerID})
	if err != nil {
		return nil, err
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}
	now := e.clock()
	outcomes := make([]SweepOutcome, len(tests))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, test := range tests {
		outcomes[i] = SweepOutcome{
			TestID:  test.ID,
			Name:    test.Name,
			Overdue: test.ScheduledEndAt != nil && now.After(*test.ScheduledEndAt),
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i].Error = ctx.Err().Error()
				return nil
			}
			e.sweepOne(ctx, &outcomes[i], opts.AutoDeclare)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &SweepReport{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Result != nil {
			report.Evaluated++
		}
		if o.Declared {
			report.Declared++
		}
		if o.Overdue {
			report.Overdue++
		}
		if o.Error != "" {
			report.Failed++
		}
	}

	e.logger.Info("sweep finished",
		slog.Int("tests", len(tests)),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("declared", report.Declared),
		slog.Int("overdue", report.Overdue),
		slog.Int("failed", report.Failed))
	return report, nil
}

func (e *Engine) sweepOne(ctx context.Context, out *SweepOutcome, autoDeclare bool) {
	result, err := e.CalculateSignificance(ctx, out.TestID)
	if err != nil {
		out.Error = err.Error()
		return
	}
	out.Result = result

	if !autoDeclare || !result.ReadyToDeclare || result.WinnerVariantID == "" {
		return
	}

	err = e.declare(ctx, out.TestID, result.WinnerVariantID, result.Confidence, store.DeclaredAutomatic)
	var conflict *ConflictError
	switch {
	case err == nil:
		out.Declared = true
		sweepDeclaredTotal.Inc()
	case errors.As(err, &conflict):
		// Paused, completed or cancelled since the listing; nothing to do.
	default:
		out.Error = err.Error()
	}
}
