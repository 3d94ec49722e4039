package experiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/headline-goat/variant-goat/internal/store"
)

// DayMetrics are the raw counts reported for one variant on one day. Each
// of clicks, saves and conversions is bounded by impressions.
type DayMetrics struct {
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Saves       int64           `json:"saves"`
	Conversions int64           `json:"conversions"`
	Spend       decimal.Decimal `json:"spend"`
	Revenue     decimal.Decimal `json:"revenue"`
}

func (m DayMetrics) check() error {
	switch {
	case m.Impressions < 0:
		return invalid("impressions", "must not be negative")
	case m.Clicks < 0:
		return invalid("clicks", "must not be negative")
	case m.Saves < 0:
		return invalid("saves", "must not be negative")
	case m.Conversions < 0:
		return invalid("conversions", "must not be negative")
	case m.Clicks > m.Impressions:
		return invalid("clicks", "must not exceed impressions")
	case m.Saves > m.Impressions:
		return invalid("saves", "must not exceed impressions")
	case m.Conversions > m.Impressions:
		return invalid("conversions", "must not exceed impressions")
	case m.Spend.IsNegative():
		return invalid("spend", "must not be negative")
	case m.Revenue.IsNegative():
		return invalid("revenue", "must not be negative")
	}
	return nil
}

func rate(count, impressions int64) *float64 {
	if impressions == 0 {
		return nil
	}
	r := float64(count) / float64(impressions)
	return &r
}

// RecordResult upserts one day of counts for a variant. A zero date means
// today (UTC). Submitting the same day again replaces that day's counts;
// cumulative totals are recomputed from history, never incremented.
//
// Results are accepted in any status. A completed test keeps its frozen
// summary and winner.
func (e *Engine) RecordResult(ctx context.Context, testID, variantID string, m DayMetrics, date time.Time) (_ *store.DailyResult, err error) {
	ctx, span := startSpan(ctx, "experiment.RecordResult", testID)
	defer func() { endSpan(span, err) }()

	if err := m.check(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = e.clock()
	}

	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return nil, e.storeError("get test", testID, err)
	}
	if !containsID(test.VariantIDs(), variantID) {
		return nil, &NotFoundError{Kind: "variant", ID: variantID}
	}

	result := &store.DailyResult{
		ID:             uuid.NewString(),
		TestID:         testID,
		VariantID:      variantID,
		OwnerID:        test.OwnerID,
		ResultDate:     store.Day(date),
		Impressions:    m.Impressions,
		Clicks:         m.Clicks,
		Saves:          m.Saves,
		Conversions:    m.Conversions,
		Spend:          m.Spend,
		Revenue:        m.Revenue,
		ClickRate:      rate(m.Clicks, m.Impressions),
		SaveRate:       rate(m.Saves, m.Impressions),
		ConversionRate: rate(m.Conversions, m.Impressions),
	}

	stored, err := e.store.UpsertDailyResult(ctx, result)
	if err != nil {
		return nil, e.storeError("record result", testID, err)
	}

	resultsRecordedTotal.Inc()
	e.logger.Debug("result recorded",
		slog.String("test_id", testID),
		slog.String("variant_id", variantID),
		slog.String("date", stored.ResultDate.Format(store.DateLayout)),
		slog.Int64("impressions", stored.Impressions))
	return stored, nil
}

// GetTestResults returns the test's daily results ordered by date. A
// positive limit keeps only the earliest rows.
func (e *Engine) GetTestResults(ctx context.Context, testID string, limit int) ([]*store.DailyResult, error) {
	if limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	if _, err := e.store.GetTest(ctx, testID); err != nil {
		return nil, e.storeError("get test", testID, err)
	}
	results, err := e.store.ListDailyResults(ctx, store.ResultFilter{TestID: testID, Limit: limit})
	if err != nil {
		return nil, e.storeError("list results", testID, err)
	}
	return results, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
