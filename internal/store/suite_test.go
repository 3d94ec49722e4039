package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/store"
)

// fixture is a draft test with one control and one test variant.
type fixture struct {
	test    *store.Test
	control *store.Variant
	variant *store.Variant
}

func newFixture(owner string) fixture {
	testID := uuid.NewString()
	control := &store.Variant{
		ID: uuid.NewString(), OwnerID: owner, TestID: testID, Name: "Control",
		IsControl: true, ContentType: "pin", ContentID: "pin-1",
		Config:            store.VariantConfig{Version: 1, Copy: &store.CopyConfig{Title: "Cozy fall looks"}},
		TrafficPercentage: 50,
	}
	variant := &store.Variant{
		ID: uuid.NewString(), OwnerID: owner, TestID: testID, Name: "Variant B",
		ContentType: "pin", ContentID: "pin-2",
		Config:            store.VariantConfig{Version: 1, Copy: &store.CopyConfig{Title: "10 fall outfits"}},
		TrafficPercentage: 50,
	}
	test := &store.Test{
		ID: testID, OwnerID: owner, Name: "fall titles", Hypothesis: "numbers win",
		TestType: store.TestTypeHeadline, PrimaryMetric: store.MetricClickRate,
		ConfidenceThreshold: 0.95, MinimumSampleSize: 1000, Status: store.StatusDraft,
		ControlVariantID: control.ID, TestVariantIDs: []string{variant.ID}, TrafficSplit: []int{50, 50},
	}
	return fixture{test: test, control: control, variant: variant}
}

func insertFixture(t *testing.T, s store.Store, owner string) fixture {
	t.Helper()
	f := newFixture(owner)
	ctx := context.Background()
	require.NoError(t, s.InsertTest(ctx, f.test))
	require.NoError(t, s.InsertVariants(ctx, []*store.Variant{f.control, f.variant}))
	return f
}

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func result(f fixture, v *store.Variant, date time.Time, impressions, conversions int64) *store.DailyResult {
	return &store.DailyResult{
		ID: uuid.NewString(), TestID: f.test.ID, VariantID: v.ID, OwnerID: f.test.OwnerID,
		ResultDate: date, Impressions: impressions, Clicks: impressions / 20, Conversions: conversions,
		Spend: decimal.RequireFromString("12.34"),
	}
}

// runStoreSuite exercises every Store method against a fresh store.
func runStoreSuite(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("InsertAndGetTest", func(t *testing.T) {
		s := open(t)
		f := insertFixture(t, s, "owner-1")

		got, err := s.GetTest(context.Background(), f.test.ID)
		require.NoError(t, err)

		assert.Equal(t, f.test.Name, got.Name)
		assert.Equal(t, store.StatusDraft, got.Status)
		assert.Equal(t, store.TestTypeHeadline, got.TestType)
		assert.Equal(t, store.MetricClickRate, got.PrimaryMetric)
		assert.Equal(t, f.control.ID, got.ControlVariantID)
		assert.Equal(t, []string{f.variant.ID}, got.TestVariantIDs)
		assert.Equal(t, []int{50, 50}, got.TrafficSplit)
		assert.Equal(t, int64(1000), got.MinimumSampleSize)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.WinnerVariantID)
		assert.Nil(t, got.ResultsSummary)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("GetTestNotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.GetTest(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ListVariantsControlFirst", func(t *testing.T) {
		s := open(t)
		f := insertFixture(t, s, "owner-1")

		variants, err := s.ListVariants(context.Background(), f.test.ID)
		require.NoError(t, err)
		require.Len(t, variants, 2)

		assert.True(t, variants[0].IsControl)
		assert.Equal(t, f.control.ID, variants[0].ID)
		assert.False(t, variants[1].IsControl)
		require.NotNil(t, variants[1].Config.Copy)
		assert.Equal(t, "10 fall outfits", variants[1].Config.Copy.Title)
	})

	t.Run("SecondControlRejected", func(t *testing.T) {
		s := open(t)
		f := insertFixture(t, s, "owner-1")

		extra := &store.Variant{
			ID: uuid.NewString(), TestID: f.test.ID, Name: "Another control", IsControl: true,
			Config: store.VariantConfig{Version: 1},
		}
		assert.Error(t, s.InsertVariants(context.Background(), []*store.Variant{extra}))
	})

	t.Run("InsertVariantsIsAllOrNothing", func(t *testing.T) {
		s := open(t)
		f := newFixture("owner-1")
		ctx := context.Background()
		require.NoError(t, s.InsertTest(ctx, f.test))

		dup := *f.variant
		err := s.InsertVariants(ctx, []*store.Variant{f.control, f.variant, &dup})
		require.Error(t, err)

		variants, err := s.ListVariants(ctx, f.test.ID)
		require.NoError(t, err)
		assert.Empty(t, variants)
	})

	t.Run("ListTestsFilters", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		a := insertFixture(t, s, "owner-a")
		insertFixture(t, s, "owner-a")
		insertFixture(t, s, "owner-b")

		require.NoError(t, s.TransitionTest(ctx, a.test.ID, store.Transition{
			From: []store.TestStatus{store.StatusDraft}, To: store.StatusRunning,
		}))

		all, err := s.ListTests(ctx, store.TestFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		owned, err := s.ListTests(ctx, store.TestFilter{OwnerID: "owner-a"})
		require.NoError(t, err)
		assert.Len(t, owned, 2)

		running, err := s.ListTests(ctx, store.TestFilter{Status: store.StatusRunning})
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, a.test.ID, running[0].ID)
	})

	t.Run("TransitionIsCompareAndSwap", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")
		now := time.Now().UTC()

		start := store.Transition{From: []store.TestStatus{store.StatusDraft}, To: store.StatusRunning, StartedAt: &now}
		require.NoError(t, s.TransitionTest(ctx, f.test.ID, start))

		err := s.TransitionTest(ctx, f.test.ID, start)
		require.ErrorIs(t, err, store.ErrConflict)
		var conflict *store.StatusConflict
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, store.StatusRunning, conflict.Current)

		err = s.TransitionTest(ctx, uuid.NewString(), start)
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.GetTest(ctx, f.test.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusRunning, got.Status)
		require.NotNil(t, got.StartedAt)
		assert.Equal(t, now.UnixMilli(), got.StartedAt.UnixMilli())
	})

	t.Run("ConcurrentTransitionsHaveOneWinner", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")

		const callers = 8
		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.TransitionTest(ctx, f.test.ID, store.Transition{
					From: []store.TestStatus{store.StatusDraft}, To: store.StatusRunning,
				})
			}(i)
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, callers-1, conflicts)
	})

	t.Run("WinnerTransitionFreezesSummary", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")
		require.NoError(t, s.TransitionTest(ctx, f.test.ID, store.Transition{
			From: []store.TestStatus{store.StatusDraft}, To: store.StatusRunning,
		}))

		declared := time.Now().UTC()
		summary := &store.ResultsSummary{
			Version: store.ResultsSummaryVersion, DeclaredBy: store.DeclaredManual, DeclaredAt: declared,
			Confidence: 0.97, PrimaryMetric: store.MetricClickRate,
			Variants: []store.VariantAggregate{
				{VariantID: f.control.ID, IsControl: true, Impressions: 1000, Clicks: 50, Spend: decimal.NewFromInt(10)},
				{VariantID: f.variant.ID, Impressions: 1000, Clicks: 80, Spend: decimal.NewFromInt(11)},
			},
		}
		require.NoError(t, s.TransitionTest(ctx, f.test.ID, store.Transition{
			From:    []store.TestStatus{store.StatusRunning, store.StatusPaused},
			To:      store.StatusCompleted,
			EndedAt: &declared,
			Winner:  &store.WinnerDeclaration{VariantID: f.variant.ID, Confidence: 0.97, DeclaredAt: declared, Summary: summary},
		}))

		got, err := s.GetTest(ctx, f.test.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusCompleted, got.Status)
		require.NotNil(t, got.WinnerVariantID)
		assert.Equal(t, f.variant.ID, *got.WinnerVariantID)
		require.NotNil(t, got.WinnerConfidence)
		assert.InDelta(t, 0.97, *got.WinnerConfidence, 1e-12)
		require.NotNil(t, got.ResultsSummary)
		assert.Equal(t, store.DeclaredManual, got.ResultsSummary.DeclaredBy)
		require.Len(t, got.ResultsSummary.Variants, 2)
		assert.Equal(t, int64(80), got.ResultsSummary.Variants[1].Clicks)
		assert.True(t, decimal.NewFromInt(11).Equal(got.ResultsSummary.Variants[1].Spend))
	})

	t.Run("DeleteOnlyDraft", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		draft := insertFixture(t, s, "owner-1")
		running := insertFixture(t, s, "owner-1")
		require.NoError(t, s.TransitionTest(ctx, running.test.ID, store.Transition{
			From: []store.TestStatus{store.StatusDraft}, To: store.StatusRunning,
		}))

		_, err := s.UpsertDailyResult(ctx, result(draft, draft.control, day(0), 100, 1))
		require.NoError(t, err)

		require.NoError(t, s.DeleteDraftTest(ctx, draft.test.ID))
		_, err = s.GetTest(ctx, draft.test.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		variants, err := s.ListVariants(ctx, draft.test.ID)
		require.NoError(t, err)
		assert.Empty(t, variants)
		results, err := s.ListDailyResults(ctx, store.ResultFilter{TestID: draft.test.ID})
		require.NoError(t, err)
		assert.Empty(t, results)

		assert.ErrorIs(t, s.DeleteDraftTest(ctx, running.test.ID), store.ErrConflict)
		assert.ErrorIs(t, s.DeleteDraftTest(ctx, uuid.NewString()), store.ErrNotFound)
	})

	t.Run("UpsertComputesCumulativeTotals", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")

		r1, err := s.UpsertDailyResult(ctx, result(f, f.control, day(0), 100, 5))
		require.NoError(t, err)
		assert.Equal(t, int64(100), r1.CumulativeImpressions)
		assert.Equal(t, int64(5), r1.CumulativeConversions)

		r2, err := s.UpsertDailyResult(ctx, result(f, f.control, day(1), 200, 10))
		require.NoError(t, err)
		assert.Equal(t, int64(300), r2.CumulativeImpressions)
		assert.Equal(t, int64(15), r2.CumulativeConversions)

		// Other variants never contribute.
		other, err := s.UpsertDailyResult(ctx, result(f, f.variant, day(1), 50, 1))
		require.NoError(t, err)
		assert.Equal(t, int64(50), other.CumulativeImpressions)
	})

	t.Run("ResubmissionDoesNotDoubleCount", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")

		_, err := s.UpsertDailyResult(ctx, result(f, f.control, day(0), 100, 5))
		require.NoError(t, err)
		first, err := s.UpsertDailyResult(ctx, result(f, f.control, day(1), 200, 10))
		require.NoError(t, err)

		again, err := s.UpsertDailyResult(ctx, result(f, f.control, day(1), 200, 10))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, int64(300), again.CumulativeImpressions)
		assert.Equal(t, int64(15), again.CumulativeConversions)

		results, err := s.ListDailyResults(ctx, store.ResultFilter{TestID: f.test.ID})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("CorrectionRepairsLaterDays", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")

		// Day 2 arrives before day 0.
		_, err := s.UpsertDailyResult(ctx, result(f, f.control, day(2), 300, 3))
		require.NoError(t, err)
		_, err = s.UpsertDailyResult(ctx, result(f, f.control, day(0), 100, 1))
		require.NoError(t, err)
		_, err = s.UpsertDailyResult(ctx, result(f, f.control, day(1), 200, 2))
		require.NoError(t, err)

		// Correct day 0.
		_, err = s.UpsertDailyResult(ctx, result(f, f.control, day(0), 150, 4))
		require.NoError(t, err)

		results, err := s.ListDailyResults(ctx, store.ResultFilter{TestID: f.test.ID, VariantID: f.control.ID})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, day(0), results[0].ResultDate)
		assert.Equal(t, []int64{150, 350, 650}, []int64{
			results[0].CumulativeImpressions, results[1].CumulativeImpressions, results[2].CumulativeImpressions,
		})
		assert.Equal(t, []int64{4, 6, 9}, []int64{
			results[0].CumulativeConversions, results[1].CumulativeConversions, results[2].CumulativeConversions,
		})
	})

	t.Run("ConcurrentUpsertsStayConsistent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")

		const days = 10
		var wg sync.WaitGroup
		for i := 0; i < days; i++ {
			for rep := 0; rep < 2; rep++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.UpsertDailyResult(ctx, result(f, f.control, day(i), 100, 1))
					assert.NoError(t, err)
				}(i)
			}
		}
		wg.Wait()

		results, err := s.ListDailyResults(ctx, store.ResultFilter{TestID: f.test.ID})
		require.NoError(t, err)
		require.Len(t, results, days)
		for i, r := range results {
			assert.Equal(t, int64(100*(i+1)), r.CumulativeImpressions, "day %d", i)
			assert.Equal(t, int64(i+1), r.CumulativeConversions, "day %d", i)
		}
	})

	t.Run("RatesAndMoneyRoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")

		rate := 0.05
		r := result(f, f.control, day(0), 1000, 10)
		r.ClickRate = &rate
		r.Revenue = decimal.RequireFromString("99.95")
		stored, err := s.UpsertDailyResult(ctx, r)
		require.NoError(t, err)
		require.NotNil(t, stored.ClickRate)
		assert.InDelta(t, 0.05, *stored.ClickRate, 1e-12)
		assert.Nil(t, stored.SaveRate)
		assert.True(t, decimal.RequireFromString("12.34").Equal(stored.Spend), "spend %s", stored.Spend)
		assert.True(t, decimal.RequireFromString("99.95").Equal(stored.Revenue), "revenue %s", stored.Revenue)
	})

	t.Run("ListDailyResultsLimit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		f := insertFixture(t, s, "owner-1")
		for i := 4; i >= 0; i-- {
			_, err := s.UpsertDailyResult(ctx, result(f, f.control, day(i), 10, 0))
			require.NoError(t, err)
		}

		results, err := s.ListDailyResults(ctx, store.ResultFilter{TestID: f.test.ID, Limit: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, day(0), results[0].ResultDate)
		assert.Equal(t, day(1), results[1].ResultDate)
	})

	t.Run("Settings", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.GetSetting(ctx, "server_url")
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.SetSetting(ctx, "server_url", "https://ab.example.com"))
		require.NoError(t, s.SetSetting(ctx, "server_url", "https://xp.example.com"))

		value, err := s.GetSetting(ctx, "server_url")
		require.NoError(t, err)
		assert.Equal(t, "https://xp.example.com", value)
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
