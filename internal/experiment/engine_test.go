package experiment_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
	"github.com/headline-goat/variant-goat/internal/testutil"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine *experiment.Engine
	store  store.Store
	clock  *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, testutil.SetupTestStore(t))
}

func newHarnessWithStore(t *testing.T, s store.Store) *harness {
	t.Helper()
	clock := &fakeClock{now: baseTime}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{
		engine: experiment.New(s, experiment.WithLogger(logger), experiment.WithClock(clock.Now)),
		store:  s,
		clock:  clock,
	}
}

func validInput() experiment.CreateTestInput {
	return experiment.CreateTestInput{
		OwnerID:       "owner-1",
		Name:          "Fall pin titles",
		Hypothesis:    "Numbered titles get more clicks",
		TestType:      store.TestTypeHeadline,
		PrimaryMetric: store.MetricClickRate,
		Control: experiment.VariantInput{
			Name: "Control", ContentType: "pin", ContentID: "pin-1",
			Config: store.VariantConfig{Copy: &store.CopyConfig{Title: "Cozy fall looks"}},
		},
		Variants: []experiment.VariantInput{{
			Name: "Numbered", ContentType: "pin", ContentID: "pin-2",
			Config: store.VariantConfig{Copy: &store.CopyConfig{Title: "10 fall outfits"}},
		}},
	}
}

// create makes a test from in, or validInput when nil.
func (h *harness) create(t *testing.T, mutate func(*experiment.CreateTestInput)) *experiment.TestWithVariants {
	t.Helper()
	in := validInput()
	if mutate != nil {
		mutate(&in)
	}
	created, err := h.engine.CreateTest(context.Background(), in)
	require.NoError(t, err)
	return created
}

func (h *harness) createRunning(t *testing.T, mutate func(*experiment.CreateTestInput)) *experiment.TestWithVariants {
	t.Helper()
	created := h.create(t, mutate)
	require.NoError(t, h.engine.StartTest(context.Background(), created.Test.ID))
	return created
}

func (h *harness) record(t *testing.T, testID, variantID string, day int, m experiment.DayMetrics) *store.DailyResult {
	t.Helper()
	r, err := h.engine.RecordResult(context.Background(), testID, variantID, m, baseTime.AddDate(0, 0, day))
	require.NoError(t, err)
	return r
}

func clicks(impressions, clicks int64) experiment.DayMetrics {
	return experiment.DayMetrics{Impressions: impressions, Clicks: clicks}
}

func money(impressions, conversions int64, spend, revenue string) experiment.DayMetrics {
	return experiment.DayMetrics{
		Impressions: impressions,
		Conversions: conversions,
		Spend:       decimal.RequireFromString(spend),
		Revenue:     decimal.RequireFromString(revenue),
	}
}
