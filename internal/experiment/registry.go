package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/headline-goat/variant-goat/internal/store"
)

type VariantInput struct {
	Name        string              `json:"name" validate:"required,max=200"`
	ContentType string              `json:"content_type" validate:"max=100"`
	ContentID   string              `json:"content_id" validate:"max=200"`
	Config      store.VariantConfig `json:"config"`
}

// CreateTestInput describes a new test. Nil ConfidenceThreshold and
// MinimumSampleSize take the engine defaults; an empty TrafficSplit is
// divided evenly.
type CreateTestInput struct {
	OwnerID             string         `json:"owner_id" validate:"max=200"`
	Name                string         `json:"name" validate:"required,max=200"`
	Description         string         `json:"description" validate:"max=2000"`
	Hypothesis          string         `json:"hypothesis" validate:"max=2000"`
	TestType            store.TestType `json:"test_type" validate:"required,test_type"`
	PrimaryMetric       store.Metric   `json:"primary_metric" validate:"required,metric"`
	ConfidenceThreshold *float64       `json:"confidence_threshold,omitempty"`
	MinimumSampleSize   *int64         `json:"minimum_sample_size,omitempty"`
	Control             VariantInput   `json:"control"`
	Variants            []VariantInput `json:"variants" validate:"min=1,dive"`
	TrafficSplit        []int          `json:"traffic_split,omitempty"`
	ScheduledEndAt      *time.Time     `json:"scheduled_end_at,omitempty"`
}

type TestWithVariants struct {
	Test     *store.Test      `json:"test"`
	Variants []*store.Variant `json:"variants"`
}

// DefaultTrafficSplit divides 100 across n variants. Every share is 100/n
// and the first 100%n shares get one more, so the sum is exactly 100.
func DefaultTrafficSplit(n int) []int {
	if n <= 0 {
		return nil
	}
	split := make([]int, n)
	for i := range split {
		split[i] = 100 / n
		if i < 100%n {
			split[i]++
		}
	}
	return split
}

func checkTrafficSplit(split []int, n int) error {
	if len(split) != n {
		return invalid("traffic_split", "has %d entries for %d variants", len(split), n)
	}
	sum := 0
	for i, share := range split {
		if share <= 0 {
			return invalid("traffic_split", "entry %d must be positive", i)
		}
		sum += share
	}
	if sum != 100 {
		return invalid("traffic_split", "sums to %d, want 100", sum)
	}
	return nil
}

// CreateTest validates input and persists a draft test with its control
// and test variants. If the variants cannot be written the test row is
// removed again.
func (e *Engine) CreateTest(ctx context.Context, in CreateTestInput) (_ *TestWithVariants, err error) {
	ctx, span := startSpan(ctx, "experiment.CreateTest", "")
	defer func() { endSpan(span, err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.Control.Name = strings.TrimSpace(in.Control.Name)
	in.Variants = append([]VariantInput(nil), in.Variants...)
	for i := range in.Variants {
		in.Variants[i].Name = strings.TrimSpace(in.Variants[i].Name)
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	now := e.clock()
	test := &store.Test{
		ID:                  uuid.NewString(),
		OwnerID:             in.OwnerID,
		Name:                in.Name,
		Description:         in.Description,
		Hypothesis:          in.Hypothesis,
		TestType:            in.TestType,
		PrimaryMetric:       in.PrimaryMetric,
		ConfidenceThreshold: e.defaults.ConfidenceThreshold,
		MinimumSampleSize:   e.defaults.MinimumSampleSize,
		Status:              store.StatusDraft,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if c := in.ConfidenceThreshold; c != nil {
		if *c <= 0 || *c >= 1 {
			return nil, invalid("confidence_threshold", "must be between 0 and 1 exclusive")
		}
		test.ConfidenceThreshold = *c
	}
	if m := in.MinimumSampleSize; m != nil {
		if *m <= 0 {
			return nil, invalid("minimum_sample_size", "must be positive")
		}
		test.MinimumSampleSize = *m
	}
	if in.ScheduledEndAt != nil {
		end := in.ScheduledEndAt.UTC()
		if !end.After(now) {
			return nil, invalid("scheduled_end_at", "must be in the future")
		}
		test.ScheduledEndAt = &end
	}

	inputs := append([]VariantInput{in.Control}, in.Variants...)
	split := in.TrafficSplit
	if len(split) == 0 {
		split = DefaultTrafficSplit(len(inputs))
	} else if err := checkTrafficSplit(split, len(inputs)); err != nil {
		return nil, err
	}
	test.TrafficSplit = split

	// Identities exist before any row so the test can reference them.
	variants := make([]*store.Variant, len(inputs))
	for i, vi := range inputs {
		cfg := vi.Config
		if err := cfg.Normalize(); err != nil {
			field := "control.config"
			if i > 0 {
				field = fmt.Sprintf("variants[%d].config", i-1)
			}
			return nil, &ValidationError{Field: field, Message: err.Error()}
		}
		variants[i] = &store.Variant{
			ID:                uuid.NewString(),
			OwnerID:           in.OwnerID,
			TestID:            test.ID,
			Name:              vi.Name,
			IsControl:         i == 0,
			ContentType:       vi.ContentType,
			ContentID:         vi.ContentID,
			Config:            cfg,
			TrafficPercentage: split[i],
			CreatedAt:         now,
		}
	}
	test.ControlVariantID = variants[0].ID
	test.TestVariantIDs = make([]string, 0, len(variants)-1)
	for _, v := range variants[1:] {
		test.TestVariantIDs = append(test.TestVariantIDs, v.ID)
	}
	span.SetAttributes(testIDAttr(test.ID))

	if err := e.store.InsertTest(ctx, test); err != nil {
		return nil, e.storeError("create test", test.ID, err)
	}
	if err := e.store.InsertVariants(ctx, variants); err != nil {
		if delErr := e.store.DeleteDraftTest(ctx, test.ID); delErr != nil {
			e.logger.Error("failed to remove test after variant insert failure",
				slog.String("test_id", test.ID),
				slog.String("error", delErr.Error()))
		}
		return nil, e.storeError("create variants", test.ID, err)
	}

	testsCreatedTotal.WithLabelValues(string(test.TestType)).Inc()
	e.logger.Info("test created",
		slog.String("test_id", test.ID),
		slog.String("name", test.Name),
		slog.Int("variants", len(variants)))

	return &TestWithVariants{Test: test, Variants: variants}, nil
}

// GetTests lists tests, newest first.
func (e *Engine) GetTests(ctx context.Context, filter store.TestFilter) ([]*store.Test, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, invalid("status", "unknown status %q", filter.Status)
	}
	tests, err := e.store.ListTests(ctx, filter)
	if err != nil {
		return nil, e.storeError("list tests", "", err)
	}
	return tests, nil
}

// GetTestWithVariants returns a test and its variants, control first.
func (e *Engine) GetTestWithVariants(ctx context.Context, testID string) (*TestWithVariants, error) {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return nil, e.storeError("get test", testID, err)
	}
	variants, err := e.listVariants(ctx, test)
	if err != nil {
		return nil, err
	}
	return &TestWithVariants{Test: test, Variants: variants}, nil
}

// listVariants loads the variants of test in its declared order: the
// control, then the test variants as listed on the test.
func (e *Engine) listVariants(ctx context.Context, test *store.Test) ([]*store.Variant, error) {
	variants, err := e.store.ListVariants(ctx, test.ID)
	if err != nil {
		return nil, e.storeError("list variants", test.ID, err)
	}
	pos := make(map[string]int, len(variants))
	for i, id := range test.VariantIDs() {
		pos[id] = i
	}
	sort.SliceStable(variants, func(i, j int) bool {
		return pos[variants[i].ID] < pos[variants[j].ID]
	})
	return variants, nil
}

// DeleteTest removes a draft test with its variants.
func (e *Engine) DeleteTest(ctx context.Context, testID string) (err error) {
	ctx, span := startSpan(ctx, "experiment.DeleteTest", testID)
	defer func() { endSpan(span, err) }()

	if err := e.store.DeleteDraftTest(ctx, testID); err != nil {
		transitionsTotal.WithLabelValues("delete", "rejected").Inc()
		return e.storeError("delete", testID, err)
	}
	transitionsTotal.WithLabelValues("delete", "ok").Inc()
	e.logger.Info("test deleted", slog.String("test_id", testID))
	return nil
}
