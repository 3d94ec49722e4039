package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/headline-goat/variant-goat/internal/stats"
	"github.com/headline-goat/variant-goat/internal/store"
)

type Method string

const (
	MethodTwoProportionZ Method = "two_proportion_z"
	MethodWelchT         Method = "welch_t"
)

type Outcome string

const (
	OutcomeNone    Outcome = "none"
	OutcomeTest    Outcome = "test"
	OutcomeControl Outcome = "control"
)

// ArmStats describes one side of the comparison. For proportion metrics
// Rate is Successes/Trials with a Wilson interval; for money metrics Rate
// is the pooled ratio and Mean the average of the per-day ratios.
type ArmStats struct {
	VariantID string  `json:"variant_id"`
	Name      string  `json:"name"`
	Successes int64   `json:"successes"`
	Trials    int64   `json:"trials"`
	Rate      float64 `json:"rate"`
	CILower   float64 `json:"ci_lower"`
	CIUpper   float64 `json:"ci_upper"`
	Mean      float64 `json:"mean,omitempty"`
	Days      int     `json:"days"`
}

type SignificanceResult struct {
	TestID           string                   `json:"test_id"`
	PrimaryMetric    store.Metric             `json:"primary_metric"`
	Method           Method                   `json:"method"`
	ControlVariantID string                   `json:"control_variant_id"`
	TestVariantID    string                   `json:"test_variant_id"`
	Control          ArmStats                 `json:"control"`
	Test             ArmStats                 `json:"test"`
	Statistic        float64                  `json:"statistic"`
	DegreesOfFreedom float64                  `json:"degrees_of_freedom,omitempty"`
	PValue           float64                  `json:"p_value"`
	Confidence       float64                  `json:"confidence"`
	Lift             float64                  `json:"lift"`
	Alpha            float64                  `json:"alpha"`
	IsSignificant    bool                     `json:"is_significant"`
	Winner           Outcome                  `json:"winner"`
	WinnerVariantID  string                   `json:"winner_variant_id,omitempty"`
	SampleSizeMet    bool                     `json:"sample_size_met"`
	ReadyToDeclare   bool                     `json:"ready_to_declare"`
	InsufficientData bool                     `json:"insufficient_data"`
	Reason           string                   `json:"reason,omitempty"`
	Aggregates       []store.VariantAggregate `json:"aggregates"`
}

// Snapshot converts the verdict into the form frozen on a completed test.
func (r *SignificanceResult) Snapshot() *store.VerdictSnapshot {
	return &store.VerdictSnapshot{
		Method:           string(r.Method),
		TestVariantID:    r.TestVariantID,
		Statistic:        r.Statistic,
		PValue:           r.PValue,
		Lift:             r.Lift,
		IsSignificant:    r.IsSignificant,
		SampleSizeMet:    r.SampleSizeMet,
		SuggestedWinner:  r.WinnerVariantID,
		InsufficientData: r.InsufficientData,
	}
}

// CalculateSignificance compares the control with the first test variant.
func (e *Engine) CalculateSignificance(ctx context.Context, testID string) (*SignificanceResult, error) {
	return e.CalculateSignificanceFor(ctx, testID, "")
}

// CalculateSignificanceFor compares the control with the given test
// variant, or the first one when testVariantID is empty. It never writes.
func (e *Engine) CalculateSignificanceFor(ctx context.Context, testID, testVariantID string) (_ *SignificanceResult, err error) {
	ctx, span := startSpan(ctx, "experiment.CalculateSignificance", testID)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	defer func() { significanceDuration.Observe(time.Since(start).Seconds()) }()

	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return nil, e.storeError("get test", testID, err)
	}
	variants, err := e.listVariants(ctx, test)
	if err != nil {
		return nil, err
	}
	results, err := e.store.ListDailyResults(ctx, store.ResultFilter{TestID: testID})
	if err != nil {
		return nil, e.storeError("list results", testID, err)
	}

	res, err := Evaluate(test, variants, results, testVariantID)
	if err != nil {
		return nil, err
	}
	significanceTotal.WithLabelValues(string(res.Method), outcomeLabel(res)).Inc()
	return res, nil
}

func outcomeLabel(r *SignificanceResult) string {
	switch {
	case r.InsufficientData:
		return "insufficient_data"
	case r.IsSignificant:
		return "significant"
	default:
		return "not_significant"
	}
}

func methodFor(m store.Metric) Method {
	if m.Proportion() {
		return MethodTwoProportionZ
	}
	return MethodWelchT
}

// Evaluate computes a verdict from loaded rows. It is a pure function of
// its arguments.
func Evaluate(test *store.Test, variants []*store.Variant, results []*store.DailyResult, testVariantID string) (*SignificanceResult, error) {
	res := &SignificanceResult{
		TestID:        test.ID,
		PrimaryMetric: test.PrimaryMetric,
		Method:        methodFor(test.PrimaryMetric),
		Alpha:         1 - test.ConfidenceThreshold,
		PValue:        1,
		Winner:        OutcomeNone,
		Aggregates:    Aggregate(variants, results),
	}

	var control *store.Variant
	controls := 0
	byID := make(map[string]*store.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
		if v.IsControl {
			control = v
			controls++
		}
	}

	if testVariantID != "" {
		if v, ok := byID[testVariantID]; !ok || v.IsControl || !containsID(test.TestVariantIDs, testVariantID) {
			return nil, invalid("variant_id", "%s is not a test variant of %s", testVariantID, test.ID)
		}
	} else {
		for _, id := range test.TestVariantIDs {
			if v, ok := byID[id]; ok && !v.IsControl {
				testVariantID = id
				break
			}
		}
	}

	if controls != 1 || testVariantID == "" {
		res.InsufficientData = true
		res.Reason = "test needs exactly one control and at least one test variant"
		return res, nil
	}
	treatment := byID[testVariantID]

	res.ControlVariantID = control.ID
	res.TestVariantID = treatment.ID
	res.Control = ArmStats{VariantID: control.ID, Name: control.Name}
	res.Test = ArmStats{VariantID: treatment.ID, Name: treatment.Name}

	ca := findAggregate(res.Aggregates, control.ID)
	ta := findAggregate(res.Aggregates, treatment.ID)
	res.SampleSizeMet = ca.Impressions >= test.MinimumSampleSize && ta.Impressions >= test.MinimumSampleSize

	if test.PrimaryMetric.Proportion() {
		evaluateProportion(res, test, ca, ta)
	} else {
		rows := groupResults(results)
		evaluateRatio(res, test.PrimaryMetric, ca, ta, rows[control.ID], rows[treatment.ID])
	}

	res.ReadyToDeclare = res.IsSignificant && res.SampleSizeMet
	return res, nil
}

func successes(m store.Metric, a store.VariantAggregate) int64 {
	switch m {
	case store.MetricSaveRate:
		return a.Saves
	case store.MetricConversionRate:
		return a.Conversions
	case store.MetricEngagementRate:
		return a.Clicks + a.Saves
	default:
		return a.Clicks
	}
}

func evaluateProportion(res *SignificanceResult, test *store.Test, ca, ta store.VariantAggregate) {
	x1, n1 := successes(test.PrimaryMetric, ca), ca.Impressions
	x2, n2 := successes(test.PrimaryMetric, ta), ta.Impressions

	res.Control.Successes, res.Control.Trials, res.Control.Days = x1, n1, ca.ResultDays
	res.Test.Successes, res.Test.Trials, res.Test.Days = x2, n2, ta.ResultDays

	if n1 == 0 || n2 == 0 {
		res.InsufficientData = true
		res.SampleSizeMet = false
		res.Reason = "no impressions recorded for one or both variants"
		return
	}
	// Engagements (clicks + saves) can outnumber impressions; the rate is
	// then not a proportion and no z-test applies.
	if !stats.InRange(x1, n1) || !stats.InRange(x2, n2) {
		res.InsufficientData = true
		res.Reason = fmt.Sprintf("%s successes exceed impressions for one or both variants", test.PrimaryMetric)
		return
	}

	z := stats.TwoProportionZTest(x1, n1, x2, n2)
	res.Control.Rate = z.ControlRate
	res.Test.Rate = z.TestRate
	res.Control.CILower, res.Control.CIUpper = stats.WilsonInterval(x1, n1, test.ConfidenceThreshold)
	res.Test.CILower, res.Test.CIUpper = stats.WilsonInterval(x2, n2, test.ConfidenceThreshold)
	res.Statistic = z.ZScore
	res.PValue = z.PValue
	res.Confidence = z.Confidence
	res.Lift = z.Lift

	if z.Degenerate {
		res.Reason = "proportions have zero standard error"
		return
	}

	res.IsSignificant = z.Significant(res.Alpha)
	if res.IsSignificant {
		if z.ZScore > 0 {
			res.Winner, res.WinnerVariantID = OutcomeTest, res.TestVariantID
		} else if z.ZScore < 0 {
			res.Winner, res.WinnerVariantID = OutcomeControl, res.ControlVariantID
		}
	}
}

// evaluateRatio compares money metrics with Welch's t-test on per-day
// ratios. Lower cost per action is better; higher return on spend is
// better. Lift is positive when the test variant is better.
func evaluateRatio(res *SignificanceResult, m store.Metric, ca, ta store.VariantAggregate, controlRows, testRows []*store.DailyResult) {
	c := dailyRatios(m, controlRows)
	t := dailyRatios(m, testRows)

	res.Control.Trials, res.Control.Days, res.Control.Rate = ca.Impressions, len(c), pooledRatio(m, ca)
	res.Test.Trials, res.Test.Days, res.Test.Rate = ta.Impressions, len(t), pooledRatio(m, ta)

	if len(c) < 2 || len(t) < 2 {
		res.InsufficientData = true
		res.Reason = "money metrics need at least two qualifying days per variant"
		return
	}

	tt, err := stats.WelchTTest(c, t)
	res.Control.Mean = tt.ControlMean
	res.Test.Mean = tt.TestMean
	if tt.ControlMean != 0 {
		diff := tt.TestMean - tt.ControlMean
		if m == store.MetricCostPerAction {
			diff = -diff
		}
		res.Lift = diff / tt.ControlMean * 100
	}
	if errors.Is(err, stats.ErrZeroVariance) {
		res.Reason = "daily ratios have zero variance"
		return
	}

	res.Statistic = tt.TStatistic
	res.DegreesOfFreedom = tt.DegreesOfFreedom
	res.PValue = tt.PValue
	res.Confidence = 1 - tt.PValue
	res.IsSignificant = tt.PValue < res.Alpha

	if !res.IsSignificant || tt.TStatistic == 0 {
		return
	}
	testBetter := tt.TStatistic > 0
	if m == store.MetricCostPerAction {
		testBetter = !testBetter
	}
	if testBetter {
		res.Winner, res.WinnerVariantID = OutcomeTest, res.TestVariantID
	} else {
		res.Winner, res.WinnerVariantID = OutcomeControl, res.ControlVariantID
	}
}

// dailyRatios returns spend/conversions per day with conversions for
// cost per action, and revenue/spend per day with spend for return on
// spend.
func dailyRatios(m store.Metric, rows []*store.DailyResult) []float64 {
	var out []float64
	for _, r := range rows {
		switch m {
		case store.MetricCostPerAction:
			if r.Conversions > 0 {
				out = append(out, r.Spend.Div(decimal.NewFromInt(r.Conversions)).InexactFloat64())
			}
		case store.MetricReturnOnSpend:
			if r.Spend.IsPositive() {
				out = append(out, r.Revenue.Div(r.Spend).InexactFloat64())
			}
		}
	}
	return out
}

func pooledRatio(m store.Metric, a store.VariantAggregate) float64 {
	switch m {
	case store.MetricCostPerAction:
		if a.Conversions > 0 {
			return a.Spend.Div(decimal.NewFromInt(a.Conversions)).InexactFloat64()
		}
	case store.MetricReturnOnSpend:
		if a.Spend.IsPositive() {
			return a.Revenue.Div(a.Spend).InexactFloat64()
		}
	}
	return 0
}

// Aggregate sums daily results per variant, in variant order.
func Aggregate(variants []*store.Variant, results []*store.DailyResult) []store.VariantAggregate {
	index := make(map[string]int, len(variants))
	aggs := make([]store.VariantAggregate, len(variants))
	for i, v := range variants {
		index[v.ID] = i
		aggs[i] = store.VariantAggregate{VariantID: v.ID, Name: v.Name, IsControl: v.IsControl}
	}
	for _, r := range results {
		i, ok := index[r.VariantID]
		if !ok {
			continue
		}
		a := &aggs[i]
		a.Impressions += r.Impressions
		a.Clicks += r.Clicks
		a.Saves += r.Saves
		a.Conversions += r.Conversions
		a.Spend = a.Spend.Add(r.Spend)
		a.Revenue = a.Revenue.Add(r.Revenue)
		a.ResultDays++
	}
	return aggs
}

func findAggregate(aggs []store.VariantAggregate, variantID string) store.VariantAggregate {
	for _, a := range aggs {
		if a.VariantID == variantID {
			return a
		}
	}
	return store.VariantAggregate{VariantID: variantID}
}

func groupResults(results []*store.DailyResult) map[string][]*store.DailyResult {
	rows := make(map[string][]*store.DailyResult)
	for _, r := range results {
		rows[r.VariantID] = append(rows[r.VariantID], r)
	}
	return rows
}
