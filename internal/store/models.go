package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusRunning   TestStatus = "running"
	StatusPaused    TestStatus = "paused"
	StatusCompleted TestStatus = "completed"
	StatusCancelled TestStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s TestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type TestType string

const (
	TestTypeCreative    TestType = "creative"
	TestTypeHeadline    TestType = "headline"
	TestTypeDescription TestType = "description"
	TestTypeHook        TestType = "hook"
	TestTypeCTA         TestType = "cta"
	TestTypeAudience    TestType = "audience"
	TestTypeSchedule    TestType = "schedule"
)

var TestTypes = []TestType{
	TestTypeCreative, TestTypeHeadline, TestTypeDescription, TestTypeHook,
	TestTypeCTA, TestTypeAudience, TestTypeSchedule,
}

type Metric string

const (
	MetricClickRate      Metric = "click_rate"
	MetricSaveRate       Metric = "save_rate"
	MetricConversionRate Metric = "conversion_rate"
	MetricEngagementRate Metric = "engagement_rate"
	MetricCostPerAction  Metric = "cost_per_action"
	MetricReturnOnSpend  Metric = "return_on_spend"
)

var Metrics = []Metric{
	MetricClickRate, MetricSaveRate, MetricConversionRate, MetricEngagementRate,
	MetricCostPerAction, MetricReturnOnSpend,
}

// Proportion reports whether the metric is a binomial proportion over
// impressions (as opposed to a continuous money ratio).
func (m Metric) Proportion() bool {
	switch m {
	case MetricClickRate, MetricSaveRate, MetricConversionRate, MetricEngagementRate:
		return true
	}
	return false
}

type Test struct {
	ID                  string          `json:"id"`
	OwnerID             string          `json:"owner_id"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Hypothesis          string          `json:"hypothesis"`
	TestType            TestType        `json:"test_type"`
	PrimaryMetric       Metric          `json:"primary_metric"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	MinimumSampleSize   int64           `json:"minimum_sample_size"`
	Status              TestStatus      `json:"status"`
	ControlVariantID    string          `json:"control_variant_id"`
	TestVariantIDs      []string        `json:"test_variant_ids"` // Decoded from JSON, ordered
	TrafficSplit        []int           `json:"traffic_split"`    // Decoded from JSON, control first
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	EndedAt             *time.Time      `json:"ended_at,omitempty"`
	ScheduledEndAt      *time.Time      `json:"scheduled_end_at,omitempty"`
	WinnerVariantID     *string         `json:"winner_variant_id,omitempty"`
	WinnerConfidence    *float64        `json:"winner_confidence,omitempty"`
	WinnerDeclaredAt    *time.Time      `json:"winner_declared_at,omitempty"`
	ResultsSummary      *ResultsSummary `json:"results_summary,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// VariantIDs returns the control followed by the test variants.
func (t *Test) VariantIDs() []string {
	return append([]string{t.ControlVariantID}, t.TestVariantIDs...)
}

type Variant struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"owner_id"`
	TestID            string        `json:"test_id"`
	Name              string        `json:"name"`
	IsControl         bool          `json:"is_control"`
	ContentType       string        `json:"content_type"`
	ContentID         string        `json:"content_id"`
	Config            VariantConfig `json:"config"`
	TrafficPercentage int           `json:"traffic_percentage"`
	CreatedAt         time.Time     `json:"created_at"`
}

// DailyResult is one day of reported counts for one variant. Rates are nil
// when Impressions is zero.
type DailyResult struct {
	ID                    string          `json:"id"`
	TestID                string          `json:"test_id"`
	VariantID             string          `json:"variant_id"`
	OwnerID               string          `json:"owner_id"`
	ResultDate            time.Time       `json:"result_date"` // UTC midnight
	Impressions           int64           `json:"impressions"`
	Clicks                int64           `json:"clicks"`
	Saves                 int64           `json:"saves"`
	Conversions           int64           `json:"conversions"`
	Spend                 decimal.Decimal `json:"spend"`
	Revenue               decimal.Decimal `json:"revenue"`
	ClickRate             *float64        `json:"click_rate,omitempty"`
	SaveRate              *float64        `json:"save_rate,omitempty"`
	ConversionRate        *float64        `json:"conversion_rate,omitempty"`
	CumulativeImpressions int64           `json:"cumulative_impressions"`
	CumulativeConversions int64           `json:"cumulative_conversions"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// DateLayout is how result dates are keyed in storage.
const DateLayout = "2006-01-02"

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type TestFilter struct {
	Status  TestStatus // empty matches all
	OwnerID string     // empty matches all
}

type ResultFilter struct {
	TestID    string
	VariantID string // empty matches all variants
	Limit     int    // <= 0 means no limit
}

// Transition describes a status-guarded update. It only applies when the
// stored status is one of From.
type Transition struct {
	From      []TestStatus
	To        TestStatus
	StartedAt *time.Time
	EndedAt   *time.Time
	Winner    *WinnerDeclaration
}

type WinnerDeclaration struct {
	VariantID  string
	Confidence float64
	DeclaredAt time.Time
	Summary    *ResultsSummary
}
