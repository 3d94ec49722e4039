package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	VariantConfigVersion  = 1
	ResultsSummaryVersion = 1
)

// VariantConfig is the typed configuration attached to a variant. Only the
// sections relevant to the test's type are expected to be set; the engine
// stores them but never interprets creative content.
type VariantConfig struct {
	Version  int             `json:"version"`
	Copy     *CopyConfig     `json:"copy,omitempty"`
	Creative *CreativeConfig `json:"creative,omitempty"`
	Audience *AudienceConfig `json:"audience,omitempty"`
	Schedule *ScheduleConfig `json:"schedule,omitempty"`
}

type CopyConfig struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Hook        string `json:"hook,omitempty"`
	CTA         string `json:"cta,omitempty"`
}

type CreativeConfig struct {
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
}

type AudienceConfig struct {
	Segments  []string `json:"segments,omitempty"`
	Locations []string `json:"locations,omitempty"`
	MinAge    int      `json:"min_age,omitempty"`
	MaxAge    int      `json:"max_age,omitempty"`
}

type ScheduleConfig struct {
	DaysOfWeek []string `json:"days_of_week,omitempty"`
	StartHour  int      `json:"start_hour"`
	EndHour    int      `json:"end_hour"`
	Timezone   string   `json:"timezone,omitempty"`
}

// Normalize upgrades a zero version and checks section bounds.
func (c *VariantConfig) Normalize() error {
	switch c.Version {
	case 0:
		c.Version = VariantConfigVersion
	case VariantConfigVersion:
	default:
		return fmt.Errorf("unsupported variant config version %d", c.Version)
	}

	if a := c.Audience; a != nil {
		if a.MinAge < 0 || a.MaxAge < 0 {
			return fmt.Errorf("audience ages must be non-negative")
		}
		if a.MaxAge > 0 && a.MinAge > a.MaxAge {
			return fmt.Errorf("audience min_age %d exceeds max_age %d", a.MinAge, a.MaxAge)
		}
	}
	if s := c.Schedule; s != nil {
		if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 23 {
			return fmt.Errorf("schedule hours must be within 0-23")
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				return fmt.Errorf("unknown schedule timezone %q", s.Timezone)
			}
		}
	}
	return nil
}

type DeclaredBy string

const (
	DeclaredManual    DeclaredBy = "manual"
	DeclaredAutomatic DeclaredBy = "automatic"
)

// ResultsSummary is the snapshot frozen onto a test when a winner is
// declared. Later ingestion never rewrites it.
type ResultsSummary struct {
	Version       int                `json:"version"`
	DeclaredBy    DeclaredBy         `json:"declared_by"`
	DeclaredAt    time.Time          `json:"declared_at"`
	Confidence    float64            `json:"confidence"`
	PrimaryMetric Metric             `json:"primary_metric"`
	Variants      []VariantAggregate `json:"variants"`
	Verdict       *VerdictSnapshot   `json:"verdict,omitempty"`
}

// VariantAggregate is the sum of all daily results of one variant.
type VariantAggregate struct {
	VariantID   string          `json:"variant_id"`
	Name        string          `json:"name,omitempty"`
	IsControl   bool            `json:"is_control"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Saves       int64           `json:"saves"`
	Conversions int64           `json:"conversions"`
	Spend       decimal.Decimal `json:"spend"`
	Revenue     decimal.Decimal `json:"revenue"`
	ResultDays  int             `json:"result_days"`
}

// VerdictSnapshot is the significance verdict at declaration time.
type VerdictSnapshot struct {
	Method           string  `json:"method"`
	TestVariantID    string  `json:"test_variant_id"`
	Statistic        float64 `json:"statistic"`
	PValue           float64 `json:"p_value"`
	Lift             float64 `json:"lift"`
	IsSignificant    bool    `json:"is_significant"`
	SampleSizeMet    bool    `json:"sample_size_met"`
	SuggestedWinner  string  `json:"suggested_winner,omitempty"`
	InsufficientData bool    `json:"insufficient_data,omitempty"`
}

func marshalPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
