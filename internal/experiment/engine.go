// Package experiment implements the experiment engine: test registry,
// lifecycle state machine, results ledger, significance verdicts and
// winner declaration. The engine holds no state between calls; every
// invariant lives in the store.
package experiment

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/headline-goat/variant-goat/internal/store"
)

const (
	DefaultConfidenceThreshold = 0.95
	DefaultMinimumSampleSize   = 1000
)

// Defaults are applied to tests created without an explicit value.
type Defaults struct {
	ConfidenceThreshold float64
	MinimumSampleSize   int64
}

type Engine struct {
	store    store.Store
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDefaults overrides the creation defaults. Zero fields keep the
// built-in values.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) {
		if d.ConfidenceThreshold > 0 && d.ConfidenceThreshold < 1 {
			e.defaults.ConfidenceThreshold = d.ConfidenceThreshold
		}
		if d.MinimumSampleSize > 0 {
			e.defaults.MinimumSampleSize = d.MinimumSampleSize
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		logger: slog.Default(),
		defaults: Defaults{
			ConfidenceThreshold: DefaultConfidenceThreshold,
			MinimumSampleSize:   DefaultMinimumSampleSize,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Defaults() Defaults {
	return e.defaults
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func startSpan(ctx context.Context, name, testID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(testIDAttr(testID)))
}

func testIDAttr(id string) attribute.KeyValue {
	return attribute.String("test.id", id)
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
