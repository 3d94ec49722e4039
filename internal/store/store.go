package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("status conflict")
)

// StatusConflict is returned when a status-guarded write matched no row
// because the record is in another state.
type StatusConflict struct {
	ID      string
	Current TestStatus
}

func (e *StatusConflict) Error() string {
	return fmt.Sprintf("test %s is %s", e.ID, e.Current)
}

func (e *StatusConflict) Is(target error) bool {
	return target == ErrConflict
}

// Store defines the persistence operations the experiment engine needs
type Store interface {
	// Test operations
	InsertTest(ctx context.Context, test *Test) error
	GetTest(ctx context.Context, id string) (*Test, error)
	ListTests(ctx context.Context, filter TestFilter) ([]*Test, error)
	TransitionTest(ctx context.Context, id string, tr Transition) error
	DeleteDraftTest(ctx context.Context, id string) error

	// Variant operations
	InsertVariants(ctx context.Context, variants []*Variant) error
	ListVariants(ctx context.Context, testID string) ([]*Variant, error)

	// Daily result operations
	UpsertDailyResult(ctx context.Context, result *DailyResult) (*DailyResult, error)
	ListDailyResults(ctx context.Context, filter ResultFilter) ([]*DailyResult, error)

	// Settings
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
