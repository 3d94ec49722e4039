package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// lockVariant runs first in an upsert transaction to serialize writers
	// of one variant. Empty when the driver already serializes writes.
	lockVariant string
}

var (
	sqliteDialect   = dialect{name: "sqlite"}
	postgresDialect = dialect{
		name:        "postgres",
		numbered:    true,
		lockVariant: `SELECT id FROM variants WHERE id = ? FOR UPDATE`,
	}
)

func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store on top of database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database connection for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns "sqlite" or "postgres".
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

func (s *SQLStore) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

const testColumns = `id, owner_id, name, description, hypothesis, test_type, primary_metric,
	confidence_threshold, minimum_sample_size, status, control_variant_id, test_variant_ids,
	traffic_split, started_at, ended_at, scheduled_end_at, winner_variant_id, winner_confidence,
	winner_declared_at, results_summary, created_at, updated_at`

func (s *SQLStore) InsertTest(ctx context.Context, t *Test) error {
	variantIDs, err := marshalList(t.TestVariantIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal test variant ids: %w", err)
	}
	split, err := marshalList(t.TrafficSplit)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic split: %w", err)
	}
	summary, err := nullableSummary(t.ResultsSummary)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	_, err = s.exec(ctx, s.db,
		`INSERT INTO tests (`+testColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Name, t.Description, t.Hypothesis, string(t.TestType), string(t.PrimaryMetric),
		t.ConfidenceThreshold, t.MinimumSampleSize, string(t.Status), t.ControlVariantID, variantIDs,
		split, millis(t.StartedAt), millis(t.EndedAt), millis(t.ScheduledEndAt), nullableText(t.WinnerVariantID),
		nullableFloat(t.WinnerConfidence), millis(t.WinnerDeclaredAt), summary,
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert test: %w", err)
	}
	return nil
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (*Test, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+testColumns+` FROM tests WHERE id = ?`, id)
	test, err := scanTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func (s *SQLStore) ListTests(ctx context.Context, filter TestFilter) ([]*Test, error) {
	query := `SELECT ` + testColumns + ` FROM tests WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []*Test
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		tests = append(tests, test)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, nil
}

// TransitionTest applies tr as a single conditional UPDATE. Zero matched
// rows is classified afterwards as ErrNotFound or *StatusConflict.
func (s *SQLStore) TransitionTest(ctx context.Context, id string, tr Transition) error {
	if len(tr.From) == 0 {
		return fmt.Errorf("transition to %s has no source states", tr.To)
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(tr.To), time.Now().UTC().UnixMilli()}

	if tr.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, tr.StartedAt.UnixMilli())
	}
	if tr.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, tr.EndedAt.UnixMilli())
	}
	if w := tr.Winner; w != nil {
		summary, err := nullableSummary(w.Summary)
		if err != nil {
			return err
		}
		sets = append(sets,
			"winner_variant_id = ?", "winner_confidence = ?", "winner_declared_at = ?", "results_summary = ?")
		args = append(args, w.VariantID, w.Confidence, w.DeclaredAt.UnixMilli(), summary)
	}

	placeholders := make([]string, len(tr.From))
	args = append(args, id)
	for i, from := range tr.From {
		placeholders[i] = "?"
		args = append(args, string(from))
	}

	result, err := s.exec(ctx, s.db,
		`UPDATE tests SET `+strings.Join(sets, ", ")+
			` WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update test status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// DeleteDraftTest removes a draft test; variants and results cascade.
func (s *SQLStore) DeleteDraftTest(ctx context.Context, id string) error {
	result, err := s.exec(ctx, s.db,
		`DELETE FROM tests WHERE id = ? AND status = ?`, id, string(StatusDraft))
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

func (s *SQLStore) classifyMiss(ctx context.Context, id string) error {
	var status string
	err := s.queryRow(ctx, s.db, `SELECT status FROM tests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read test status: %w", err)
	}
	return &StatusConflict{ID: id, Current: TestStatus(status)}
}

func scanTest(row scanner) (*Test, error) {
	var t Test
	var testType, metric, status string
	var variantIDs, split string
	var startedAt, endedAt, scheduledEnd, winAt sql.NullInt64
	var winnerID, summary sql.NullString
	var winnerConfidence sql.NullFloat64
	var createdAt, updatedAt int64

	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.Hypothesis, &testType, &metric,
		&t.ConfidenceThreshold, &t.MinimumSampleSize, &status, &t.ControlVariantID, &variantIDs,
		&split, &startedAt, &endedAt, &scheduledEnd, &winnerID, &winnerConfidence,
		&winAt, &summary, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.TestType = TestType(testType)
	t.PrimaryMetric = Metric(metric)
	t.Status = TestStatus(status)

	if err := json.Unmarshal([]byte(variantIDs), &t.TestVariantIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test variant ids: %w", err)
	}
	if err := json.Unmarshal([]byte(split), &t.TrafficSplit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traffic split: %w", err)
	}
	if summary.Valid && summary.String != "" {
		t.ResultsSummary = &ResultsSummary{}
		if err := json.Unmarshal([]byte(summary.String), t.ResultsSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results summary: %w", err)
		}
	}

	t.StartedAt = fromMillis(startedAt)
	t.EndedAt = fromMillis(endedAt)
	t.ScheduledEndAt = fromMillis(scheduledEnd)
	t.WinnerDeclaredAt = fromMillis(winAt)
	if winnerID.Valid {
		id := winnerID.String
		t.WinnerVariantID = &id
	}
	if winnerConfidence.Valid {
		c := winnerConfidence.Float64
		t.WinnerConfidence = &c
	}
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &t, nil
}

// -----------------------------------------------------------------------------
// Variants
// -----------------------------------------------------------------------------

const variantColumns = `id, owner_id, test_id, name, is_control, content_type, content_id,
	config, traffic_percentage, created_at`

// InsertVariants writes all variants in one transaction.
func (s *SQLStore) InsertVariants(ctx context.Context, variants []*Variant) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, v := range variants {
		config, err := marshalPayload(v.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal variant config: %w", err)
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}

		_, err = s.exec(ctx, tx,
			`INSERT INTO variants (`+variantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.OwnerID, v.TestID, v.Name, v.IsControl, v.ContentType, v.ContentID,
			config, v.TrafficPercentage, v.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert variant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit variants: %w", err)
	}
	return nil
}

// ListVariants returns the control first, then test variants in creation order.
func (s *SQLStore) ListVariants(ctx context.Context, testID string) ([]*Variant, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+variantColumns+` FROM variants WHERE test_id = ?
		 ORDER BY is_control DESC, created_at, id`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		var v Variant
		var config string
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.TestID, &v.Name, &v.IsControl, &v.ContentType,
			&v.ContentID, &config, &v.TrafficPercentage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &v.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variant config: %w", err)
		}
		v.CreatedAt = time.UnixMilli(createdAt).UTC()
		variants = append(variants, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	return variants, nil
}

// -----------------------------------------------------------------------------
// Daily results
// -----------------------------------------------------------------------------

const resultColumns = `id, test_id, variant_id, owner_id, result_date, impressions, clicks, saves,
	conversions, spend, revenue, click_rate, save_rate, conversion_rate, cumulative_impressions,
	cumulative_conversions, created_at, updated_at`

// UpsertDailyResult writes the raw counts for (test, variant, date) and
// recomputes the cumulative totals of that day and every later day of the
// variant as sums over stored history, all in one transaction. The stored
// cumulative values are never used as a baseline, so resubmitting a day is
// idempotent and correcting an earlier day repairs later ones.
func (s *SQLStore) UpsertDailyResult(ctx context.Context, r *DailyResult) (_ *DailyResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.dialect.lockVariant != "" {
		var locked string
		if err := s.queryRow(ctx, tx, s.dialect.lockVariant, r.VariantID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to lock variant: %w", err)
		}
	}

	now := time.Now().UTC().UnixMilli()
	date := Day(r.ResultDate).Format(DateLayout)

	_, err = s.exec(ctx, tx,
		`INSERT INTO daily_results (id, test_id, variant_id, owner_id, result_date, impressions, clicks,
			saves, conversions, spend, revenue, click_rate, save_rate, conversion_rate,
			cumulative_impressions, cumulative_conversions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
		 ON CONFLICT (test_id, variant_id, result_date) DO UPDATE SET
			impressions = excluded.impressions,
			clicks = excluded.clicks,
			saves = excluded.saves,
			conversions = excluded.conversions,
			spend = excluded.spend,
			revenue = excluded.revenue,
			click_rate = excluded.click_rate,
			save_rate = excluded.save_rate,
			conversion_rate = excluded.conversion_rate,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at`,
		r.ID, r.TestID, r.VariantID, r.OwnerID, date, r.Impressions, r.Clicks,
		r.Saves, r.Conversions, r.Spend, r.Revenue, nullableFloat(r.ClickRate),
		nullableFloat(r.SaveRate), nullableFloat(r.ConversionRate), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily result: %w", err)
	}

	_, err = s.exec(ctx, tx,
		`UPDATE daily_results SET
			cumulative_impressions = (
				SELECT COALESCE(SUM(h.impressions), 0) FROM daily_results h
				WHERE h.test_id = daily_results.test_id
				  AND h.variant_id = daily_results.variant_id
				  AND h.result_date <= daily_results.result_date),
			cumulative_conversions = (
				SELECT COALESCE(SUM(h.conversions), 0) FROM daily_results h
				WHERE h.test_id = daily_results.test_id
				  AND h.variant_id = daily_results.variant_id
				  AND h.result_date <= daily_results.result_date)
		 WHERE test_id = ? AND variant_id = ? AND result_date >= ?`,
		r.TestID, r.VariantID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute cumulative totals: %w", err)
	}

	row := s.queryRow(ctx, tx,
		`SELECT `+resultColumns+` FROM daily_results
		 WHERE test_id = ? AND variant_id = ? AND result_date = ?`,
		r.TestID, r.VariantID, date,
	)
	stored, err := scanResult(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit daily result: %w", err)
	}
	return stored, nil
}

// ListDailyResults returns results ordered by date ascending. A positive
// Limit keeps the earliest rows.
func (s *SQLStore) ListDailyResults(ctx context.Context, filter ResultFilter) ([]*DailyResult, error) {
	query := `SELECT ` + resultColumns + ` FROM daily_results WHERE test_id = ?`
	args := []any{filter.TestID}
	if filter.VariantID != "" {
		query += ` AND variant_id = ?`
		args = append(args, filter.VariantID)
	}
	query += ` ORDER BY result_date, variant_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily results: %w", err)
	}
	defer rows.Close()

	var results []*DailyResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list daily results: %w", err)
	}
	return results, nil
}

func scanResult(row scanner) (*DailyResult, error) {
	var r DailyResult
	var date dateValue
	var clickRate, saveRate, convRate sql.NullFloat64
	var createdAt, updatedAt int64

	err := row.Scan(&r.ID, &r.TestID, &r.VariantID, &r.OwnerID, &date, &r.Impressions, &r.Clicks,
		&r.Saves, &r.Conversions, &r.Spend, &r.Revenue, &clickRate, &saveRate, &convRate,
		&r.CumulativeImpressions, &r.CumulativeConversions, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.ResultDate = date.Time
	r.ClickRate = floatPtr(clickRate)
	r.SaveRate = floatPtr(saveRate)
	r.ConversionRate = floatPtr(convRate)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &r, nil
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.queryRow(ctx, s.db, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// dateValue scans a DATE column (Postgres) or its text form (SQLite).
type dateValue struct {
	time.Time
}

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = Day(v)
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into a date", src)
	}
	return nil
}

func (d *dateValue) parse(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	return marshalPayload(items)
}

func nullableSummary(summary *ResultsSummary) (sql.NullString, error) {
	if summary == nil {
		return sql.NullString{}, nil
	}
	s, err := marshalPayload(summary)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal results summary: %w", err)
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func millis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullableText(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
