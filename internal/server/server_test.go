package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
	"github.com/headline-goat/variant-goat/internal/testutil"
)

const testToken = "secret-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, s store.Store, limit RateLimit) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := experiment.New(s, experiment.WithLogger(logger))
	return New(engine, s, Options{Token: testToken, RateLimit: limit, Logger: logger})
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createBody() map[string]any {
	return map[string]any{
		"owner_id":       "owner-1",
		"name":           "Fall pin titles",
		"test_type":      "headline",
		"primary_metric": "click_rate",
		"control":        map[string]any{"name": "Control", "content_type": "pin", "content_id": "pin-1"},
		"variants":       []map[string]any{{"name": "Numbered", "content_type": "pin", "content_id": "pin-2"}},
	}
}

func createTest(t *testing.T, srv *Server) experiment.TestWithVariants {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/v1/tests", createBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[experiment.TestWithVariants](t, rec)
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sqlite", resp.Driver)
}

func TestMetricsIsPublic(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "variantgoat_results_recorded_total")
}

func TestAPIRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})

	for _, header := range []string{"", "Bearer wrong", "Basic " + testToken, testToken} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestExperimentFlow(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})
	created := createTest(t, srv)
	id := created.Test.ID
	control, variant := created.Test.ControlVariantID, created.Test.TestVariantIDs[0]

	rec := do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, store.StatusRunning, decode[experiment.TestWithVariants](t, rec).Test.Status)

	for _, r := range []map[string]any{
		{"variant_id": control, "date": "2026-03-01", "impressions": 1000, "clicks": 50, "spend": "12.50"},
		{"variant_id": variant, "date": "2026-03-01", "impressions": 1000, "clicks": 80, "spend": 12.5},
	} {
		rec = do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/results", r)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/tests/"+id+"/results?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[struct {
		Results []store.DailyResult `json:"results"`
	}](t, rec)
	assert.Len(t, results.Results, 2)

	rec = do(t, srv, http.MethodGet, "/api/v1/tests/"+id+"/significance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verdict := decode[experiment.SignificanceResult](t, rec)
	assert.True(t, verdict.IsSignificant)
	assert.Equal(t, variant, verdict.WinnerVariantID)

	rec = do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/winner", map[string]any{
		"variant_id": variant, "confidence": verdict.Confidence,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[experiment.TestWithVariants](t, rec)
	assert.Equal(t, store.StatusCompleted, done.Test.Status)
	require.NotNil(t, done.Test.ResultsSummary)
	assert.Equal(t, store.DeclaredManual, done.Test.ResultsSummary.DeclaredBy)

	rec = do(t, srv, http.MethodGet, "/api/v1/tests?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Tests []store.Test `json:"tests"`
	}](t, rec)
	assert.Len(t, list.Tests, 1)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})
	created := createTest(t, srv)
	id := created.Test.ID

	body := createBody()
	body["primary_metric"] = "bounce_rate"
	rec := do(t, srv, http.MethodPost, "/api/v1/tests", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "primary_metric", decode[map[string]any](t, rec)["field"])

	rec = do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "draft", decode[map[string]any](t, rec)["status"])

	rec = do(t, srv, http.MethodGet, "/api/v1/tests/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/results", map[string]any{"impressions": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/results", map[string]any{
		"variant_id": created.Test.ControlVariantID, "date": "03/01/2026",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/tests/"+id+"/results?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/v1/tests/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodDelete, "/api/v1/tests/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenStore struct {
	store.Store
}

func (brokenStore) ListTests(context.Context, store.TestFilter) ([]*store.Test, error) {
	return nil, errors.New("connection reset by peer at 10.0.0.3")
}

func TestStoreFailureIsNotLeaked(t *testing.T) {
	srv := newTestServer(t, brokenStore{testutil.SetupTestStore(t)}, RateLimit{})

	rec := do(t, srv, http.MethodGet, "/api/v1/tests", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestResultIngestionIsRateLimited(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{PerSecond: 0.001, Burst: 1})
	created := createTest(t, srv)
	path := "/api/v1/tests/" + created.Test.ID + "/results"
	body := map[string]any{"variant_id": created.Test.ControlVariantID, "impressions": 10}

	rec := do(t, srv, http.MethodPost, path, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodPost, path, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other endpoints are unaffected.
	rec = do(t, srv, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSweepEndpoint(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})
	created := createTest(t, srv)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/v1/tests/"+created.Test.ID+"/start", nil).Code)

	rec := do(t, srv, http.MethodPost, "/api/v1/sweep", map[string]any{"auto_declare": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[experiment.SweepReport](t, rec)
	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 0, report.Declared)
}

func TestResultCountsAboveImpressionsRejected(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})
	created := createTest(t, srv)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/v1/tests/"+created.Test.ID+"/start", nil).Code)

	rec := do(t, srv, http.MethodPost, "/api/v1/tests/"+created.Test.ID+"/results", map[string]any{
		"variant_id": created.Test.ControlVariantID, "impressions": 10, "clicks": 11,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "clicks", decode[map[string]any](t, rec)["field"])
}

func TestEngagementAboveImpressionsHasVerdictBody(t *testing.T) {
	srv := newTestServer(t, testutil.SetupTestStore(t), RateLimit{})
	body := createBody()
	body["primary_metric"] = "engagement_rate"
	rec := do(t, srv, http.MethodPost, "/api/v1/tests", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[experiment.TestWithVariants](t, rec)
	id := created.Test.ID
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/start", nil).Code)

	for _, r := range []map[string]any{
		{"variant_id": created.Test.ControlVariantID, "impressions": 1000, "clicks": 600, "saves": 600},
		{"variant_id": created.Test.TestVariantIDs[0], "impressions": 1000, "clicks": 500, "saves": 400},
	} {
		rec = do(t, srv, http.MethodPost, "/api/v1/tests/"+id+"/results", r)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/tests/"+id+"/significance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.Bytes())
	verdict := decode[experiment.SignificanceResult](t, rec)
	assert.True(t, verdict.InsufficientData)
	assert.False(t, verdict.IsSignificant)
}
