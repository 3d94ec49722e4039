package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	Driver        string `json:"driver,omitempty"`
	TestsCount    int    `json:"tests_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}

	tests, err := s.store.ListTests(ctx, store.TestFilter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	resp := HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if d, ok := s.store.(interface{ Driver() string }); ok {
		resp.Driver = d.Driver()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateTest(c *gin.Context) {
	var req experiment.CreateTestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	created, err := s.engine.CreateTest(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListTests(c *gin.Context) {
	filter := store.TestFilter{
		Status:  store.TestStatus(c.Query("status")),
		OwnerID: c.Query("owner"),
	}
	tests, err := s.engine.GetTests(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if tests == nil {
		tests = []*store.Test{}
	}
	c.JSON(http.StatusOK, gin.H{"tests": tests})
}

func (s *Server) handleGetTest(c *gin.Context) {
	tv, err := s.engine.GetTestWithVariants(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tv)
}

func (s *Server) handleDeleteTest(c *gin.Context) {
	if err := s.engine.DeleteTest(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleTransition runs a lifecycle operation and responds with the test
// as stored afterwards.
func (s *Server) handleTransition(op string, apply func(context.Context, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := apply(c.Request.Context(), id); err != nil {
			s.writeError(c, err)
			return
		}
		tv, err := s.engine.GetTestWithVariants(c.Request.Context(), id)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tv)
	}
}

type recordResultRequest struct {
	VariantID string `json:"variant_id" binding:"required"`
	Date      string `json:"date"` // YYYY-MM-DD, today when empty
	experiment.DayMetrics
}

func (s *Server) handleRecordResult(c *gin.Context) {
	var req recordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: variant_id is required"})
		return
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse(store.DateLayout, req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "field": "date"})
			return
		}
		date = parsed
	}

	result, err := s.engine.RecordResult(c.Request.Context(), c.Param("id"), req.VariantID, req.DayMetrics, date)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListResults(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer", "field": "limit"})
			return
		}
		limit = n
	}

	results, err := s.engine.GetTestResults(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if results == nil {
		results = []*store.DailyResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleSignificance(c *gin.Context) {
	res, err := s.engine.CalculateSignificanceFor(c.Request.Context(), c.Param("id"), c.Query("variant_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type declareWinnerRequest struct {
	VariantID  string   `json:"variant_id" binding:"required"`
	Confidence *float64 `json:"confidence" binding:"required"`
}

func (s *Server) handleDeclareWinner(c *gin.Context) {
	var req declareWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "variant_id and confidence are required"})
		return
	}

	id := c.Param("id")
	if err := s.engine.DeclareWinner(c.Request.Context(), id, req.VariantID, *req.Confidence); err != nil {
		s.writeError(c, err)
		return
	}
	tv, err := s.engine.GetTestWithVariants(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tv)
}

type sweepRequest struct {
	AutoDeclare bool   `json:"auto_declare"`
	Concurrency int    `json:"concurrency"`
	OwnerID     string `json:"owner_id"`
}

func (s *Server) handleSweep(c *gin.Context) {
	var req sweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	}

	report, err := s.engine.Sweep(c.Request.Context(), experiment.SweepOptions{
		Concurrency: req.Concurrency,
		AutoDeclare: req.AutoDeclare,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// writeError renders engine errors. Store failures are logged by the
// engine and reported without detail.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr     *experiment.ValidationError
		conflict *experiment.ConflictError
		notFound *experiment.NotFoundError
		perr     *experiment.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "status": conflict.Status})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": perr.Error()})
	default:
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
