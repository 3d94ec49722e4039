package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/store"
)

type Options struct {
	Port      int
	Token     string // generated when empty
	TokenFile string
	RateLimit RateLimit
	Logger    *slog.Logger
}

type Server struct {
	engine    *experiment.Engine
	store     store.Store
	port      int
	token     string
	tokenFile string
	router    *gin.Engine
	limiter   *clientLimiter
	logger    *slog.Logger
	startTime time.Time
}

func New(engine *experiment.Engine, s store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	token := opts.Token
	if token == "" {
		token = generateToken()
	}

	srv := &Server{
		engine:    engine,
		store:     s,
		port:      opts.Port,
		token:     token,
		tokenFile: opts.TokenFile,
		router:    gin.New(),
		limiter:   newClientLimiter(opts.RateLimit),
		logger:    logger,
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), otelgin.Middleware("variant-goat"), s.requestLogger())

	// Public endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1", s.bearerAuth())
	api.POST("/tests", s.handleCreateTest)
	api.GET("/tests", s.handleListTests)
	api.GET("/tests/:id", s.handleGetTest)
	api.DELETE("/tests/:id", s.handleDeleteTest)
	api.POST("/tests/:id/start", s.handleTransition("start", s.engine.StartTest))
	api.POST("/tests/:id/pause", s.handleTransition("pause", s.engine.PauseTest))
	api.POST("/tests/:id/resume", s.handleTransition("resume", s.engine.ResumeTest))
	api.POST("/tests/:id/cancel", s.handleTransition("cancel", s.engine.CancelTest))
	api.POST("/tests/:id/results", s.rateLimit(), s.handleRecordResult)
	api.GET("/tests/:id/results", s.handleListResults)
	api.GET("/tests/:id/significance", s.handleSignificance)
	api.POST("/tests/:id/winner", s.handleDeclareWinner)
	api.POST("/sweep", s.handleSweep)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file",
				slog.String("path", s.tokenFile),
				slog.String("error", err.Error()))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.Int("port", s.port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

func generateToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("failed to generate token: %v", err))
	}
	return hex.EncodeToString(bytes)
}
