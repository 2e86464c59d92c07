// Package server exposes a running swap timeline over HTTP. Every
// endpoint is read-only
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mimic-swap/pkg/history"
	"mimic-swap/pkg/timeline"
)

type (
	// StateSource yields the latest published timeline state
	StateSource interface {
		State() timeline.State
	}

	// AttemptSource yields the attempt being recorded, if any
	AttemptSource interface {
		Current() (*history.Attempt, bool)
	}

	// Server implements the HTTP status surface of a swap
	Server struct {
		state    StateSource
		attempts AttemptSource
		log      zerolog.Logger
		http     *http.Server
	}

	// HealthResponse is returned by /health
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}

	// TimelineResponse wraps the state with derived flags
	TimelineResponse struct {
		timeline.State
		Completed bool   `json:"completed"`
		Failed    bool   `json:"failed"`
		Error     string `json:"error,omitempty"`
	}

	// ErrorResponse is the body of every non-2xx response
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
)

const (
	serviceName     = "mimic-swap"
	shutdownTimeout = 5 * time.Second
)

// Version is reported by /health
var Version = "0.1.0"

// NewServer creates a status server. attempts may be nil
func NewServer(state StateSource, attempts AttemptSource, log zerolog.Logger) *Server {
	return &Server{
		state:    state,
		attempts: attempts,
		log:      log.With().Str("component", "server").Logger(),
	}
}

// SetupRoutes configures and returns the HTTP router
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.logRequests)

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)

	tl := router.Group("/timeline")
	{
		tl.GET("", s.handleTimeline)
		tl.GET("/", s.handleTimeline)
		tl.GET("/steps/:stepID", s.handleStep)
		tl.GET("/attempt", s.handleAttempt)
	}

	return router
}

// Start serves on addr until Shutdown. It returns once the listener is up
// or failed
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Status server stopped")
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		s.log.Info().Str("addr", addr).Msg("Status server listening")
		return nil
	}
}

// Shutdown stops a started server
func (s *Server) Shutdown() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("took", time.Since(start)).
		Msg("Request")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Service: serviceName,
		Version: Version,
		Status:  "healthy",
	})
}

func (s *Server) handleTimeline(c *gin.Context) {
	state := s.state.State()
	res := TimelineResponse{
		State:     state,
		Completed: state.Completed(),
	}
	if step, ok := state.Failed(); ok {
		res.Failed = true
		res.Error = step.Error
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleStep(c *gin.Context) {
	id := timeline.StepID(c.Param("stepID"))

	step, ok := s.state.State().Step(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:  "Step not found: " + string(id),
			Status: http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, step)
}

func (s *Server) handleAttempt(c *gin.Context) {
	var (
		attempt *history.Attempt
		ok      bool
	)
	if s.attempts != nil {
		attempt, ok = s.attempts.Current()
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:  "No swap has been submitted yet",
			Status: http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, attempt)
}
