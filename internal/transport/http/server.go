// Package statushttp exposes the read-only JSON surface consumed by
// dashboards and reporting: open positions, the account aggregate, the
// decision audit trail and the lifecycle event stream. No endpoint mutates
// engine state.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"alphapilot/internal/logger"
	"alphapilot/internal/position"
	"alphapilot/internal/store"

	"github.com/gin-gonic/gin"
)

// Server wraps the gin engine and its listener.
type Server struct {
	addr   string
	router *gin.Engine
	srv    *http.Server
}

// Config lists the server's read dependencies.
type Config struct {
	Addr      string
	Manager   *position.Manager
	Decisions store.PositionStore
	Events    store.EventStore
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("status http server requires a position manager")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &handlers{manager: cfg.Manager, decisions: cfg.Decisions, events: cfg.Events}
	router.GET("/healthz", h.handleHealth)
	api := router.Group("/api")
	api.GET("/positions", h.handlePositions)
	api.GET("/account", h.handleAccount)
	api.GET("/decisions", h.handleDecisions)
	api.GET("/events", h.handleEvents)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	go func() {
		logger.Infof("status http listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("status http server stopped: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

type handlers struct {
	manager   *position.Manager
	decisions store.PositionStore
	events    store.EventStore
}

func (h *handlers) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (h *handlers) handlePositions(c *gin.Context) {
	if c.Query("status") == "all" && h.decisions != nil {
		rows, err := h.decisions.RecentPositions(c.Request.Context(), limitParam(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"positions": rows})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": h.manager.OpenPositionsSnapshot()})
}

func (h *handlers) handleAccount(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Account())
}

func (h *handlers) handleDecisions(c *gin.Context) {
	if h.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision store unavailable"})
		return
	}
	rows, err := h.decisions.RecentDecisions(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": rows})
}

func (h *handlers) handleEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store unavailable"})
		return
	}
	rows, err := h.events.Recent(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || n <= 0 {
		return 50
	}
	if n > 500 {
		n = 500
	}
	return n
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("http %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}
