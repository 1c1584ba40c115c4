// Package schedule exposes the optimizer and the runner over HTTP.
package schedule

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/optimize"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/logger"
	"github.com/kilianp07/bess-scheduler/infra/store"
)

// Config holds the listener settings.
type Config struct {
	Address string `json:"address"`
	// Token enables bearer authentication on /api/v1 when set.
	Token          string   `json:"token"`
	AllowedOrigins []string `json:"allowed_origins"`
	Debug          bool     `json:"debug"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

// Runner is the subset of *scheduler.Runner used by the API.
type Runner interface {
	RunSequence(ctx context.Context, start time.Time, n int, windows []model.DispatchWindow) ([]model.ScheduleResult, error)
	Compare(ctx context.Context, start time.Time, windows []model.DispatchWindow) (scheduler.Comparison, error)
}

// ScheduleReader returns persisted schedule steps.
type ScheduleReader interface {
	Query(ctx context.Context, start, end time.Time) ([]store.Row, error)
}

// Deps are the collaborators of the handlers. Runner and Schedules may be
// nil, their endpoints then answer 503.
type Deps struct {
	Solver    optimize.Solver
	Options   optimize.Options
	Runner    Runner
	Schedules ScheduleReader
	Log       logger.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	deps    Deps
	engine  *gin.Engine
	handler http.Handler
	log     logger.Logger
}

// NewServer builds the router.
func NewServer(cfg Config, deps Deps) *Server {
	cfg.SetDefaults()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Log
	if log == nil {
		log = logger.New("api")
	}
	s := &Server{cfg: cfg, deps: deps, engine: gin.New(), log: log}
	s.engine.Use(s.recovery(), s.requestLog())
	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}).Handler(s.engine)
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.engine.Group("/api/v1", s.auth())
	{
		api.POST("/optimize", s.optimize)
		api.POST("/runs", s.runs)
		api.POST("/compare", s.compare)
		api.GET("/schedules", s.schedules)
	}
	s.engine.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "NOT_FOUND", "no route for "+c.Request.URL.Path)
	})
}

// Handler returns the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Address, Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API listening on %s", s.cfg.Address)
		errCh <- srv.ListenAndServe()
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
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Token == "" {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") || strings.TrimPrefix(h, "Bearer ") != s.cfg.Token {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
			return
		}
		c.Next()
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.log.Errorf("panic serving %s: %v", c.Request.URL.Path, recovered)
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
	})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		s.log.Debugw("request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(began).String(),
		})
	}
}
