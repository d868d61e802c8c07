// Package api exposes the translation engine over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"codeberg.org/snonux/backtrans/internal/history"
	"codeberg.org/snonux/backtrans/internal/memory"
	"codeberg.org/snonux/backtrans/internal/provider"
	"codeberg.org/snonux/backtrans/internal/telemetry"
	"codeberg.org/snonux/backtrans/internal/translation"
)

const shutdownTimeout = 10 * time.Second

// Translator is the engine behind the API
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	BackTranslate(ctx context.Context, text, sourceLang, intermediateLang string) (*translation.BackTranslation, error)
	Stats() memory.Stats
	ClearCache()
	Provider() provider.ID
}

// HistoryStore records and lists backtranslations
type HistoryStore interface {
	Add(ctx context.Context, bt *translation.BackTranslation) (*history.Record, error)
	Search(ctx context.Context, query string, limit int) ([]history.Record, error)
}

// Config wires a Server. History and Metrics are optional.
type Config struct {
	Client  Translator
	History HistoryStore
	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// AllowOrigins lists CORS origins; empty allows all
	AllowOrigins []string

	DefaultSourceLang       string
	DefaultIntermediateLang string
	Version                 string
}

// Server is the HTTP front end
type Server struct {
	cfg    Config
	engine *gin.Engine
	logger *slog.Logger
}

// NewServer builds the router
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultSourceLang == "" {
		cfg.DefaultSourceLang = "en"
	}
	if cfg.DefaultIntermediateLang == "" {
		cfg.DefaultIntermediateLang = "ja"
	}

	s := &Server{cfg: cfg, engine: gin.New(), logger: cfg.Logger}
	s.engine.Use(gin.Recovery(), s.requestLogger(), cfg.Metrics.HTTPMetrics(), corsMiddleware(cfg.AllowOrigins))
	s.routes()
	return s
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	c := cors.DefaultConfig()
	c.AllowOrigins = origins
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	return cors.New(c)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(s.cfg.Metrics.Handler()))

	api := s.engine.Group("/api")
	api.POST("/translate", s.translate)
	api.POST("/backtranslate", s.backTranslate)
	api.GET("/cache/stats", s.cacheStats)
	api.DELETE("/cache", s.clearCache)
	api.GET("/history", s.listHistory)
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}
