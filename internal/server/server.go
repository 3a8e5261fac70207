// Package server exposes the analyzer over HTTP.
//
// Routes:
//
//	GET  /healthz                       liveness and store status
//	GET  /v1/flows                      names known to the source
//	GET  /v1/flows/:name/analysis       analyze a stored definition
//	GET  /v1/flows/:name/runs/latest    newest recorded run
//	POST /v1/analyze?format=&name=      analyze a posted definition
//
// Analysis errors map to status codes by the flow sentinel they wrap:
// ErrNotFound is 404 and ErrMalformedInput is 422.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pthm/flowscope/internal/ctxlog"
	"github.com/pthm/flowscope/internal/version"
	"github.com/pthm/flowscope/pkg/analyzer"
	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/source"
	"github.com/pthm/flowscope/pkg/store"
)

// MaxBodyBytes bounds a posted definition.
const MaxBodyBytes = 8 << 20

// Config configures a Server.
type Config struct {
	Source  source.Source
	Options analyzer.Options
	// Runs is optional. Without it, store=true requests and run lookups
	// fail with 503.
	Runs   *store.Store
	Logger *slog.Logger
}

// Server serves analyses over HTTP.
type Server struct {
	src    source.Source
	an     *analyzer.Analyzer
	runs   *store.Store
	logger *slog.Logger
	engine *gin.Engine
}

// New builds a Server and its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = ctxlog.Discard()
	}
	s := &Server{
		src:    cfg.Source,
		an:     analyzer.New(cfg.Source, cfg.Options),
		runs:   cfg.Runs,
		logger: logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.GET("/flows", s.listFlows)
	v1.GET("/flows/:name/analysis", s.flowAnalysis)
	v1.GET("/flows/:name/runs/latest", s.latestRun)
	v1.POST("/analyze", s.analyzePosted)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request and attaches the logger to the request
// context.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(ctxlog.WithLogger(c.Request.Context(), s.logger))
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// respondError sends a JSON error with the status implied by err.
func (s *Server) respondError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case flow.IsNotFoundErr(err):
		return http.StatusNotFound
	case flow.IsMalformedInputErr(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errNoStore = errors.New("no run store configured")

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok", "version": version.Short()}
	if s.runs != nil {
		st, err := s.runs.GetStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		body["store"] = st
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listFlows(c *gin.Context) {
	lister, ok := s.src.(source.Lister)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "source cannot list flows"})
		return
	}
	names, err := lister.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"flows": names})
}

func (s *Server) flowAnalysis(c *gin.Context) {
	a, stats, err := s.an.AnalyzeWithStats(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": a, "stats": stats})
}

func (s *Server) latestRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoStore.Error()})
		return
	}
	name := c.Param("name")
	rec, err := s.runs.Last(c.Request.Context(), name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if rec == nil {
		s.respondError(c, fmt.Errorf("%w: no recorded run for %s", flow.ErrNotFound, name))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) analyzePosted(c *gin.Context) {
	content, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(content) > MaxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "definition too large"})
		return
	}

	format := source.FormatJSON
	if f := c.Query("format"); f != "" {
		parsed, ok := source.ParseFormat(f)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", f)})
			return
		}
		format = parsed
	}

	raw := source.RawMetadata{
		Name:    c.DefaultQuery("name", "Posted_Flow"),
		Format:  format,
		Content: content,
		Version: flow.Version{Version: 1, LastModified: time.Now().UTC()},
		Origin:  "request",
	}
	a, err := s.an.AnalyzeRaw(c.Request.Context(), raw)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if c.Query("store") != "true" {
		c.JSON(http.StatusOK, gin.H{"analysis": a})
		return
	}
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoStore.Error()})
		return
	}
	rec, skipped, err := s.runs.Save(c.Request.Context(), a, store.Fingerprint(content, a), store.SaveOptions{
		Force: c.Query("force") == "true",
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": a, "run_id": rec.ID, "skipped": skipped})
}
