// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/pipeline"
	"github.com/KaramelBytes/statm8/internal/publish"
)

// Pipeline is the part of *pipeline.Pipeline the server drives.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Stream(ctx context.Context, req pipeline.Request, emit pipeline.EmitFunc) error
}

// Config holds server settings.
type Config struct {
	Addr       string
	UploadDir  string
	OutputRoot string
	// MaxUploadBytes caps /analyze request bodies (default 100 MiB).
	MaxUploadBytes int64
	Profile        analysis.Options
	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	pipeline Pipeline
	recorder *publish.Recorder
	logger   *zap.Logger
}

// New returns a Server. recorder may be nil.
func New(cfg Config, p Pipeline, recorder *publish.Recorder, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = filepath.Join("outputs", "plots")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	if cfg.Profile.SampleRows <= 0 && cfg.Profile.SampleValues <= 0 {
		cfg.Profile = analysis.DefaultOptions()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, pipeline: p, recorder: recorder, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RealIP,
		requestID,
		s.logRequests,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           600,
		}),
	)

	r.Get("/", s.handleRoot)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/generate-eda", s.handleGenerate)
	r.Post("/generate-eda-stream", s.handleGenerateStream)
	r.Get("/list-plots", s.handleListPlots)
	return r
}

// Serve listens on the configured address and blocks until ctx is canceled,
// then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting server", zap.String("addr", ln.Addr().String()))

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
