// Package server exposes the downloader over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"ytaudio/internal/download"
	"ytaudio/internal/store"
)

// ServiceName is reported by /health.
const ServiceName = "youtube-audio-downloader"

// Downloader runs one orchestrated download.
type Downloader interface {
	Run(ctx context.Context, targetURL string) (*download.Outcome, error)
}

// Options configures the HTTP layer.
type Options struct {
	Addr              string
	RequestsPerSecond float64
	Burst             int
}

type stats struct {
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// Server is the HTTP front of the downloader.
type Server struct {
	downloader Downloader
	files      *store.Store
	limiter    *rate.Limiter
	log        *slog.Logger
	started    time.Time
	stats      stats
	srv        *http.Server
}

// New builds the server and its routes. A non-positive RequestsPerSecond
// disables the global rate limit.
func New(d Downloader, files *store.Store, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	s := &Server{
		downloader: d,
		files:      files,
		limiter:    rate.NewLimiter(limit, burst),
		log:        logger.With("component", "http"),
		started:    time.Now(),
	}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Downloads can legitimately take several yt-dlp timeouts.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/download", s.rateLimit(s.handleDownload))
	mux.Handle("/metrics", promhttp.Handler())
	return s.logging(cors(mux))
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
