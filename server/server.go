// Package server exposes the document extraction workflow over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/docfold/marker"
)

// defaultMaxUploadBytes caps request bodies when no limit is configured.
const defaultMaxUploadBytes = 50 << 20

// Config carries the HTTP surface's settings.
type Config struct {
	// AllowedOrigin is the single origin permitted by CORS. Required.
	AllowedOrigin string

	// MaxUploadBytes caps the accepted request body size.
	// Defaults to 50 MiB.
	MaxUploadBytes int64

	// Logger receives request logs. If nil, logs are discarded.
	Logger *slog.Logger
}

// Server routes API requests into a [marker.Processor].
type Server struct {
	processor *marker.Processor
	origin    string
	maxBytes  int64
	logger    *slog.Logger
}

// New creates a server around a processor.
func New(processor *marker.Processor, cfg Config) (*Server, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.AllowedOrigin == "" {
		return nil, errors.New("allowed origin is required")
	}
	s := &Server{
		processor: processor,
		origin:    cfg.AllowedOrigin,
		maxBytes:  cfg.MaxUploadBytes,
		logger:    cfg.Logger,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxUploadBytes
	}
	return s, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Handler returns the service's HTTP handler: the API routes wrapped in a
// CORS layer that trusts exactly one origin.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process-pdf", s.handleProcessPDF)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}
