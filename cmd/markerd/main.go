// markerd serves the PDF extraction API: uploads are hashed, answered from
// the result cache when possible, and submitted to the remote Marker
// service on a miss.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docfold/marker"
	"github.com/docfold/marker/cache/disk"
	"github.com/docfold/marker/server"
)

type config struct {
	addr          string
	apiKey        string
	baseURL       string
	allowedOrigin string
	uploadDir     string
	cacheDir      string
	maxUploadMB   int64
	cacheMaxMB    int64
	pollInterval  time.Duration
	maxPolls      int
	uploadMaxAge  time.Duration
	cacheMaxAge   time.Duration
	coalesce      bool
	validate      bool
	compress      bool
}

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	// The logger comes up before the rest of the config so that warnings
	// about malformed values land on the configured handler.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg := loadConfig(logger)

	if cfg.apiKey == "" {
		logger.Warn("DATALAB_API_KEY is not set; uploads will fail until it is configured")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("markerd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	var cacheOpts []disk.Option
	if cfg.compress {
		cacheOpts = append(cacheOpts, disk.WithCompression())
	}
	if cfg.cacheMaxMB > 0 {
		cacheOpts = append(cacheOpts, disk.WithMaxBytes(cfg.cacheMaxMB<<20))
	}
	results, err := disk.New(cfg.cacheDir, cacheOpts...)
	if err != nil {
		return fmt.Errorf("create result cache: %w", err)
	}

	clientOpts := []marker.Option{
		marker.WithPollInterval(cfg.pollInterval),
		marker.WithMaxPolls(cfg.maxPolls),
		marker.WithLogger(logger),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, marker.WithBaseURL(cfg.baseURL))
	}
	client, err := marker.NewClient(cfg.apiKey, clientOpts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	proc, err := marker.NewProcessor(client, marker.ProcessorConfig{
		Cache:        results,
		UploadDir:    cfg.uploadDir,
		UploadMaxAge: cfg.uploadMaxAge,
		CacheMaxAge:  cfg.cacheMaxAge,
		Coalesce:     cfg.coalesce,
		ValidatePDFs: cfg.validate,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	srv, err := server.New(proc, server.Config{
		AllowedOrigin:  cfg.allowedOrigin,
		MaxUploadBytes: cfg.maxUploadMB << 20,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No write timeout: a response may legitimately wait out the whole
		// polling budget.
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("markerd listening", "addr", cfg.addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func loadConfig(logger *slog.Logger) config {
	return config{
		addr:          getenv("ADDR", ":8000"),
		apiKey:        os.Getenv("DATALAB_API_KEY"),
		baseURL:       os.Getenv("MARKER_URL"),
		allowedOrigin: getenv("ALLOWED_ORIGIN", "http://localhost:3000"),
		uploadDir:     getenv("UPLOAD_DIR", "temp_uploads"),
		cacheDir:      getenv("CACHE_DIR", "cache"),
		maxUploadMB:   getenvInt64(logger, "MAX_UPLOAD_MB", 50),
		cacheMaxMB:    getenvInt64(logger, "CACHE_MAX_MB", 0),
		pollInterval:  getenvDuration(logger, "POLL_INTERVAL", 2*time.Second),
		maxPolls:      int(getenvInt64(logger, "MAX_POLLS", 300)),
		uploadMaxAge:  getenvDuration(logger, "UPLOAD_MAX_AGE", time.Hour),
		cacheMaxAge:   getenvDuration(logger, "CACHE_MAX_AGE", 24*time.Hour),
		coalesce:      getenvBool(logger, "COALESCE_REQUESTS", false),
		validate:      getenvBool(logger, "VALIDATE_UPLOADS", false),
		compress:      getenvBool(logger, "CACHE_COMPRESSION", false),
	}
}

// getenv returns the value of key, or fallback when unset or empty.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(logger *slog.Logger, key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn("invalid integer in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}

func getenvBool(logger *slog.Logger, key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid boolean in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return b
}

func getenvDuration(logger *slog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("invalid duration in environment, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
