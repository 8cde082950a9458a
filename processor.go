package marker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/singleflight"

	"github.com/docfold/marker/cache"
	"github.com/docfold/marker/internal/uploads"
)

const (
	// defaultUploadMaxAge is how long a transient upload may linger before
	// a sweep removes it.
	defaultUploadMaxAge = 60 * time.Minute

	// defaultCacheMaxAge is how long a cached result stays valid.
	defaultCacheMaxAge = 24 * time.Hour
)

// ProcessorConfig carries the processor's collaborators and tunables.
// Everything is passed in explicitly; the processor reads no environment.
type ProcessorConfig struct {
	// Cache stores completed extraction results by content digest. Required.
	Cache cache.Cache

	// UploadDir holds transient per-request upload files. Required.
	UploadDir string

	// UploadMaxAge bounds how long stale uploads survive between sweeps.
	// Defaults to one hour.
	UploadMaxAge time.Duration

	// CacheMaxAge bounds how long cached results survive between sweeps.
	// Defaults to 24 hours.
	CacheMaxAge time.Duration

	// Coalesce shares one remote submission among concurrent requests for
	// byte-identical content. Off by default: redundant duplicate
	// submissions are accepted unless callers opt in.
	Coalesce bool

	// ValidatePDFs structurally validates uploads before submission,
	// rejecting corrupt documents without spending a remote extraction.
	ValidatePDFs bool

	// Logger receives workflow logs. If nil, logs are discarded.
	Logger *slog.Logger
}

// Processor runs the full workflow for one uploaded document: persist it
// transiently, hash it, consult the result cache, extract remotely on a
// miss, cache the outcome, and clean up.
type Processor struct {
	client       *Client
	cache        cache.Cache
	uploads      *uploads.Store
	uploadMaxAge time.Duration
	cacheMaxAge  time.Duration
	validate     bool
	logger       *slog.Logger

	// group is non-nil only when coalescing is enabled.
	group *singleflight.Group
}

// NewProcessor creates a processor that extracts documents through client.
func NewProcessor(client *Client, cfg ProcessorConfig) (*Processor, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("result cache is required")
	}
	store, err := uploads.New(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		client:       client,
		cache:        cfg.Cache,
		uploads:      store,
		uploadMaxAge: cfg.UploadMaxAge,
		cacheMaxAge:  cfg.CacheMaxAge,
		validate:     cfg.ValidatePDFs,
		logger:       cfg.Logger,
	}
	if p.uploadMaxAge <= 0 {
		p.uploadMaxAge = defaultUploadMaxAge
	}
	if p.cacheMaxAge <= 0 {
		p.cacheMaxAge = defaultCacheMaxAge
	}
	if cfg.Coalesce {
		p.group = &singleflight.Group{}
	}
	return p, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Process handles one uploaded document end to end and returns its
// extraction result.
//
// Identical bytes are served from the cache without contacting the remote
// service. The transient copy of the upload is deleted on every exit path,
// and each call finishes with a sweep of stale uploads and expired cache
// entries, so the janitor needs no schedule of its own.
func (p *Processor) Process(ctx context.Context, filename string, src io.Reader) (*Result, error) {
	defer p.sweep()

	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, filename)
	}
	if p.client.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	path, err := p.uploads.Save(src)
	if err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}
	defer func() {
		if err := p.uploads.Remove(path); err != nil {
			p.log().Warn("removing upload failed", "path", path, "error", err)
		}
	}()

	dgst, err := hashFile(path)
	if err != nil {
		return nil, err
	}
	logger := p.log().With("digest", shortDigest(dgst))

	if res, ok := p.cached(dgst); ok {
		logger.Info("serving cached result")
		return res, nil
	}

	if p.group == nil {
		return p.extract(ctx, logger, filename, path, dgst)
	}

	// Concurrent requests for the same content share a single extraction.
	v, err, shared := p.group.Do(dgst.String(), func() (any, error) {
		// Double-check the cache: another request may have completed
		// between our lookup and joining the flight.
		if res, ok := p.cached(dgst); ok {
			return res, nil
		}
		return p.extract(ctx, logger, filename, path, dgst)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("extraction shared with concurrent request")
	}
	res, _ := v.(*Result)
	return res, nil
}

// extract submits the persisted upload and waits for the remote job,
// caching the result on success.
func (p *Processor) extract(ctx context.Context, logger *slog.Logger, filename, path string, dgst digest.Digest) (*Result, error) {
	if p.validate {
		if err := validatePDF(path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	logger.Info("submitting for extraction", "name", filename)
	res, err := p.client.SubmitAndWait(ctx, filename, f)
	if err != nil {
		return nil, err
	}

	entry, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := p.cache.Put(dgst, entry); err != nil {
		// The result is still good; a failed write only costs the next
		// identical request a re-extraction.
		logger.Warn("cache write failed", "error", err)
	}
	return res, nil
}

// cached returns the decoded result for a digest. Corrupt entries read as
// misses and are rewritten by the next successful extraction.
func (p *Processor) cached(dgst digest.Digest) (*Result, bool) {
	entry, ok := p.cache.Get(dgst)
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(entry, &res); err != nil {
		p.log().Warn("ignoring corrupt cache entry", "digest", shortDigest(dgst), "error", err)
		return nil, false
	}
	return &res, true
}

// sweep clears stale uploads and expired cache entries. It runs after every
// request, success or failure, so neither directory needs a background
// janitor.
func (p *Processor) sweep() {
	if n, err := p.uploads.Sweep(p.uploadMaxAge); err != nil {
		p.log().Warn("upload sweep failed", "error", err)
	} else if n > 0 {
		p.log().Debug("swept stale uploads", "removed", n)
	}

	if expirer, ok := p.cache.(cache.Expirer); ok {
		if n, err := expirer.EvictOlderThan(p.cacheMaxAge); err != nil {
			p.log().Warn("cache sweep failed", "error", err)
		} else if n > 0 {
			p.log().Debug("evicted expired cache entries", "removed", n)
		}
	}

	if pruner, ok := p.cache.(cache.Pruner); ok {
		if freed, err := pruner.Prune(); err != nil {
			p.log().Warn("cache prune failed", "error", err)
		} else if freed > 0 {
			p.log().Debug("pruned cache to size bound", "freed_bytes", freed)
		}
	}
}

// validatePDF runs pdfcpu's relaxed structural validation against a file.
func validatePDF(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.ValidateFile(path, conf)
}
