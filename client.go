package marker

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultBaseURL is the Datalab Marker job-submission endpoint.
	defaultBaseURL = "https://www.datalab.to/api/v1/marker"

	// defaultPollInterval is the fixed delay between status polls.
	defaultPollInterval = 2 * time.Second

	// defaultMaxPolls bounds the polling budget. Together with the interval
	// this caps the worst-case wait (300 x 2s = 10 minutes).
	defaultMaxPolls = 300

	// defaultHTTPTimeout bounds a single submit or poll request.
	defaultHTTPTimeout = 60 * time.Second
)

// Client talks to the remote extraction service: it submits documents and
// polls the resulting jobs until they complete.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

// NewClient creates a client for the remote extraction service.
//
// An empty API key is permitted at construction so a service can boot
// without credentials; operations then fail with [ErrMissingAPIKey].
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
