package marker

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL sets the job-submission endpoint of the remote service.
// Defaults to the hosted Datalab Marker API.
func WithBaseURL(url string) Option {
	return func(c *Client) error {
		if url == "" {
			return errors.New("base URL must not be empty")
		}
		c.baseURL = url
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for submit and poll requests.
// The default client has a 60 second per-request timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.New("http client must not be nil")
		}
		c.httpClient = httpClient
		return nil
	}
}

// WithPollInterval sets the fixed delay between status polls.
// Defaults to 2 seconds.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.pollInterval = interval
		return nil
	}
}

// WithMaxPolls sets the maximum number of status polls per job.
// Together with the poll interval this bounds the worst-case wait for a
// [Client.Wait] call. Defaults to 300.
func WithMaxPolls(n int) Option {
	return func(c *Client) error {
		if n <= 0 {
			return errors.New("max polls must be positive")
		}
		c.maxPolls = n
		return nil
	}
}

// WithLogger sets a logger for the client.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}
