package marker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Wait polls a job's status endpoint until the remote reports completion.
//
// Polling is fixed-interval: Wait sleeps one interval before every poll,
// including the first, and gives up with [ErrPollTimeout] once the attempt
// budget is exhausted. A completed job that the remote marks unsuccessful
// yields a [*RemoteError] carrying the remote's message.
//
// Transient non-200 poll replies with a decodable body are treated as
// still pending; only an undecodable reply aborts the wait early.
func (c *Client) Wait(ctx context.Context, job *Job) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		st, err := c.checkStatus(ctx, job.CheckURL)
		if err != nil {
			return nil, err
		}
		if st.Status != statusComplete {
			c.log().Debug("extraction pending", "attempt", attempt, "status", st.Status)
			continue
		}

		if !st.Success {
			msg := st.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, &RemoteError{Message: msg}
		}

		c.log().Debug("extraction complete", "attempts", attempt)

		blocks := st.JSON
		if len(blocks) == 0 {
			blocks = emptyJSON
		}
		images := st.Images
		if len(images) == 0 {
			images = emptyJSON
		}
		return &Result{Success: true, Blocks: blocks, Images: images}, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrPollTimeout, c.maxPolls)
}

// SubmitAndWait submits a document and blocks until the extraction job
// completes, fails, or the polling budget runs out.
func (c *Client) SubmitAndWait(ctx context.Context, name string, r io.Reader, opts ...SubmitOption) (*Result, error) {
	job, err := c.Submit(ctx, name, r, opts...)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, job)
}

// checkStatus issues one status poll. The body is decoded regardless of the
// HTTP status code: the remote reports job state in the payload, and a
// non-complete payload keeps the poll loop going.
func (c *Client) checkStatus(ctx context.Context, checkURL string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check status: %w", err)
	}
	defer resp.Body.Close()

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status reply: %w", err)
	}
	return &st, nil
}
