package marker

import (
	"errors"
	"fmt"
)

// Sentinel errors for extraction operations.
var (
	// ErrUnsupportedFile is returned when an upload's filename does not
	// indicate a PDF document.
	ErrUnsupportedFile = errors.New("marker: file is not a pdf")

	// ErrInvalidPDF is returned when structural validation rejects an upload
	// before it is submitted to the remote service.
	ErrInvalidPDF = errors.New("marker: invalid pdf")

	// ErrMissingAPIKey is returned when no API key is configured for the
	// remote extraction service.
	ErrMissingAPIKey = errors.New("marker: api key not configured")

	// ErrPollTimeout is returned when the polling budget is exhausted before
	// the remote job reports completion.
	ErrPollTimeout = errors.New("marker: extraction did not complete in time")
)

// RemoteError reports a terminal failure from the remote extraction service,
// either a rejected submission or a job that completed unsuccessfully.
type RemoteError struct {
	// StatusCode is the HTTP status of the rejecting response, or zero when
	// the remote reported failure in a 200 body.
	StatusCode int

	// Message is the remote's own error text.
	Message string
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("marker: remote returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("marker: remote extraction failed: %s", e.Message)
}
