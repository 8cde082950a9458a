package marker

import "encoding/json"

// Result is the outcome of a completed extraction job.
//
// Blocks and Images are opaque payloads passed through from the remote
// service without interpretation. Both default to empty JSON objects when
// the remote omits them. A Result is immutable once produced and is cached
// verbatim as its JSON encoding.
type Result struct {
	Success bool            `json:"success"`
	Blocks  json.RawMessage `json:"blocks"`
	Images  json.RawMessage `json:"images"`
}

// Job is a handle to one remote asynchronous extraction task.
type Job struct {
	// CheckURL is the status endpoint polled until the job completes.
	CheckURL string
}

// statusComplete is the remote status value that terminates polling.
const statusComplete = "complete"

// emptyJSON substitutes for payload fields the remote omits.
var emptyJSON = json.RawMessage(`{}`)

// submitResponse is the remote's reply to a job submission.
type submitResponse struct {
	Success         bool   `json:"success"`
	Error           string `json:"error"`
	RequestCheckURL string `json:"request_check_url"`
}

// statusResponse is the remote's reply to a status poll.
type statusResponse struct {
	Status  string          `json:"status"`
	Success bool            `json:"success"`
	JSON    json.RawMessage `json:"json"`
	Images  json.RawMessage `json:"images"`
	Error   string          `json:"error"`
}
