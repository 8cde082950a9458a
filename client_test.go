package marker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote stands in for the extraction service: a submit endpoint that
// issues check URLs and a status endpoint that reports "processing" a
// configurable number of times before serving the final status.
type fakeRemote struct {
	server *httptest.Server

	mu           sync.Mutex
	submits      int
	polls        int
	pendingPolls int
	status       statusResponse
	submitStatus int    // non-zero forces an HTTP error reply to submissions
	submitBody   string // non-empty overrides the submit reply body
	pollStatus   int    // non-zero sets the HTTP status of pending polls
	pollBody     string // non-empty overrides every poll reply body
	lastSubmit   submitCapture
}

// submitCapture records what the fake remote saw in a submission.
type submitCapture struct {
	apiKey      string
	filename    string
	contentType string
	content     []byte
	fields      map[string]string
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()

	f := &fakeRemote{
		status: statusResponse{
			Status:  statusComplete,
			Success: true,
			JSON:    json.RawMessage(`{"children":[{"id":"page-1"}]}`),
			Images:  json.RawMessage(`{"figure-1":"aGVsbG8="}`),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /marker", f.handleSubmit)
	mux.HandleFunc("GET /marker/check", f.handleStatus)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRemote) url() string {
	return f.server.URL + "/marker"
}

func (f *fakeRemote) handleSubmit(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++

	capture := submitCapture{
		apiKey: r.Header.Get("X-Api-Key"),
		fields: make(map[string]string),
	}
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		for field, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				capture.fields[field] = values[0]
			}
		}
		if headers := r.MultipartForm.File["file"]; len(headers) > 0 {
			capture.filename = headers[0].Filename
			capture.contentType = headers[0].Header.Get("Content-Type")
			if file, err := headers[0].Open(); err == nil {
				capture.content, _ = io.ReadAll(file)
				file.Close()
			}
		}
	}
	f.lastSubmit = capture

	if f.submitStatus != 0 {
		http.Error(w, f.submitBody, f.submitStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if f.submitBody != "" {
		io.WriteString(w, f.submitBody)
		return
	}
	_ = json.NewEncoder(w).Encode(submitResponse{
		Success:         true,
		RequestCheckURL: f.server.URL + "/marker/check",
	})
}

func (f *fakeRemote) handleStatus(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++

	if f.pollBody != "" {
		io.WriteString(w, f.pollBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if f.polls <= f.pendingPolls {
		if f.pollStatus != 0 {
			w.WriteHeader(f.pollStatus)
		}
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "processing"})
		return
	}
	_ = json.NewEncoder(w).Encode(f.status)
}

func (f *fakeRemote) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeRemote) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeRemote) capture() submitCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSubmit
}

// newTestClient builds a client against the fake remote with a polling
// budget small enough for tests.
func newTestClient(t *testing.T, f *fakeRemote, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithBaseURL(f.url()),
		WithPollInterval(time.Millisecond),
		WithMaxPolls(50),
	}
	client, err := NewClient("test-key", append(base, opts...)...)
	require.NoError(t, err)
	return client
}

func TestSubmitSendsDocumentAndFlags(t *testing.T) {
	t.Parallel()

	f := newFakeRemote(t)
	client := newTestClient(t, f)

	job, err := client.Submit(context.Background(), "report.pdf", strings.NewReader("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, f.server.URL+"/marker/check", job.CheckURL)

	capture := f.capture()
	assert.Equal(t, "test-key", capture.apiKey)
	assert.Equal(t, "report.pdf", capture.filename)
	assert.Equal(t, "application/pdf", capture.contentType)
	assert.Equal(t, []byte("%PDF-1.4 fake"), capture.content)
	assert.Equal(t, map[string]string{
		"langs":                    "English",
		"force_ocr":                "false",
		"paginate":                 "true",
		"output_format":            "json",
		"use_llm":                  "false",
		"strip_existing_ocr":       "false",
		"disable_image_extraction": "false",
	}, capture.fields)
}

func TestSubmitOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       []SubmitOption
		wantFields map[string]string
	}{
		{
			name: "force OCR and strip existing",
			opts: []SubmitOption{SubmitWithForceOCR(), SubmitWithStripExistingOCR()},
			wantFields: map[string]string{
				"force_ocr":          "true",
				"strip_existing_ocr": "true",
			},
		},
		{
			name: "languages and output format",
			opts: []SubmitOption{SubmitWithLanguages("German,French"), SubmitWithOutputFormat("markdown")},
			wantFields: map[string]string{
				"langs":         "German,French",
				"output_format": "markdown",
			},
		},
		{
			name: "llm without pagination or images",
			opts: []SubmitOption{SubmitWithLLM(), SubmitWithoutPagination(), SubmitWithoutImages()},
			wantFields: map[string]string{
				"use_llm":                  "true",
				"paginate":                 "false",
				"disable_image_extraction": "true",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeRemote(t)
			client := newTestClient(t, f)

			_, err := client.Submit(context.Background(), "doc.pdf", strings.NewReader("content"), tt.opts...)
			require.NoError(t, err)

			capture := f.capture()
			for field, want := range tt.wantFields {
				assert.Equal(t, want, capture.fields[field], "field %s", field)
			}
		})
	}
}

func TestSubmitMissingAPIKey(t *testing.T) {
	t.Parallel()

	f := newFakeRemote(t)
	client, err := NewClient("", WithBaseURL(f.url()))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), "doc.pdf", strings.NewReader("content"))
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Zero(t, f.submitCount(), "no request should reach the remote")
}

func TestSubmitRemoteHTTPError(t *testing.T) {
	t.Parallel()

	f := newFakeRemote(t)
	f.submitStatus = http.StatusBadGateway
	f.submitBody = "upstream unavailable"
	client := newTestClient(t, f)

	_, err := client.Submit(context.Background(), "doc.pdf", strings.NewReader("content"))

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadGateway, remoteErr.StatusCode)
	assert.Contains(t, remoteErr.Message, "upstream unavailable")
}

func TestSubmitRejected(t *testing.T) {
	t.Parallel()

	f := newFakeRemote(t)
	f.submitBody = `{"success": false, "error": "unsupported document"}`
	client := newTestClient(t, f)

	_, err := client.Submit(context.Background(), "doc.pdf", strings.NewReader("content"))

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Zero(t, remoteErr.StatusCode)
	assert.Equal(t, "unsupported document", remoteErr.Message)
}

func TestSubmitRejectedWithoutMessage(t *testing.T) {
	t.Parallel()

	f := newFakeRemote(t)
	f.submitBody = `{"success": false}`
	client := newTestClient(t, f)

	_, err := client.Submit(context.Background(), "doc.pdf", strings.NewReader("content"))

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "unknown error", remoteErr.Message)
}

func TestSubmitMissingCheckURL(t *testing.T) {
	t.Parallel()

	f := newFakeRemote(t)
	f.submitBody = `{"success": true}`
	client := newTestClient(t, f)

	_, err := client.Submit(context.Background(), "doc.pdf", strings.NewReader("content"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_check_url")

	var remoteErr *RemoteError
	assert.False(t, errors.As(err, &remoteErr), "malformed replies are not remote rejections")
}

func TestEncodeSubmitFormEscapesFilename(t *testing.T) {
	t.Parallel()

	body, contentType, err := encodeSubmitForm(`we"ird.pdf`, bytes.NewReader([]byte("x")), defaultSubmitConfig())
	require.NoError(t, err)
	assert.Contains(t, contentType, "multipart/form-data")
	assert.Contains(t, body.String(), `filename="we\"ird.pdf"`)
}
