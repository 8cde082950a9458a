package marker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// errorBodyLimit caps how much of a rejecting response body is read into
// the returned error message.
const errorBodyLimit = 8 << 10

// SubmitOption configures a Submit operation.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	langs                  string
	forceOCR               bool
	paginate               bool
	outputFormat           string
	useLLM                 bool
	stripExistingOCR       bool
	disableImageExtraction bool
}

func defaultSubmitConfig() submitConfig {
	return submitConfig{
		langs:        "English",
		paginate:     true,
		outputFormat: "json",
	}
}

// SubmitWithLanguages sets the language hint for extraction.
// Multiple languages are comma-separated. Defaults to "English".
func SubmitWithLanguages(langs string) SubmitOption {
	return func(cfg *submitConfig) {
		cfg.langs = langs
	}
}

// SubmitWithOutputFormat sets the requested output format. Defaults to
// "json", the only format whose payload this package passes through whole.
func SubmitWithOutputFormat(format string) SubmitOption {
	return func(cfg *submitConfig) {
		cfg.outputFormat = format
	}
}

// SubmitWithForceOCR forces OCR on every page, even pages with extractable
// text.
func SubmitWithForceOCR() SubmitOption {
	return func(cfg *submitConfig) {
		cfg.forceOCR = true
	}
}

// SubmitWithLLM enables the remote's LLM-assisted extraction mode.
func SubmitWithLLM() SubmitOption {
	return func(cfg *submitConfig) {
		cfg.useLLM = true
	}
}

// SubmitWithStripExistingOCR discards OCR text already embedded in the
// document and re-recognizes from scratch.
func SubmitWithStripExistingOCR() SubmitOption {
	return func(cfg *submitConfig) {
		cfg.stripExistingOCR = true
	}
}

// SubmitWithoutPagination disables per-page segmentation of the output.
func SubmitWithoutPagination() SubmitOption {
	return func(cfg *submitConfig) {
		cfg.paginate = false
	}
}

// SubmitWithoutImages disables image extraction.
func SubmitWithoutImages() SubmitOption {
	return func(cfg *submitConfig) {
		cfg.disableImageExtraction = true
	}
}

// Submit sends a document to the remote service and returns a handle to the
// created extraction job.
//
// Success requires an HTTP 200 reply whose body reports success; any other
// outcome is a terminal [*RemoteError] with no retry.
func (c *Client) Submit(ctx context.Context, name string, r io.Reader, opts ...SubmitOption) (*Job, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := defaultSubmitConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	body, contentType, err := encodeSubmitForm(name, r, cfg)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	c.log().Debug("submitting document", "name", name, "langs", cfg.langs, "output_format", cfg.outputFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode submit reply: %w", err)
	}
	if !sr.Success {
		msg := sr.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &RemoteError{Message: msg}
	}
	if sr.RequestCheckURL == "" {
		return nil, fmt.Errorf("submit reply missing request_check_url")
	}

	c.log().Debug("job created", "check_url", sr.RequestCheckURL)

	return &Job{CheckURL: sr.RequestCheckURL}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, `\"`)

// encodeSubmitForm builds the multipart submission body: the document part
// plus the extraction flags the remote expects as form fields.
func encodeSubmitForm(name string, r io.Reader, cfg submitConfig) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	header.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"langs":                    cfg.langs,
		"force_ocr":                strconv.FormatBool(cfg.forceOCR),
		"paginate":                 strconv.FormatBool(cfg.paginate),
		"output_format":            cfg.outputFormat,
		"use_llm":                  strconv.FormatBool(cfg.useLLM),
		"strip_existing_ocr":       strconv.FormatBool(cfg.stripExistingOCR),
		"disable_image_extraction": strconv.FormatBool(cfg.disableImageExtraction),
	}
	for field, value := range fields {
		if err := w.WriteField(field, value); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
