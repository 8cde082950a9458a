package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docfold/marker"
)

// errorResponse is the error payload for every failed request.
type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// handleProcessPDF accepts one multipart PDF upload and replies with its
// extraction result.
func (s *Server) handleProcessPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, `Multipart field "file" is required`)
		return
	}
	defer file.Close()

	// The job keeps running to completion server-side even if the caller
	// disconnects; the polling budget is the only bound.
	res, err := s.processor.Process(context.WithoutCancel(r.Context()), header.Filename, file)
	if err != nil {
		s.writeProcessError(w, r, err)
		return
	}

	s.log().Info("document processed", "name", header.Filename)
	s.writeJSON(w, http.StatusOK, res)
}

// handleHealth reports liveness. No side effects.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

// writeProcessError translates workflow failures into API statuses:
// invalid input and remote rejections are 400s, a missing credential or
// anything unexpected is a 500, and an exhausted polling budget is a 408.
func (s *Server) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	var remoteErr *marker.RemoteError
	switch {
	case errors.Is(err, marker.ErrUnsupportedFile):
		s.writeError(w, r, http.StatusBadRequest, "File must be a PDF")
	case errors.Is(err, marker.ErrInvalidPDF):
		s.writeError(w, r, http.StatusBadRequest, "File is not a valid PDF")
	case errors.Is(err, marker.ErrMissingAPIKey):
		s.writeError(w, r, http.StatusInternalServerError, "Marker API key not configured")
	case errors.Is(err, marker.ErrPollTimeout):
		s.writeError(w, r, http.StatusRequestTimeout, "PDF processing timed out")
	case errors.As(err, &remoteErr):
		s.writeError(w, r, http.StatusBadRequest, "Marker API error: "+remoteErr.Message)
	default:
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	logger := s.log().With("method", r.Method, "path", r.URL.Path, "status", status)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "detail", detail)
	} else {
		logger.Warn("request rejected", "detail", detail)
	}
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().Error("encoding response failed", "error", err)
	}
}
