package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// jsonError writes an error response as {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// parseOptions reads extraction options from query parameters
func parseOptions(q url.Values) (extraction.Options, error) {
	var opts extraction.Options
	flags := []struct {
		name string
		dst  *bool
	}{
		{"apply_corrections", &opts.ApplyCorrections},
		{"trace", &opts.Trace},
		{"word_level", &opts.WordLevel},
	}
	for _, f := range flags {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid %s: %q", f.name, v)
		}
		*f.dst = b
	}
	return opts, nil
}

// handleExtract runs an extraction on the posted OCR document
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	body := r.Body
	if s.limits.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("Document is too large. Maximum size is %d bytes.", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		slog.Error("Error reading request body", "error", err)
		jsonError(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	e, err := s.service.Extract(Request{
		Data:     data,
		Language: r.URL.Query().Get("lang"),
		Options:  opts,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error extracting document", "request_id", requestIDFromContext(r.Context()), "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, e)
}

// handleGetExtraction returns a stored extraction
func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.service.GetExtraction(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Extraction not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting extraction", "id", id, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleListExtractions returns all stored extractions
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	extractions, err := s.service.ListExtractions()
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, extractions)
}

// handleDeleteExtraction removes a stored extraction
func (s *Server) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteExtraction(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Extraction not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting extraction", "id", id, "error", err)
		jsonError(w, "Error deleting extraction", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
