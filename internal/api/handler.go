// Package api provides the HTTP API handlers and routing for the run
// orchestration service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sortruns/internal/apperrors"
	"sortruns/internal/health"
	"sortruns/internal/run"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the runs API
type Handler struct {
	svc    *run.Service
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc *run.Service, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:    svc,
		health: healthChecker,
	}
}

// SubmitRun handles POST /api/runs
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req run.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.SubmitRun(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// ListRuns handles GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ListRuns(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /api/runs/{identifier}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	if identifier == "" {
		h.writeError(w, http.StatusBadRequest, "Run identifier is required")
		return
	}

	view, err := h.svc.GetRunInfo(r.Context(), identifier)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

// DeleteRun handles DELETE /api/runs/{identifier}
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")
	if identifier == "" {
		h.writeError(w, http.StatusBadRequest, "Run identifier is required")
		return
	}

	if err := h.svc.DeleteRun(r.Context(), identifier); err != nil {
		// Deleting an unknown run is a caller mistake, not a missing
		// resource on a known collection.
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 while the instance should stay in rotation, including the
// degraded case where one backend is down. Returns 503 when the database
// is unreachable or the service is shutting down.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.Serving() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// errorResponse is the error payload. Field and Allowed are populated for
// validation failures so callers can self-correct.
type errorResponse struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// handleError handles errors from the service layer with appropriate HTTP
// status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		// Causes carry driver and SDK detail; callers get a fixed message.
		slog.Error("Internal error", "error", err, "path", r.URL.Path, "status", status)
		h.writeError(w, status, "Internal server error")
		return
	}
	slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)

	resp := errorResponse{Error: err.Error()}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		resp.Field = appErr.Field
		resp.Allowed = appErr.Allowed
	}
	h.writeJSON(w, status, resp)
}
