package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sortruns/internal/apperrors"
	"sortruns/internal/dispatch"
	"sortruns/internal/health"
	"sortruns/internal/run"
	"sortruns/internal/store"
)

type fakeBackend struct {
	target string
	state  run.State
	logs   string
}

func (f *fakeBackend) Submit(context.Context, *run.JobSpec) error {
	return nil
}

func (f *fakeBackend) StatusAndLogs(context.Context, string) (run.State, string, error) {
	return f.state, f.logs, nil
}

func (f *fakeBackend) Target() string {
	return f.target
}

func (f *fakeBackend) Ready(context.Context) error {
	return nil
}

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()

	repo := store.NewMemory()
	runner := dispatch.NewRunner(dispatch.Config{
		Workers:        1,
		QueueSize:      8,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = runner.Close(context.Background()) })

	svc, err := run.NewService(run.Config{
		Repository: repo,
		Backends:   []run.Backend{&fakeBackend{target: run.TargetLocal, state: run.StateRunning}},
		Dispatcher: runner,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	checker := health.NewChecker()
	checker.Register("database", repo)

	return NewRouter(RouterConfig{
		RunService:    svc,
		HealthChecker: checker,
		APIKey:        apiKey,
	})
}

func submitBody() string {
	return `{
		"runIdentifier": "run-1",
		"runAt": "local",
		"sourceName": "local",
		"sourceDataType": "nwb",
		"sourceDataPaths": {"file": "/data/recording.nwb"},
		"sorterName": "kilosort3",
		"outputDestination": "local",
		"outputPath": "/results/run-1"
	}`
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitRun(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/api/runs", submitBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}

	var resp run.SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.RunIdentifier != "run-1" {
		t.Errorf("runIdentifier = %q, want run-1", resp.RunIdentifier)
	}
	if resp.Message == "" {
		t.Error("expected a confirmation message")
	}
}

func TestSubmitRunInvalidJSON(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodPost, "/api/runs", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitRunValidationError(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	body := strings.Replace(submitBody(), "kilosort3", "mountainsort", 1)
	rec := doJSON(t, router, http.MethodPost, "/api/runs", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Error   string   `json:"error"`
		Field   string   `json:"field"`
		Allowed []string `json:"allowed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Field != "sorterName" {
		t.Errorf("field = %q, want sorterName", resp.Field)
	}
	if len(resp.Allowed) == 0 {
		t.Error("expected allowed values in validation error")
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	if rec := doJSON(t, router, http.MethodPost, "/api/runs", submitBody()); rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/runs/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var view run.RunView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if view.RunIdentifier != "run-1" {
		t.Errorf("runIdentifier = %q", view.RunIdentifier)
	}
	if view.Status != run.StateRunning {
		t.Errorf("status = %q, want running", view.Status)
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodGet, "/api/runs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	if rec := doJSON(t, router, http.MethodPost, "/api/runs", submitBody()); rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp run.ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(resp.Runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(resp.Runs))
	}
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	if rec := doJSON(t, router, http.MethodPost, "/api/runs", submitBody()); rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodDelete, "/api/runs/run-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodGet, "/api/runs/run-1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}

func TestDeleteRunMissing(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	rec := doJSON(t, router, http.MethodDelete, "/api/runs/missing", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp["detail"] == "" {
		t.Error("expected a detail message")
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	if rec := doJSON(t, router, http.MethodGet, "/livez", ""); rec.Code != http.StatusOK {
		t.Errorf("livez status = %d, want 200", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "secret-key")

	// No credentials.
	rec := doJSON(t, router, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	// Wrong key.
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	// Correct key.
	req = httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// Health endpoints stay open.
	if rec := doJSON(t, router, http.MethodGet, "/livez", ""); rec.Code != http.StatusOK {
		t.Errorf("livez status = %d, want 200", rec.Code)
	}
}

func TestContentTypeRejected(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(submitBody()))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestInternalErrorsHideCause(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "internal error",
			err:        apperrors.Internal("store.insertRun", errors.New(`duplicate key value violates unique constraint "runs_user_id_identifier_key"`)),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "resolution error",
			err:        apperrors.Resolution("catalog.resolve", errors.New("dial tcp 10.0.0.5:443: i/o timeout")),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
			rec := httptest.NewRecorder()
			h.handleError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if resp.Error != "Internal server error" {
				t.Errorf("error message = %q, want generic message", resp.Error)
			}
			if strings.Contains(rec.Body.String(), "constraint") || strings.Contains(rec.Body.String(), "dial tcp") {
				t.Errorf("response leaked cause detail: %s", rec.Body.String())
			}
		})
	}
}

func TestClientErrorsKeepDetail(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()
	h.handleError(rec, req, apperrors.Validation("sorterName", "sorterName is required"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.Field != "sorterName" || !strings.Contains(resp.Error, "required") {
		t.Errorf("validation detail lost: %+v", resp)
	}
}
