package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("runIdentifier", "run identifier is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "run identifier is required" {
		t.Errorf("expected message 'run identifier is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "runIdentifier" {
		t.Errorf("expected field 'runIdentifier', got %q", appErr.Field)
	}
}

func TestValidationAllowed(t *testing.T) {
	t.Parallel()
	err := ValidationAllowed("sourceName", "ftp", "local", "s3", "dandi")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "sourceName" {
		t.Errorf("expected field 'sourceName', got %q", appErr.Field)
	}
	if len(appErr.Allowed) != 3 || appErr.Allowed[0] != "local" {
		t.Errorf("expected allowed values to be preserved, got %v", appErr.Allowed)
	}
	want := `sourceName "ftp" not supported, choose from: local, s3, dandi`
	if err.Error() != want {
		t.Errorf("expected message %q, got %q", want, err.Error())
	}
}

func TestResolution(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("dandi api unreachable")
	err := Resolution("dandi.resolveAsset", cause)

	if !errors.Is(err, ErrResolution) {
		t.Error("expected error to match ErrResolution")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "dandi.resolveAsset" {
		t.Errorf("expected op 'dandi.resolveAsset', got %q", appErr.Op)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("job queue does not exist")
	err := Dispatch("awsbatch.submitJob", cause)

	if !errors.Is(err, ErrDispatch) {
		t.Error("expected error to match ErrDispatch")
	}
	if err.Error() != "awsbatch.submitJob: job queue does not exist" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("run", "20230801120000")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "run 20230801120000 not found" {
		t.Errorf("expected message 'run 20230801120000 not found', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "run" {
		t.Errorf("expected resource 'run', got %q", appErr.Resource)
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("docker daemon unavailable")
	err := Internal("localworker.createContainer", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if err.Error() != "localworker.createContainer: docker daemon unavailable" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "localworker.createContainer" {
		t.Errorf("expected op 'localworker.createContainer', got %q", appErr.Op)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("runAt", "required"), http.StatusUnprocessableEntity},
		{"resolution", Resolution("dandi.resolveAsset", fmt.Errorf("timeout")), http.StatusBadGateway},
		{"not found", NotFound("run", "123"), http.StatusNotFound},
		{"conflict", Conflict("run", "123", "exists"), http.StatusConflict},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"dispatch", Dispatch("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"sentinel validation", ErrValidation, http.StatusUnprocessableEntity},
		{"sentinel not found", ErrNotFound, http.StatusNotFound},
		{"wrapped validation", fmt.Errorf("wrap: %w", Validation("f", "m")), http.StatusUnprocessableEntity},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	original := Validation("runIdentifier", "required")
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrValidation) {
		t.Error("expected errors.Is to find ErrValidation through multiple wraps")
	}
}

func TestConflictMessageNamesResource(t *testing.T) {
	t.Parallel()
	err := Conflict("run", "20240101093000", "run identifier already in use")

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to match ErrConflict")
	}
	want := "run 20240101093000: run identifier already in use"
	if err.Error() != want {
		t.Errorf("expected message %q, got %q", want, err.Error())
	}
}
