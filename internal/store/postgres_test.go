package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"sortruns/internal/apperrors"
)

func TestMapRunInsertErrorUniqueViolation(t *testing.T) {
	t.Parallel()

	cause := &pgconn.PgError{
		Code:           pgUniqueViolation,
		ConstraintName: "runs_user_id_identifier_key",
	}

	err := mapRunInsertError(cause, "20240101093000")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, err.Error(), "already in use")
}

func TestMapRunInsertErrorWrappedCause(t *testing.T) {
	t.Parallel()

	// Drivers often return the pg error wrapped; errors.As must still see it.
	cause := errors.Join(errors.New("exec failed"), &pgconn.PgError{Code: pgUniqueViolation})

	err := mapRunInsertError(cause, "run-1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMapRunInsertErrorOtherFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cause error
	}{
		{"foreign key violation", &pgconn.PgError{Code: "23503"}},
		{"plain error", errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := mapRunInsertError(tt.cause, "run-1")
			assert.ErrorIs(t, err, apperrors.ErrInternal)
			assert.NotErrorIs(t, err, apperrors.ErrConflict)
		})
	}
}
