package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/phrazzld/taskrelay/internal/store"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "task_schemas",
		ColumnName:     "document",
		ConstraintName: "task_schemas_document_is_object",
	}
}

type mockResult struct {
	rowsAffected int64
	err          error
}

func (m mockResult) LastInsertId() (int64, error) { return 0, m.err }
func (m mockResult) RowsAffected() (int64, error) { return m.rowsAffected, m.err }

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique", newPgError("23505"), store.ErrDuplicate},
		{"check", newPgError("23514"), store.ErrInvalidEntity},
		{"not null", newPgError("23502"), store.ErrInvalidEntity},
		{"invalid json", newPgError("22032"), store.ErrInvalidEntity},
		{"missing table", newPgError("42P01"), store.ErrInternal},
		{"connection", newPgError("08006"), store.ErrInternal},
		{"wrapped", fmt.Errorf("query: %w", newPgError("23505")), store.ErrDuplicate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mapped := postgres.MapError(tc.err)
			assert.ErrorIs(t, mapped, tc.is)
			assert.ErrorIs(t, mapped, tc.err)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, postgres.MapError(nil))
	})

	t.Run("unmapped passes through", func(t *testing.T) {
		err := errors.New("boom")
		assert.Same(t, err, postgres.MapError(err))
		code := newPgError("99999")
		assert.Equal(t, error(code), postgres.MapError(code))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, postgres.IsUniqueViolation(newPgError("23505")))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23514")))
	assert.False(t, postgres.IsUniqueViolation(errors.New("x")))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, postgres.IsNotFoundError(sql.ErrNoRows))
	assert.True(t, postgres.IsNotFoundError(store.ErrSchemaNotFound))
	assert.False(t, postgres.IsNotFoundError(errors.New("x")))
}

func TestCheckRowsAffected(t *testing.T) {
	assert.NoError(t, postgres.CheckRowsAffected(mockResult{rowsAffected: 1}, "schema"))
	assert.ErrorIs(t, postgres.CheckRowsAffected(mockResult{}, "schema"), store.ErrNotFound)
	assert.ErrorIs(t, postgres.CheckRowsAffected(mockResult{}, ""), store.ErrNotFound)
	assert.Error(t, postgres.CheckRowsAffected(mockResult{err: errors.New("x")}, "schema"))
	assert.Error(t, postgres.CheckRowsAffected(nil, "schema"))
}
