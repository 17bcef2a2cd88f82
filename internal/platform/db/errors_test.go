package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/shared"
)

func TestTranslateError(t *testing.T) {
	require.NoError(t, TranslateError(nil))
	require.ErrorIs(t, TranslateError(pgx.ErrNoRows), shared.ErrNotFound)

	unique := fmt.Errorf("insert sale: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_sales_client_rut"})
	err := TranslateError(unique)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Contains(t, err.Error(), "client rut")

	require.ErrorIs(t, TranslateError(&pgconn.PgError{Code: "23503"}), shared.ErrNotFound)
	require.ErrorIs(t, TranslateError(&pgconn.PgError{Code: "40001"}), shared.ErrConflict)

	other := errors.New("connection reset")
	require.Equal(t, other, TranslateError(other))
}
