package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salesdesk/salesdesk/internal/shared"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerialization       = "40001"
)

// TranslateError maps storage failures onto the shared error taxonomy.
// Errors it does not recognise are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", shared.ErrConflict, constraintLabel(pgErr))
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, constraintLabel(pgErr))
	case codeSerialization:
		return fmt.Errorf("%w: concurrent update, reload and retry", shared.ErrConflict)
	}
	return err
}

func constraintLabel(pgErr *pgconn.PgError) string {
	switch pgErr.ConstraintName {
	case "uq_sales_client_rut":
		return "client rut already registered"
	case "uq_sales_client_email":
		return "client email already registered"
	case "uq_sales_service_id":
		return "service id already assigned"
	case "uq_users_email":
		return "email already registered"
	}
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.Message
}
