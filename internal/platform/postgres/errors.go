package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-reports/internal/store"
)

// SQLSTATE codes of the constraints the reports schema declares.
const (
	codeNotNull    = "23502"
	codeForeignKey = "23503"
	codeCheck      = "23514"
)

// MapError translates driver errors to store sentinels. The driver error stays
// in the chain; errors it does not recognise are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrReportNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeCheck:
		return fmt.Errorf("%w: %s rejected by %s: %w",
			store.ErrInvalidEntity, pgErr.TableName, pgErr.ConstraintName, err)
	case codeNotNull:
		return fmt.Errorf("%w: %s.%s is required: %w",
			store.ErrInvalidEntity, pgErr.TableName, pgErr.ColumnName, err)
	case codeForeignKey:
		return fmt.Errorf("%w: feature row without report: %w", store.ErrInvalidEntity, err)
	}
	return err
}
