package walletsql

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

func handlePgError(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err, false
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return serviceerr.ErrConflict, true
	case pgCheckViolation:
		return serviceerr.Wrap(serviceerr.ErrInvalidState, pgErr), true
	}

	return err, false
}
