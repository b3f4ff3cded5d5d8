package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

// Postgres error codes the ingestion path cares about
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
	codeInvalidDatetime     = "22007"
	codeDatetimeOverflow    = "22008"
	codeNumericOutOfRange   = "22003"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
)

// MapError translates driver-level errors into the typed errors the callers
// match on. Errors that are not Postgres constraint or coercion failures are
// returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeForeignKeyViolation:
		return models.NewReferenceError(-1, fieldFromConstraint(pgErr.ConstraintName), detailValue(pgErr.Detail))
	case codeUniqueViolation:
		return &models.UniqueConflictError{Constraint: pgErr.ConstraintName, Detail: pgErr.Detail}
	case codeCheckViolation, codeNotNullViolation:
		return models.NewValidationError(fieldFromConstraint(pgErr.ConstraintName), pgErr.Message)
	case codeInvalidText, codeInvalidDatetime, codeDatetimeOverflow, codeNumericOutOfRange:
		return models.NewTypeCoercionError(-1, pgErr.ColumnName, pgErr.Message)
	case codeDeadlockDetected:
		return models.NewTransactionAbortError("deadlock", err)
	case codeSerializationFail:
		return models.NewTransactionAbortError("serialization", err)
	}

	return err
}

// fieldFromConstraint strips the table prefix and constraint suffix from a
// Postgres constraint name, e.g. "price_instrument_id_fkey" -> "instrument_id"
func fieldFromConstraint(constraint string) string {
	name := constraint
	for _, suffix := range []string{"_fkey", "_key", "_pkey", "_check"} {
		name = strings.TrimSuffix(name, suffix)
	}
	for _, table := range []string{"price_", "instrument_", "strategy_", "analysis_", "parameter_", "result_"} {
		if trimmed := strings.TrimPrefix(name, table); trimmed != name && trimmed != "" {
			return trimmed
		}
	}
	return name
}

// detailValue extracts the offending value from a Postgres error detail line,
// e.g. `Key (instrument_id)=(42) is not present in table "instrument".` -> "42"
func detailValue(detail string) string {
	open := strings.Index(detail, ")=(")
	if open < 0 {
		return detail
	}
	rest := detail[open+3:]
	end := strings.Index(rest, ")")
	if end < 0 {
		return detail
	}
	return rest[:end]
}
