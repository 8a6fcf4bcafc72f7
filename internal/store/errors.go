package store

import (
	stderrors "errors"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"github.com/vegardege/pvduck/internal/errors"
)

var (
	ErrNotFound      = errors.ErrNotFound
	ErrAlreadyExists = errors.ErrAlreadyExists

	// Store-specific aliases
	ErrStoreNotFound      = errors.ErrStoreNotFound
	ErrStoreAlreadyExists = errors.ErrStoreAlreadyExists
	ErrBatchNotFound      = errors.ErrBatchNotFound
	ErrEntryAlreadyExists = errors.ErrEntryAlreadyExists
)

// isConstraintViolation reports whether err is a DuckDB primary key or
// unique index violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var dErr *duckdb.Error
	if stderrors.As(err, &dErr) && dErr.Type == duckdb.ErrorTypeConstraint {
		return true
	}
	return strings.Contains(err.Error(), "Constraint Error")
}
