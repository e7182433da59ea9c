package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err was caused by a unique constraint.
// It understands gorm's translated error, Postgres SQLSTATE 23505 and the
// SQLite "UNIQUE constraint failed" message. When constraintName is provided,
// the helper also requires the constraint (or, for SQLite, "table.column") to
// appear in the error where the driver reports it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	matched := errors.Is(err, gorm.ErrDuplicatedKey)
	var pgErr *pgconn.PgError
	if !matched && errors.As(err, &pgErr) {
		matched = pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	if !matched {
		matched = strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "duplicate key value")
	}
	if !matched {
		return false
	}
	if constraintName == "" {
		return true
	}
	if pgErr != nil && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName == constraintName
	}
	if strings.Contains(msg, constraintName) {
		return true
	}
	// gorm's translated sentinel drops the constraint text.
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsForeignKeyViolation reports whether err was caused by a missing parent row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
