// Copyright (c) 2026 Minsik. All rights reserved.
// Author: contact@minsik.app

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/minsik-app/ingestion/internal/platform/apperr"
)

// Postgres SQLSTATE codes the ingestion paths care about.
const (
	sqlstateUniqueViolation  = "23505"
	sqlstateSerialization    = "40001"
	sqlstateLockNotAvailable = "55P03"
	sqlstateDeadlockDetected = "40P01"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")

	// ErrConflict marks unique-violation and lock-contention failures. Callers
	// that retry batch persistence test for this with [errors.Is].
	ErrConflict = errors.New("dberr: write conflict")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. SQLSTATE classification
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateUniqueViolation:
			return fmt.Errorf("%s: %w: %w", action, ErrConflict, err)
		case sqlstateSerialization, sqlstateLockNotAvailable, sqlstateDeadlockDetected:
			return fmt.Errorf("%s: %w: %w", action, ErrConflict, err)
		}
	}

	// 3. Unknown query errors become Internal Server Errors
	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}

// IsConflict reports whether err is a concurrent-write conflict (unique
// violation, serialization failure, or row-lock contention).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
