// Package common defines shared constants and sentinel errors used across
// the fieldsync client layers. Callers should use errors.Is to match these
// values; concrete failures wrap them with fmt.Errorf("...: %w", ...).
package common

import (
	"errors"
	"fmt"
)

var (
	// Transport-level errors: no connectivity, server unreachable, auth rejected.
	ErrTransport = errors.New("transport failure")

	// ErrDecode marks a malformed or schema-invalid payload from the server.
	ErrDecode = errors.New("decode failure")

	// Storage errors (local store).
	ErrStorage             = errors.New("storage failure")
	ErrConstraintViolation = fmt.Errorf("%w: constraint violation", ErrStorage)
	ErrNotFound            = errors.New("not found")

	// ErrPermissionDenied is returned when an operation targets an entity the
	// active identity cannot see or edit.
	ErrPermissionDenied = errors.New("permission denied")

	// Session errors.
	ErrNoCredentials    = errors.New("no credentials")
	ErrAdminCredentials = errors.New("administrator credentials required")
	ErrIdentityChanged  = errors.New("identity changed during sync")
	ErrInvalidToken     = errors.New("invalid token")
)
