// Package common defines sentinel errors shared by the storage, registry,
// query and service layers of orderkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors raised before any storage access.
	ErrValidation     = errors.New("validation error")
	ErrReservedName   = errors.New("reserved field name")
	ErrRowWithoutUUID = errors.New("row has no uuid")

	// Registry errors.
	ErrNotRegistered = errors.New("field is not registered")

	// Storage returned data that contradicts the query it answered.
	ErrInconsistent = errors.New("inconsistent storage state")

	ErrUnsupportedDialect = errors.New("unsupported database dialect")
)
