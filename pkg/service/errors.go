package service

import (
	"errors"

	"github.com/platinummonkey/eams/pkg/storage"
)

var (
	// ErrInvalidInput is returned when a request fails validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated is returned when no caller is attached to the request
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the caller fails an access check
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable is returned when an optional backend is not configured
	ErrUnavailable = errors.New("unavailable")
	// ErrNotFound is storage.ErrNotFound so callers can match either
	ErrNotFound = storage.ErrNotFound
	// ErrConflict is storage.ErrConflict so callers can match either
	ErrConflict = storage.ErrConflict
)
