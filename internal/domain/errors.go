package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("product not found")
	ErrInvalidProduct = errors.New("invalid product")
	ErrNoFiles        = errors.New("no image files provided")

	// ErrPersistence is the opaque failure surfaced when the store
	// misbehaves in a way the caller cannot act on. Detail goes to the
	// server log, never to the caller.
	ErrPersistence = errors.New("persistence failure")

	ErrUpload = errors.New("media upload failed")
	ErrDelete = errors.New("media delete failed")
)

// DuplicateError reports a title/slug uniqueness conflict. Detail names
// the conflicting field so callers can correct it.
type DuplicateError struct {
	Detail string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate product: %s", e.Detail)
}
