// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrNotFound indicates that no live row matched, while
// ErrConflict signals that a write raced with another one and the row
// version moved on.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a lookup by identity or unique key finds
// no live row. Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update matched no row because its
// version changed concurrently. Handlers translate it into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")

// placeholders returns "?,?,?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
