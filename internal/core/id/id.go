// Package id provides UUIDv7 generation for all records.
// UUIDv7 is time-ordered, allowing natural sorting by creation time.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
// Ledger entries rely on this ordering as a tie-breaker when two entries share a timestamp.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Suffix returns the last n hex digits of the ID in upper case.
// The random tail of a UUIDv7 makes this usable in human-facing reference numbers.
func Suffix(v ID, n int) string {
	hex := strings.ReplaceAll(v.String(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return strings.ToUpper(hex[len(hex)-n:])
}
