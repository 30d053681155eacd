// Package id generates identifiers for cost register lines and the
// documents that record them.
package id

import (
	"github.com/google/uuid"
)

// ID identifies a movement line, a recorder document or an outbox message.
type ID = uuid.UUID

// New returns a UUIDv7, so line ids sort in posting order and break FIFO
// ties between receipts of the same date deterministically.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse reads a canonical UUID string.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseOptional is Parse that maps an empty string to Nil.
func ParseOptional(s string) (ID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero ID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
