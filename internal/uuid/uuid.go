// Package uuid provides identifier generation and validation for walks and
// walk events.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// xxxxxxxx-xxxx-Vxxx-yxxx-xxxxxxxxxxxx with V the version and y one of [8, 9, a, b].
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[47][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a random UUID v4. Used for walk event ids.
func New() string {
	return uuid.New().String()
}

// GenerateLocalID returns a UUID v7: 48 bits of unix milliseconds followed by
// random bits. Local walk ids are never reused and sort by creation time.
func GenerateLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; v4 keeps uniqueness.
		return uuid.New().String()
	}
	return id.String()
}

// IsValid checks if a string is a valid UUID v4 or v7.
func IsValid(s string) bool {
	return uuidRegex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4 or v7.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
