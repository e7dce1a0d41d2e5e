// Package ids mints and validates the public identifiers used across the
// API surface: ULIDs for entities, UUIDs for request correlation.
package ids

import (
	"crypto/rand"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)

var ErrInvalidULID = errors.New("invalid ULID")

// NewULID generates a new ULID string.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID reports whether value is a valid ULID (Crockford Base32,
// case-insensitive).
func IsULID(value string) bool {
	return ulidRegex.MatchString(strings.TrimSpace(value))
}

// ValidateULID validates a ULID string.
func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// NewRequestID returns a UUID for correlating one scrape request across
// logs, traces, and the progress channel.
func NewRequestID() string {
	return uuid.NewString()
}
