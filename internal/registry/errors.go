package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL rejects input that does not parse as an absolute
	// http or https URL.
	ErrInvalidURL = errors.New("long URL must be an absolute http or https URL")

	// ErrInvalidCode rejects custom codes outside 3-20 alphanumeric characters.
	ErrInvalidCode = errors.New("short code must be 3-20 alphanumeric characters")

	// ErrDuplicateCode rejects a custom code already held by any entry,
	// expired or not. Codes are never recycled implicitly.
	ErrDuplicateCode = errors.New("short code is already taken")

	// ErrGenerationExhausted signals that repeated random draws all
	// collided. A systemic condition, not a user error.
	ErrGenerationExhausted = errors.New("failed to generate a unique short code")

	// ErrNotFound means no entry holds the requested code.
	ErrNotFound = errors.New("short URL not found")
)

// ExpiredError is returned by Resolve for entries past their expiry. It
// carries the entry so callers can still display its metadata, but the
// entry must not be treated as live.
type ExpiredError struct {
	Entry *UrlEntry
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("short URL %s has expired", e.Entry.ShortCode)
}
