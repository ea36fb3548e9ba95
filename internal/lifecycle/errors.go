package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDomain rejects syntactically unusable domain submissions.
	// Wrapped with the specific reason.
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrDomainNotConfigured is returned when an operation requires an
	// attachment attempt but the site never started one (or already
	// disconnected it).
	ErrDomainNotConfigured = errors.New("no custom domain configured")
)

// DomainConflictError reports that a domain already has an active claim by
// another site. The holding site is deliberately not identified to callers.
type DomainConflictError struct {
	Domain string
}

func (e *DomainConflictError) Error() string {
	return fmt.Sprintf("domain %s is already attached to another site", e.Domain)
}
