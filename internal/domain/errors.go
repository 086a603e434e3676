package domain

import "errors"

// Error kinds returned by the application layer. Callers wrap them with context
// using fmt.Errorf("%w: ...") and the HTTP layer maps them with errors.Is.
var (
	// ErrValidation marks a malformed shop domain or request payload.
	ErrValidation = errors.New("validation failed")

	// ErrAuth marks a bad OAuth state, session token or webhook signature.
	ErrAuth = errors.New("unauthorized")

	// ErrNotInstalled marks a valid session for a shop that is unknown or uninstalled.
	ErrNotInstalled = errors.New("shop not installed")

	// ErrUpstream marks a failed or malformed Shopify API call.
	ErrUpstream = errors.New("shopify request failed")
)
