// Package common defines the error taxonomy shared by the stores, the auth
// core and the HTTP layer. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// ErrorUnavailable marks a transient store or mail failure that survived
	// the bounded retry at the call site.
	ErrorUnavailable = errors.New("service unavailable")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")

	// ErrInvalidToken is the umbrella for every token verification failure.
	ErrInvalidToken = errors.New("invalid token")

	ErrMalformedToken = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrWrongTokenKind = fmt.Errorf("%w: wrong kind", ErrInvalidToken)
	ErrTokenRevoked   = fmt.Errorf("%w: revoked", ErrInvalidToken)
)

// Kind returns a stable machine-readable name for err, used in API error
// bodies. Unknown errors map to "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrWrongTokenKind):
		return "wrong_kind"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrInvalidToken):
		return "malformed"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrNotVerified):
		return "not_verified"
	case errors.Is(err, ErrorConflict):
		return "conflict"
	case errors.Is(err, ErrorUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrorForbidden):
		return "forbidden"
	case errors.Is(err, ErrorUnavailable):
		return "unavailable"
	case errors.Is(err, ErrorValidation):
		return "validation"
	case errors.Is(err, ErrorNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
