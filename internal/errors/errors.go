package errors

import (
	"errors"
	"fmt"
)

// Common error types for the integration hub
var (
	// Session errors
	ErrNoSession          = errors.New("no session")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrNoOAuthClient      = errors.New("no oauth client configured")
	ErrCredentialInactive = errors.New("credential not active")

	// Credential errors
	ErrConfiguration = errors.New("configuration error")
	ErrMalformedBlob = errors.New("malformed credential blob")

	// Connect flow errors
	ErrInvalidState = errors.New("invalid connect state")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
