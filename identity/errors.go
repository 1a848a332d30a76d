package identity

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates invalid provider configuration
var ErrInvalidConfig = errors.New("invalid identity provider configuration")

// Error codes carried by AuthError
const (
	CodeInvalidEmail       = "invalid-email"
	CodeMissingPassword    = "missing-password"
	CodeUserNotFound       = "user-not-found"
	CodeWrongPassword      = "wrong-password"
	CodeInvalidCredential  = "invalid-credential"
	CodeEmailInUse         = "email-already-in-use"
	CodeWeakPassword       = "weak-password"
	CodeUserDisabled       = "user-disabled"
	CodeTooManyRequests    = "too-many-requests"
	CodeNetwork            = "network-request-failed"
	CodeFederatedCancelled = "popup-closed-by-user"
	CodeTokenExpired       = "user-token-expired"
	CodeInvalidToken       = "invalid-user-token"
	CodeNoCurrentUser      = "no-current-user"
	CodeInternal           = "internal-error"
)

// AuthError describes a rejected authentication or profile operation
type AuthError struct {
	// Op is the operation that failed, e.g. "signIn"
	Op string
	// Code classifies the failure
	Code string
	// Message is the provider's text, unchanged
	Message string
	Err     error
}

// Error returns the provider message
func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("auth/%s", e.Code)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsStale checks if the error means the identity's credential is no longer usable
func (e *AuthError) IsStale() bool {
	return e.Code == CodeTokenExpired || e.Code == CodeInvalidToken || e.Code == CodeNoCurrentUser
}

// HasCode reports whether err is an AuthError with the given code
func HasCode(err error, code string) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Code == code
}

func newAuthError(op, code, message string) *AuthError {
	return &AuthError{Op: op, Code: code, Message: message}
}
