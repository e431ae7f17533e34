package sessionguard

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodePermissionDenied = "PROFILE_PERMISSION_DENIED"
	textCodeInvalidReason    = "INVALID_TERMINATION_REASON"
)

// ErrPermissionDenied marks a profile subscription error as an authorization
// revocation. Feeds should wrap backend permission errors with
// PermissionDenied so the orchestrator can classify them.
var ErrPermissionDenied = goerrors.New("profile subscription permission denied", goerrors.CategoryAuth).
	WithTextCode(textCodePermissionDenied).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidReason is returned for a termination reason outside the closed set.
var ErrInvalidReason = goerrors.New("invalid termination reason", goerrors.CategoryBadInput).
	WithTextCode(textCodeInvalidReason).
	WithCode(goerrors.CodeBadRequest)

// RevocationCode classifies provider-side credential revocation surfaced by
// ForceRevalidate. Any of these terminates the session with ReasonAuthInvalid.
type RevocationCode string

const (
	RevocationTokenExpired RevocationCode = "token-expired"
	RevocationUserDisabled RevocationCode = "user-disabled"
	RevocationUserNotFound RevocationCode = "user-not-found"
	RevocationInvalidToken RevocationCode = "invalid-token"
)

// RevocationError marks a revalidation failure as authoritative. Provider
// implementations wrap the underlying error; anything not wrapped in a
// RevocationError is treated as transient and never evicts the session.
type RevocationError struct {
	Code RevocationCode
	Err  error
}

// Error implements the error interface.
func (e *RevocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("identity revoked: %s", e.Code)
	}
	return fmt.Sprintf("identity revoked: %s: %v", e.Code, e.Err)
}

// Unwrap exposes the provider error for errors.Is/As chains.
func (e *RevocationError) Unwrap() error {
	return e.Err
}

// NewRevocationError wraps err with a revocation classification.
func NewRevocationError(code RevocationCode, err error) *RevocationError {
	return &RevocationError{Code: code, Err: err}
}

// AsRevocation extracts the revocation classification from err, if any.
func AsRevocation(err error) (RevocationCode, bool) {
	var rev *RevocationError
	if errors.As(err, &rev) {
		return rev.Code, true
	}
	return "", false
}

// PermissionDenied wraps a backend authorization error so the orchestrator
// treats the subscription failure as authoritative.
func PermissionDenied(err error) error {
	if err == nil {
		return ErrPermissionDenied
	}
	return goerrors.Wrap(err, goerrors.CategoryAuth, "profile subscription permission denied").
		WithTextCode(textCodePermissionDenied).
		WithCode(goerrors.CodeUnauthorized)
}

// IsPermissionDenied checks whether err carries the permission-denied
// classification, either via our sentinel or a backend message.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == textCodePermissionDenied {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "permission_denied")
}
