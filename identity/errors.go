package identity

import (
	"errors"
	"fmt"
)

// Kind classifies an AuthError
type Kind string

const (
	KindWeakPassword       Kind = "weak_password"
	KindEmailInUse         Kind = "email_in_use"
	KindInvalidEmail       Kind = "invalid_email"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUserNotFound       Kind = "user_not_found"
	KindPopupClosedByUser  Kind = "popup_closed_by_user"
	KindPopupBlocked       Kind = "popup_blocked"
	KindNetwork            Kind = "network"
	KindUnknown            Kind = "unknown"
)

// Operation names used in AuthError.Op
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpFederatedLogin = "federated_login"
	OpLogout         = "logout"
	OpUpdateProfile  = "update_profile"
)

// AuthError is the only error type returned by Provider operations.
type AuthError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Unwrap implements errors.Unwrap
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind, so errors.Is(err, ErrNetwork) works
// regardless of the operation or cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewAuthError creates an AuthError for op
func NewAuthError(op string, kind Kind, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

var (
	ErrWeakPassword       = &AuthError{Kind: KindWeakPassword}
	ErrEmailInUse         = &AuthError{Kind: KindEmailInUse}
	ErrInvalidEmail       = &AuthError{Kind: KindInvalidEmail}
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials}
	ErrUserNotFound       = &AuthError{Kind: KindUserNotFound}
	ErrPopupClosedByUser  = &AuthError{Kind: KindPopupClosedByUser}
	ErrPopupBlocked       = &AuthError{Kind: KindPopupBlocked}
	ErrNetwork            = &AuthError{Kind: KindNetwork}
	ErrUnknown            = &AuthError{Kind: KindUnknown}
)

// KindOf returns the kind of an AuthError anywhere in err's chain.
// Errors that are not AuthErrors report KindUnknown.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}
