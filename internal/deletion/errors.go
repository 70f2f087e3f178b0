package deletion

import "errors"

var (
	// ErrInvalidRequest means the request lacks a target user id.
	ErrInvalidRequest = errors.New("deletion: invalid request")
	// ErrUnauthorized matches every *AuthError via errors.Is.
	ErrUnauthorized = errors.New("Unauthorized")
	// ErrInProgress is returned while another run for the same account holds the lock.
	ErrInProgress = errors.New("deletion already in progress")
)

// Reasons surfaced to the caller on authorization failure.
const (
	ReasonMalformed         = "Unauthorized"
	ReasonTokenVerification = "Unauthorized: token verification failed"
	ReasonNoIdentity        = "Unauthorized: no identity for token"
	ReasonIdentityMismatch  = "Unauthorized: identity mismatch"
)

// AuthError aborts the workflow before anything is deleted.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string { return e.Reason }

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

func unauthorized(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}
