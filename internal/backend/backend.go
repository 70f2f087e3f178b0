// Package backend describes the auth/data platform that holds PromoSuite user data and
// identities. The deletion workflow depends only on this contract.
package backend

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidToken means the credential failed remote validation.
	ErrInvalidToken = errors.New("backend: invalid token")
	// ErrIdentityNotFound means no identity exists for the token or id.
	ErrIdentityNotFound = errors.New("backend: identity not found")
	// ErrSchemaNotFound means the collection (table or schema) does not exist.
	ErrSchemaNotFound = errors.New("backend: collection does not exist")
	// ErrPermissionDenied means the service credential may not access the collection.
	ErrPermissionDenied = errors.New("backend: permission denied")
	// ErrRoutineUnavailable means the privileged routine is not installed.
	ErrRoutineUnavailable = errors.New("backend: privileged routine unavailable")
)

// Identity is the authentication record resolved from a bearer credential.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Federated reports whether the identity came from a third-party (OAuth) sign-in
// rather than direct email/password registration.
func (i Identity) Federated() bool {
	p := strings.ToLower(strings.TrimSpace(i.Provider))
	return p != "" && p != "email" && p != "phone"
}

// RoutineResult is the payload returned by the privileged identity teardown routine.
type RoutineResult struct {
	AuthDeleted   bool     `json:"auth_deleted"`
	TablesDeleted []string `json:"tables_deleted,omitempty"`
}

// Backend is the remote collaborator used by the deletion orchestrator.
type Backend interface {
	// VerifyToken resolves a bearer credential to an identity.
	VerifyToken(ctx context.Context, credential string) (Identity, error)
	// Probe returns how many records (at most limit) match ownerKey == targetID.
	Probe(ctx context.Context, collection, ownerKey, targetID string, limit int) (int, error)
	// DeleteWhere removes every record matching ownerKey == targetID.
	DeleteWhere(ctx context.Context, collection, ownerKey, targetID string) (int64, error)
	// DeleteIdentity removes the authentication identity; force also unlinks provider records.
	DeleteIdentity(ctx context.Context, targetID string, force bool) error
	// CallPrivilegedRoutine invokes a server-side routine with elevated rights.
	CallPrivilegedRoutine(ctx context.Context, name, targetID string) (RoutineResult, error)
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
