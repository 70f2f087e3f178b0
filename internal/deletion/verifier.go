package deletion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promosuite.app/internal/backend"
)

// Verifier is the authorization gate: the bearer credential must resolve to the
// account being deleted.
type Verifier struct {
	backend backend.Backend
	timeout time.Duration
}

func NewVerifier(b backend.Backend, timeout time.Duration) *Verifier {
	return &Verifier{backend: b, timeout: timeout}
}

// Verify returns the resolved identity or an *AuthError. Backend failures that are not
// about the credential itself are returned as plain errors.
func (v *Verifier) Verify(ctx context.Context, credential, targetID string) (backend.Identity, error) {
	credential = strings.TrimSpace(credential)
	targetID = strings.TrimSpace(targetID)
	if credential == "" || targetID == "" {
		return backend.Identity{}, unauthorized(ReasonMalformed, nil)
	}

	callCtx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	identity, err := v.backend.VerifyToken(callCtx, credential)
	switch {
	case errors.Is(err, backend.ErrInvalidToken):
		return backend.Identity{}, unauthorized(ReasonTokenVerification, err)
	case errors.Is(err, backend.ErrIdentityNotFound):
		return backend.Identity{}, unauthorized(ReasonNoIdentity, err)
	case err != nil:
		return backend.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	if strings.TrimSpace(identity.ID) == "" {
		return backend.Identity{}, unauthorized(ReasonNoIdentity, nil)
	}
	if identity.ID != targetID {
		return backend.Identity{}, unauthorized(ReasonIdentityMismatch, nil)
	}
	return identity, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
