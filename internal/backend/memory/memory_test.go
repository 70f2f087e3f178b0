package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"promosuite.app/internal/auth"
	"promosuite.app/internal/backend"
)

func TestProbeAndDelete(t *testing.T) {
	ctx := context.Background()
	b := New()
	b.Insert("flyers", Record{"user_id": "u1"}, Record{"user_id": "u1"}, Record{"user_id": "u2"})
	b.CreateCollection("media")

	n, err := b.Probe(ctx, "flyers", "user_id", "u1", 1)
	if err != nil || n != 1 {
		t.Fatalf("Probe limited = %d, %v", n, err)
	}
	if n, err := b.Probe(ctx, "media", "user_id", "u1", 1); err != nil || n != 0 {
		t.Fatalf("Probe empty = %d, %v", n, err)
	}
	if _, err := b.Probe(ctx, "ghost", "user_id", "u1", 1); !errors.Is(err, backend.ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}

	deleted, err := b.DeleteWhere(ctx, "flyers", "user_id", "u1")
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteWhere = %d, %v", deleted, err)
	}
	if b.Count("flyers", "user_id", "u2") != 1 {
		t.Fatal("other user's record must survive")
	}
	if c := b.Calls(); c.Probes != 3 || c.Deletes != 1 {
		t.Fatalf("unexpected calls: %+v", c)
	}
}

func TestVerifyTokenStaticAndJWT(t *testing.T) {
	ctx := context.Background()
	v, err := auth.NewTokenVerifier("dev-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	b := New(WithTokenVerifier(v))

	id, cred := b.NewIdentity("a@example.com", "")
	got, err := b.VerifyToken(ctx, cred)
	if err != nil || got.ID != id.ID {
		t.Fatalf("VerifyToken static = %+v, %v", got, err)
	}

	token, err := v.Sign("jwt-user", "j@example.com", "google", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err = b.VerifyToken(ctx, token)
	if err != nil || got.ID != "jwt-user" || !got.Federated() {
		t.Fatalf("VerifyToken jwt = %+v, %v", got, err)
	}

	if err := b.DeleteIdentity(ctx, "jwt-user", false); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if _, err := b.VerifyToken(ctx, token); !errors.Is(err, backend.ErrIdentityNotFound) {
		t.Fatalf("deleted identity must not resurrect, got %v", err)
	}
	if _, err := b.VerifyToken(ctx, "bogus"); !errors.Is(err, backend.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIdentityDeleteFaults(t *testing.T) {
	ctx := context.Background()
	b := New()
	id, _ := b.NewIdentity("o@example.com", "google")
	boom := errors.New("standard delete refused")
	b.FailIdentityDelete(false, boom)

	if err := b.DeleteIdentity(ctx, id.ID, false); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if err := b.DeleteIdentity(ctx, id.ID, true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if b.HasIdentity(id.ID) {
		t.Fatal("identity should be gone")
	}
}

func TestOAuthTeardownRoutine(t *testing.T) {
	ctx := context.Background()
	b := New()
	id, _ := b.NewIdentity("o@example.com", "google")
	b.Insert("flyers", Record{"user_id": id.ID})
	b.Insert("media", Record{"user_id": "someone-else"})

	if _, err := b.CallPrivilegedRoutine(ctx, "delete_oauth_user_complete", id.ID); !errors.Is(err, backend.ErrRoutineUnavailable) {
		t.Fatalf("expected ErrRoutineUnavailable, got %v", err)
	}

	b.RegisterRoutine("delete_oauth_user_complete", OAuthTeardown)
	res, err := b.CallPrivilegedRoutine(ctx, "delete_oauth_user_complete", id.ID)
	if err != nil {
		t.Fatalf("CallPrivilegedRoutine: %v", err)
	}
	if !res.AuthDeleted || len(res.TablesDeleted) != 1 || res.TablesDeleted[0] != "flyers" {
		t.Fatalf("unexpected routine result: %+v", res)
	}
	if b.HasIdentity(id.ID) {
		t.Fatal("identity should be gone")
	}
}
