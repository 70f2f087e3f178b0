package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"promosuite.app/internal/auth"
	"promosuite.app/internal/backend"
)

func newMock(t *testing.T) (*Backend, sqlmock.Sqlmock, *auth.TokenVerifier) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	v, err := auth.NewTokenVerifier("pg-test-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	return New(db, v), mock, v
}

func TestVerifyToken(t *testing.T) {
	b, mock, v := newMock(t)
	token, err := v.Sign("5b7c", "agent@example.com", "google", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select id::text, coalesce\\(email").
		WithArgs("5b7c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "provider", "created_at"}).
			AddRow("5b7c", "agent@example.com", "google", created))

	id, err := b.VerifyToken(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id.ID != "5b7c" || id.Provider != "google" || !id.CreatedAt.Equal(created) {
		t.Fatalf("unexpected identity: %+v", id)
	}

	mock.ExpectQuery("select id::text").WithArgs("5b7c").WillReturnError(sql.ErrNoRows)
	if _, err := b.VerifyToken(context.Background(), token); !errors.Is(err, backend.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}

	if _, err := b.VerifyToken(context.Background(), "garbage"); !errors.Is(err, backend.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProbe(t *testing.T) {
	b, mock, _ := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`select 1 from "flyers" where "user_id"::text = $1 limit 1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	if n, err := b.Probe(ctx, "flyers", "user_id", "u1", 1); err != nil || n != 1 {
		t.Fatalf("Probe = %d, %v", n, err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`select 1 from "public"."media"`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	if n, err := b.Probe(ctx, "public.media", "user_id", "u1", 0); err != nil || n != 0 {
		t.Fatalf("Probe empty = %d, %v", n, err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`select 1 from "ghost"`)).
		WithArgs("u1").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "ghost" does not exist`})
	if _, err := b.Probe(ctx, "ghost", "user_id", "u1", 1); !errors.Is(err, backend.ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`select 1 from "billing"`)).
		WithArgs("u1").
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied for table billing"})
	if _, err := b.Probe(ctx, "billing", "user_id", "u1", 1); !errors.Is(err, backend.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProbeQuotesHostileIdentifiers(t *testing.T) {
	b, mock, _ := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select 1 from "x; drop table users" where "user_id"::text = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	if _, err := b.Probe(context.Background(), "x; drop table users", "user_id", "u1", 1); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if _, err := b.Probe(context.Background(), "", "user_id", "u1", 1); err == nil {
		t.Fatal("expected error for empty collection")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteWhere(t *testing.T) {
	b, mock, _ := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`delete from "profiles" where "id"::text = $1`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := b.DeleteWhere(context.Background(), "profiles", "id", "u1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteWhere = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteIdentityStandard(t *testing.T) {
	b, mock, _ := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`delete from auth.users where id::text = $1`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := b.DeleteIdentity(context.Background(), "u1", false); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`delete from auth.users`)).
		WithArgs("u1").
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})
	var pgErr *pgconn.PgError
	if err := b.DeleteIdentity(context.Background(), "u1", false); !errors.As(err, &pgErr) {
		t.Fatalf("expected raw PgError passthrough, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteIdentityForced(t *testing.T) {
	b, mock, _ := newMock(t)
	mock.ExpectBegin()
	for _, dep := range []string{`"auth"."mfa_factors"`, `"auth"."sessions"`, `"auth"."refresh_tokens"`, `"auth"."identities"`} {
		mock.ExpectExec(regexp.QuoteMeta(`delete from `+dep+` where user_id::text = $1`)).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(`delete from auth.users where id::text = $1`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := b.DeleteIdentity(context.Background(), "u1", true); err != nil {
		t.Fatalf("DeleteIdentity force: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteIdentityForcedRollsBack(t *testing.T) {
	b, mock, _ := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`delete from "auth"."mfa_factors"`)).
		WithArgs("u1").
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied for schema auth"})
	mock.ExpectRollback()

	err := b.DeleteIdentity(context.Background(), "u1", true)
	if !errors.Is(err, backend.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCallPrivilegedRoutine(t *testing.T) {
	b, mock, _ := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`select "delete_oauth_user_complete"($1::uuid)::text`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).
			AddRow([]byte(`{"auth_deleted":true,"tables_deleted":["flyers","profiles"]}`)))
	res, err := b.CallPrivilegedRoutine(ctx, "delete_oauth_user_complete", "u1")
	if err != nil {
		t.Fatalf("CallPrivilegedRoutine: %v", err)
	}
	if !res.AuthDeleted || len(res.TablesDeleted) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`select "delete_oauth_user_complete"`)).
		WithArgs("u1").
		WillReturnError(&pgconn.PgError{Code: "42883", Message: "function does not exist"})
	if _, err := b.CallPrivilegedRoutine(ctx, "delete_oauth_user_complete", "u1"); !errors.Is(err, backend.ErrRoutineUnavailable) {
		t.Fatalf("expected ErrRoutineUnavailable, got %v", err)
	}

	if _, err := b.CallPrivilegedRoutine(ctx, " ", "u1"); !errors.Is(err, backend.ErrRoutineUnavailable) {
		t.Fatalf("expected ErrRoutineUnavailable for blank name, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
