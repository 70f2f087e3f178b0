// Package pg implements backend.Backend directly against the platform's Postgres
// database using the service-level connection.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"promosuite.app/internal/auth"
	"promosuite.app/internal/backend"
)

// SQLSTATE codes mapped onto backend sentinels.
const (
	codeUndefinedTable    = "42P01"
	codeInvalidSchemaName = "3F000"
	codeInsufficientPriv  = "42501"
	codeUndefinedFunction = "42883"
)

// tables holding provider links and sessions that block a plain identity delete
var identityDependents = []string{
	"auth.mfa_factors",
	"auth.sessions",
	"auth.refresh_tokens",
	"auth.identities",
}

type Backend struct {
	db     *sql.DB
	tokens *auth.TokenVerifier
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Pinger  = (*Backend)(nil)
)

// Open connects through the pgx stdlib driver.
func Open(dsn string, tokens *auth.TokenVerifier) (*Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// one request runs its calls sequentially; a small pool is enough
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, tokens), nil
}

// New wraps an existing handle.
func New(db *sql.DB, tokens *auth.TokenVerifier) *Backend {
	return &Backend{db: db, tokens: tokens}
}

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) DB() *sql.DB { return b.db }

func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *Backend) VerifyToken(ctx context.Context, credential string) (backend.Identity, error) {
	if b.tokens == nil {
		return backend.Identity{}, fmt.Errorf("%w: token verification not configured", backend.ErrInvalidToken)
	}
	claims, err := b.tokens.Parse(credential)
	if err != nil {
		return backend.Identity{}, fmt.Errorf("%w: %v", backend.ErrInvalidToken, err)
	}

	var id backend.Identity
	err = b.db.QueryRowContext(ctx, `
		select id::text, coalesce(email, ''), coalesce(raw_app_meta_data->>'provider', ''), created_at
		from auth.users
		where id::text = $1 and deleted_at is null
	`, claims.Subject).Scan(&id.ID, &id.Email, &id.Provider, &id.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Identity{}, backend.ErrIdentityNotFound
	}
	if err != nil {
		return backend.Identity{}, classify(err)
	}
	return id, nil
}

func (b *Backend) Probe(ctx context.Context, collection, ownerKey, targetID string, limit int) (int, error) {
	if limit <= 0 {
		limit = 1
	}
	table, column, err := identifiers(collection, ownerKey)
	if err != nil {
		return 0, err
	}
	rows, err := b.db.QueryContext(ctx,
		fmt.Sprintf(`select 1 from %s where %s::text = $1 limit %d`, table, column, limit),
		targetID,
	)
	if err != nil {
		return 0, classify(err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (b *Backend) DeleteWhere(ctx context.Context, collection, ownerKey, targetID string) (int64, error) {
	table, column, err := identifiers(collection, ownerKey)
	if err != nil {
		return 0, err
	}
	res, err := b.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where %s::text = $1`, table, column),
		targetID,
	)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

func (b *Backend) DeleteIdentity(ctx context.Context, targetID string, force bool) error {
	if !force {
		res, err := b.db.ExecContext(ctx, `delete from auth.users where id::text = $1`, targetID)
		if err != nil {
			return classify(err)
		}
		return expectOne(res)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, dep := range identityDependents {
		stmt := fmt.Sprintf(`delete from %s where user_id::text = $1`, quote(dep))
		if _, err := tx.ExecContext(ctx, stmt, targetID); err != nil {
			return fmt.Errorf("unlink %s: %w", dep, classify(err))
		}
	}
	res, err := tx.ExecContext(ctx, `delete from auth.users where id::text = $1`, targetID)
	if err != nil {
		return classify(err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *Backend) CallPrivilegedRoutine(ctx context.Context, name, targetID string) (backend.RoutineResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return backend.RoutineResult{}, backend.ErrRoutineUnavailable
	}
	var raw []byte
	err := b.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s($1::uuid)::text`, quote(name)),
		targetID,
	).Scan(&raw)
	if err != nil {
		return backend.RoutineResult{}, classify(err)
	}
	var res backend.RoutineResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return backend.RoutineResult{}, fmt.Errorf("decode %s result: %w", name, err)
	}
	return res, nil
}

func identifiers(collection, column string) (string, string, error) {
	collection = strings.TrimSpace(collection)
	column = strings.TrimSpace(column)
	if collection == "" || column == "" {
		return "", "", errors.New("pg: collection and owner key are required")
	}
	return quote(collection), quote(column), nil
}

// quote sanitizes a possibly schema-qualified identifier ("auth.users").
func quote(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return backend.ErrIdentityNotFound
	}
	return nil
}

// classify maps Postgres error codes onto backend sentinels, keeping the server message.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUndefinedTable, codeInvalidSchemaName:
		return fmt.Errorf("%w: %s", backend.ErrSchemaNotFound, pgErr.Message)
	case codeInsufficientPriv:
		return fmt.Errorf("%w: %s", backend.ErrPermissionDenied, pgErr.Message)
	case codeUndefinedFunction:
		return fmt.Errorf("%w: %s", backend.ErrRoutineUnavailable, pgErr.Message)
	default:
		return err
	}
}
