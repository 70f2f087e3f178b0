package migrate

import (
	"context"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"promosuite.app/ops/migrations"
)

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(`create table if not exists "promosuite_schema_migrations"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`create table if not exists "promosuite_schema_seeds"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a(id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
		"0002_b.up.sql":   {Data: []byte("create table b(id int); insert into b values (1);")},
	}

	expectEnsure(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`select name from "promosuite_schema_migrations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b(id int);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into b values (1);")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta(`insert into "promosuite_schema_migrations"(name, applied_at)`)).
		WithArgs("0002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(db, fsys, nil, WithLogger(zap.NewNop()))
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpRollsBackFailedFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{"0001_a.up.sql": {Data: []byte("select broken;")}}
	expectEnsure(mock)
	mock.ExpectQuery(`select name from`).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`select broken`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = NewManager(db, fsys, nil, WithLogger(zap.NewNop())).Up(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a(id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}
	expectEnsure(mock)
	mock.ExpectQuery(`select name from`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table a;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta(`delete from "promosuite_schema_migrations" where name = $1`)).
		WithArgs("0001_a.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewManager(db, fsys, nil, WithLogger(zap.NewNop())).Down(context.Background()); err != nil {
		t.Fatalf("down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery(`select name from`).WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err = NewManager(db, fstest.MapFS{}, nil, WithLogger(zap.NewNop())).Down(context.Background())
	if !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	src := `-- header; with a semicolon
create function f() returns int language plpgsql as $$
begin
  perform 'a;b';
  return 1;
end;
$$;
insert into t values ('x;y');
select $1::uuid;
`
	got := splitStatements(src)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if !regexp.MustCompile(`(?s)^-- header.*end;\n\$\$;$`).MatchString(got[0]) {
		t.Fatalf("function body split incorrectly: %q", got[0])
	}
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	files, err := collectSQL(migrations.SQL(), ".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migrations")
	}
	raw, err := fs.ReadFile(migrations.SQL(), files[0])
	if err != nil {
		t.Fatalf("read %s: %v", files[0], err)
	}
	stmts := splitStatements(string(raw))
	if len(stmts) != 3 {
		t.Fatalf("expected function, revoke and grant statements, got %d", len(stmts))
	}
	seeds, err := collectSQL(migrations.Seeds(), ".sql")
	if err != nil || len(seeds) == 0 {
		t.Fatalf("seeds: %v %v", seeds, err)
	}
}
