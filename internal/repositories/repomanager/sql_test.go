package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/fields"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/orders"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewRepositoryManager_ReturnsInterface(t *testing.T) {
	m, err := NewRepositoryManager(dialect.Postgres{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var _ RepositoryManager = m
	if m.Dialect().Name() != "pgx" {
		t.Fatalf("unexpected dialect %q", m.Dialect().Name())
	}
}

func TestNewRepositoryManager_NilDialect(t *testing.T) {
	if _, err := NewRepositoryManager(nil); err == nil {
		t.Fatal("expected error for nil dialect")
	}
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &SQLRepositoryManager{d: dialect.MySQL{}}

	if f := m.Fields(db); f == nil {
		t.Fatal("Fields() nil")
	}
	if o := m.Orders(db); o == nil {
		t.Fatal("Orders() nil")
	}
	if r := m.Rows(db); r == nil {
		t.Fatal("Rows() nil")
	}

	var _ fields.Repository = m.Fields(db)
	var _ orders.Repository = m.Orders(db)
	var _ rows.Repository = m.Rows(db)
}

func TestRunMigrations_UsesDialectDirectory(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	tests := []struct {
		d   dialect.Dialect
		dir string
	}{
		{dialect.Postgres{}, "postgres"},
		{dialect.MySQL{}, "mysql"},
	}
	for _, tt := range tests {
		orig := gooseUpContext
		var gotDir string
		gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
			gotDir = dir
			if len(opts) != 0 {
				return errors.New("unexpected opts")
			}
			return nil
		}

		m := &SQLRepositoryManager{d: tt.d}
		if err := m.RunMigrations(context.Background(), db); err != nil {
			t.Fatalf("RunMigrations error: %v", err)
		}
		gooseUpContext = orig
		if gotDir != tt.dir {
			t.Fatalf("want dir %q, got %q", tt.dir, gotDir)
		}
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &SQLRepositoryManager{d: dialect.Postgres{}}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
