// Package repomanager provides a concrete RepositoryManager for the
// supported SQL dialects, wiring together repository constructors and
// database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/orderkeeper/internal/dbx"
	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
	"github.com/dmitrijs2005/orderkeeper/internal/migrations"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/fields"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/orders"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
)

// SQLRepositoryManager vends SQL-backed repository implementations for one
// dialect and exposes a schema migration hook.
type SQLRepositoryManager struct {
	d dialect.Dialect
}

func (m *SQLRepositoryManager) Dialect() dialect.Dialect { return m.d }

// Fields returns a fields.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Fields(db dbx.DBTX) fields.Repository {
	return fields.NewSQLRepository(db, m.d)
}

// Orders returns an orders.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Orders(db dbx.DBTX) orders.Repository {
	return orders.NewSQLRepository(db, m.d)
}

// Rows returns a rows.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Rows(db dbx.DBTX) rows.Repository {
	return rows.NewSQLRepository(db, m.d)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations of the
// manager's dialect and runs them against the provided connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.d.GooseDialect()); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, m.d.GooseDialect()); err != nil {
		return err
	}
	return nil
}

// NewRepositoryManager constructs a RepositoryManager for the dialect.
func NewRepositoryManager(d dialect.Dialect) (RepositoryManager, error) {
	if d == nil {
		return nil, fmt.Errorf("repository manager: nil dialect")
	}
	return &SQLRepositoryManager{d: d}, nil
}
