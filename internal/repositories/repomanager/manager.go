package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/orderkeeper/internal/dbx"
	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/fields"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/orders"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
)

type RepositoryManager interface {
	Dialect() dialect.Dialect
	RunMigrations(context.Context, *sql.DB) error
	Fields(db dbx.DBTX) fields.Repository
	Orders(db dbx.DBTX) orders.Repository
	Rows(db dbx.DBTX) rows.Repository
}
