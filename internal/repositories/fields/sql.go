// Package fields stores the order-field and row-field vocabularies: append
// only tables mapping a unique name to a stable identifier.
package fields

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/dbx"
	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
)

// SQLRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLRepository struct {
	db dbx.DBTX
	d  dialect.Dialect
}

// NewSQLRepository constructs a repository bound to the given DBTX.
func NewSQLRepository(db dbx.DBTX, d dialect.Dialect) *SQLRepository {
	return &SQLRepository{db: db, d: d}
}

func (r *SQLRepository) table(ns Namespace) (string, error) {
	switch ns {
	case OrderFields, RowFields:
		return string(ns), nil
	default:
		return "", fmt.Errorf("unknown field namespace %q", ns)
	}
}

// InsertIgnore registers name under id unless the name already exists.
// Losing a concurrent race for the same name is not an error.
func (r *SQLRepository) InsertIgnore(ctx context.Context, ns Namespace, id uuid.UUID, name string) error {
	table, err := r.table(ns)
	if err != nil {
		return err
	}
	query := r.d.Rebind(r.d.InsertIgnore(table, []string{"uuid", "name"}, 1))
	if _, err := r.db.ExecContext(ctx, query, r.d.UUIDArg(id), name); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns every entry of the namespace ordered by name.
func (r *SQLRepository) List(ctx context.Context, ns Namespace) ([]Field, error) {
	table, err := r.table(ns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT uuid, name FROM %s ORDER BY name`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to select fields: %w", err)
	}
	defer rows.Close()

	var result []Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
