// Package rows persists order rows and their typed row-field values.
package rows

import (
	"context"
	"fmt"
	"strings"

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

func (r *SQLRepository) ListRowIDs(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	query := r.d.Rebind(`SELECT rowUuid FROM orders_rows WHERE orderUuid = ?`)
	rows, err := r.db.QueryContext(ctx, query, r.d.UUIDArg(orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to select rows: %w", err)
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListValues returns every row-field tuple of an order's rows.
func (r *SQLRepository) ListValues(ctx context.Context, orderID uuid.UUID) ([]Value, error) {
	query := r.d.Rebind(`SELECT v.rowUuid, v.rowFieldUuid, v.rowIntValue, v.rowStrValue
		FROM orders_rows_fields v
		JOIN orders_rows r ON r.rowUuid = v.rowUuid
		WHERE r.orderUuid = ?`)
	rows, err := r.db.QueryContext(ctx, query, r.d.UUIDArg(orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to select row values: %w", err)
	}
	defer rows.Close()

	var result []Value
	for rows.Next() {
		var v Value
		if err := rows.Scan(&v.RowID, &v.FieldID, &v.Int, &v.Str); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLRepository) InsertRows(ctx context.Context, orderID uuid.UUID, rowIDs []uuid.UUID) error {
	cols := []string{"rowUuid", "orderUuid"}
	orderArg := r.d.UUIDArg(orderID)
	return dbx.InBatches(rowIDs, dialect.BatchSize(r.d, len(cols)), func(chunk []uuid.UUID) error {
		args := make([]any, 0, len(chunk)*len(cols))
		for _, id := range chunk {
			args = append(args, r.d.UUIDArg(id), orderArg)
		}
		query := r.d.Rebind(dialect.Insert("orders_rows", cols, len(chunk)))
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert rows: %w", err)
		}
		return nil
	})
}

func (r *SQLRepository) InsertValues(ctx context.Context, values []Value) error {
	cols := []string{"rowUuid", "rowFieldUuid", "rowIntValue", "rowStrValue"}
	return dbx.InBatches(values, dialect.BatchSize(r.d, len(cols)), func(chunk []Value) error {
		args := make([]any, 0, len(chunk)*len(cols))
		for _, v := range chunk {
			args = append(args, r.d.UUIDArg(v.RowID), r.d.UUIDArg(v.FieldID), v.Int, v.Str)
		}
		query := r.d.Rebind(dialect.Insert("orders_rows_fields", cols, len(chunk)))
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert row values: %w", err)
		}
		return nil
	})
}

func (r *SQLRepository) DeleteValues(ctx context.Context, rowIDs []uuid.UUID) error {
	return r.deleteIn(ctx, "orders_rows_fields", rowIDs)
}

func (r *SQLRepository) DeleteRows(ctx context.Context, rowIDs []uuid.UUID) error {
	return r.deleteIn(ctx, "orders_rows", rowIDs)
}

func (r *SQLRepository) deleteIn(ctx context.Context, table string, rowIDs []uuid.UUID) error {
	return dbx.InBatches(rowIDs, dialect.BatchSize(r.d, 1), func(chunk []uuid.UUID) error {
		query := r.d.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE rowUuid IN (%s)`, table, dialect.Placeholders(len(chunk))))
		if _, err := r.db.ExecContext(ctx, query, dialect.UUIDArgs(r.d, chunk)...); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

func (r *SQLRepository) DeleteValuesByOrder(ctx context.Context, orderID uuid.UUID) error {
	query := r.d.Rebind(`DELETE FROM orders_rows_fields WHERE rowUuid IN (SELECT rowUuid FROM orders_rows WHERE orderUuid = ?)`)
	if _, err := r.db.ExecContext(ctx, query, r.d.UUIDArg(orderID)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) DeleteRowsByOrder(ctx context.Context, orderID uuid.UUID) error {
	query := r.d.Rebind(`DELETE FROM orders_rows WHERE orderUuid = ?`)
	if _, err := r.db.ExecContext(ctx, query, r.d.UUIDArg(orderID)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Load returns the rows of the given orders with their values, restricted
// to the named fields unless names is nil.
func (r *SQLRepository) Load(ctx context.Context, orderIDs []uuid.UUID, names []string) ([]LoadedValue, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var b strings.Builder
	var args []any
	b.WriteString(`SELECT r.orderUuid, r.rowUuid, n.name, v.rowIntValue, v.rowStrValue
		FROM orders_rows r
		LEFT JOIN orders_rows_fields v ON v.rowUuid = r.rowUuid`)
	if names != nil {
		b.WriteString(` AND v.rowFieldUuid IN (SELECT uuid FROM orders_rowFields WHERE name IN (`)
		if len(names) == 0 {
			b.WriteString("NULL")
		} else {
			b.WriteString(dialect.Placeholders(len(names)))
		}
		b.WriteString("))")
		for _, n := range names {
			args = append(args, n)
		}
	}
	b.WriteString(`
		LEFT JOIN orders_rowFields n ON n.uuid = v.rowFieldUuid
		WHERE r.orderUuid IN (`)
	b.WriteString(dialect.Placeholders(len(orderIDs)))
	b.WriteString(")")
	args = append(args, dialect.UUIDArgs(r.d, orderIDs)...)

	rows, err := r.db.QueryContext(ctx, r.d.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}
	defer rows.Close()

	var result []LoadedValue
	for rows.Next() {
		var (
			v    LoadedValue
			name *string
		)
		if err := rows.Scan(&v.OrderID, &v.RowID, &name, &v.Int, &v.Str); err != nil {
			return nil, err
		}
		if name != nil {
			v.Name = *name
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
