// Package orders persists order headers and their order-field values.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
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

// EnsureOrder inserts the order header unless it already exists. An existing
// header keeps its original created time.
func (r *SQLRepository) EnsureOrder(ctx context.Context, h Header) error {
	query := r.d.Rebind(r.d.InsertIgnore("orders", []string{"uuid", "created", "updated"}, 1))
	if _, err := r.db.ExecContext(ctx, query, r.d.UUIDArg(h.UUID), h.Created, h.Updated); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Touch sets the updated time of an order.
func (r *SQLRepository) Touch(ctx context.Context, id uuid.UUID, updated time.Time) error {
	query := r.d.Rebind(`UPDATE orders SET updated = ? WHERE uuid = ?`)
	if _, err := r.db.ExecContext(ctx, query, updated, r.d.UUIDArg(id)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the order header or common.ErrorNotFound.
func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (Header, error) {
	query := r.d.Rebind(`SELECT uuid, created, updated FROM orders WHERE uuid = ?`)
	var h Header
	err := r.db.QueryRowContext(ctx, query, r.d.UUIDArg(id)).Scan(&h.UUID, &h.Created, &h.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Header{}, common.ErrorNotFound
	}
	if err != nil {
		return Header{}, fmt.Errorf("failed to select order: %w", err)
	}
	h.Created = h.Created.UTC()
	h.Updated = h.Updated.UTC()
	return h, nil
}

func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := r.d.Rebind(`DELETE FROM orders WHERE uuid = ?`)
	if _, err := r.db.ExecContext(ctx, query, r.d.UUIDArg(id)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) DeleteFieldValues(ctx context.Context, id uuid.UUID) error {
	query := r.d.Rebind(`DELETE FROM orders_orders_fields WHERE orderUuid = ?`)
	if _, err := r.db.ExecContext(ctx, query, r.d.UUIDArg(id)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// InsertFieldValues bulk inserts values in batches sized for the dialect.
func (r *SQLRepository) InsertFieldValues(ctx context.Context, id uuid.UUID, values []FieldValue) error {
	cols := []string{"orderUuid", "fieldUuid", "fieldValue"}
	orderArg := r.d.UUIDArg(id)
	return dbx.InBatches(values, dialect.BatchSize(r.d, len(cols)), func(chunk []FieldValue) error {
		args := make([]any, 0, len(chunk)*len(cols))
		for _, v := range chunk {
			args = append(args, orderArg, r.d.UUIDArg(v.FieldID), v.Value)
		}
		query := r.d.Rebind(dialect.Insert("orders_orders_fields", cols, len(chunk)))
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert field values: %w", err)
		}
		return nil
	})
}

// FieldValues returns the field values of the given orders. A nil names
// slice selects every field.
func (r *SQLRepository) FieldValues(ctx context.Context, ids []uuid.UUID, names []string) ([]NamedValue, error) {
	if len(ids) == 0 || (names != nil && len(names) == 0) {
		return nil, nil
	}
	var b strings.Builder
	b.WriteString(`SELECT v.orderUuid, f.name, v.fieldValue FROM orders_orders_fields v
		JOIN orders_orderFields f ON f.uuid = v.fieldUuid
		WHERE v.orderUuid IN (`)
	b.WriteString(dialect.Placeholders(len(ids)))
	b.WriteString(")")
	args := dialect.UUIDArgs(r.d, ids)
	if names != nil {
		b.WriteString(" AND f.name IN (")
		b.WriteString(dialect.Placeholders(len(names)))
		b.WriteString(")")
		for _, n := range names {
			args = append(args, n)
		}
	}

	rows, err := r.db.QueryContext(ctx, r.d.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select field values: %w", err)
	}
	defer rows.Close()

	var result []NamedValue
	for rows.Next() {
		var v NamedValue
		if err := rows.Scan(&v.OrderID, &v.Name, &v.Value); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DistinctFieldValues lists the distinct values of one field across the
// orders matching f, sorted.
func (r *SQLRepository) DistinctFieldValues(ctx context.Context, name string, f Filter) ([]string, error) {
	query := `SELECT DISTINCT dv.fieldValue FROM orders_orders_fields dv
		JOIN orders_orderFields df ON df.uuid = dv.fieldUuid
		WHERE df.name = ?`
	args := []any{name}
	if f.Where != "" {
		query += ` AND dv.orderUuid IN (SELECT o.uuid FROM orders o WHERE ` + f.Where + `)`
		args = append(args, f.Args...)
	}
	query += ` ORDER BY dv.fieldValue`

	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select distinct field values: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
