package rows

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Value is one stored row-field tuple. Exactly one of Int and Str is valid.
type Value struct {
	RowID   uuid.UUID
	FieldID uuid.UUID
	Int     sql.NullInt64
	Str     sql.NullString
}

// LoadedValue is a row-field tuple joined with its order and field name.
// Rows without any selected field come back once with an empty Name.
type LoadedValue struct {
	OrderID uuid.UUID
	RowID   uuid.UUID
	Name    string
	Int     sql.NullInt64
	Str     sql.NullString
}

type Repository interface {
	ListRowIDs(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error)
	ListValues(ctx context.Context, orderID uuid.UUID) ([]Value, error)

	InsertRows(ctx context.Context, orderID uuid.UUID, rowIDs []uuid.UUID) error
	InsertValues(ctx context.Context, values []Value) error
	DeleteValues(ctx context.Context, rowIDs []uuid.UUID) error
	DeleteRows(ctx context.Context, rowIDs []uuid.UUID) error
	DeleteValuesByOrder(ctx context.Context, orderID uuid.UUID) error
	DeleteRowsByOrder(ctx context.Context, orderID uuid.UUID) error

	Load(ctx context.Context, orderIDs []uuid.UUID, names []string) ([]LoadedValue, error)
}
