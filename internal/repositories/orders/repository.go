package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Header is the base record of an order.
type Header struct {
	UUID    uuid.UUID
	Created time.Time
	Updated time.Time
}

// FieldValue is one order-field value to be written.
type FieldValue struct {
	FieldID uuid.UUID
	Value   string
}

// NamedValue is one stored order-field value resolved to its field name.
type NamedValue struct {
	OrderID uuid.UUID
	Name    string
	Value   string
}

// Filter restricts DistinctFieldValues to orders matching an SQL predicate
// over the orders table aliased as o. An empty Where matches every order.
type Filter struct {
	Where string
	Args  []any
}

type Repository interface {
	EnsureOrder(ctx context.Context, h Header) error
	Touch(ctx context.Context, id uuid.UUID, updated time.Time) error
	Get(ctx context.Context, id uuid.UUID) (Header, error)
	Delete(ctx context.Context, id uuid.UUID) error

	DeleteFieldValues(ctx context.Context, id uuid.UUID) error
	InsertFieldValues(ctx context.Context, id uuid.UUID, values []FieldValue) error
	FieldValues(ctx context.Context, ids []uuid.UUID, names []string) ([]NamedValue, error)
	DistinctFieldValues(ctx context.Context, name string, f Filter) ([]string, error)
}
