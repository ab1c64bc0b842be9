package fields

import (
	"context"

	"github.com/google/uuid"
)

// Namespace selects one of the two field vocabularies.
type Namespace string

const (
	OrderFields Namespace = "orders_orderFields"
	RowFields   Namespace = "orders_rowFields"
)

// Field is one registry entry: a stable identifier bound to a name.
type Field struct {
	ID   uuid.UUID
	Name string
}

type Repository interface {
	InsertIgnore(ctx context.Context, ns Namespace, id uuid.UUID, name string) error
	List(ctx context.Context, ns Namespace) ([]Field, error)
}
