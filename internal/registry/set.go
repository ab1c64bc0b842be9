package registry

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/fields"
)

// Set bundles the order-field and row-field registries of one database.
type Set struct {
	Orders *Registry
	Rows   *Registry
}

func NewSet(repo fields.Repository, log logging.Logger) *Set {
	return &Set{
		Orders: New(fields.OrderFields, repo, log),
		Rows:   New(fields.RowFields, repo, log),
	}
}

// Warm loads both caches.
func (s *Set) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Orders.Load(ctx) })
	g.Go(func() error { return s.Rows.Load(ctx) })
	return g.Wait()
}
