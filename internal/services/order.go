// Package services implements the order operations on top of the
// repositories: diff-based save, load, removal, field value listing and
// paged queries.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/dbx"
	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/query"
	"github.com/dmitrijs2005/orderkeeper/internal/registry"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/orders"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/orderkeeper/internal/rowdiff"
	"github.com/dmitrijs2005/orderkeeper/internal/telemetry"
)

type OrderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	registries  *registry.Set
	log         logging.Logger
	now         func() time.Time
}

func NewOrderService(db *sql.DB, repomanager repomanager.RepositoryManager, registries *registry.Set,
	log logging.Logger, now func() time.Time) *OrderService {
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		db:          db,
		repomanager: repomanager,
		registries:  registries,
		log:         log,
		now:         now,
	}
}

func newRowID() uuid.UUID {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Save persists o in one transaction. Order-field values are rewritten in
// full; rows are diffed against storage so unchanged rows cause no writes.
// Rows without an identifier get one assigned in place.
func (s *OrderService) Save(ctx context.Context, o *models.Order) (err error) {
	if err := o.Validate(); err != nil {
		s.log.Warn(ctx, "order rejected", "error", err)
		return err
	}
	defer func() {
		models.StripSortOrder(o.Rows)
		result := "ok"
		if err != nil {
			result = "failed"
		}
		telemetry.RecordSave(ctx, result)
	}()

	o.Created = models.NormalizeTime(o.Created)
	var rowNames []string
	for i := range o.Rows {
		r := &o.Rows[i]
		if r.UUID == uuid.Nil {
			r.UUID = newRowID()
		}
		if r.Fields == nil {
			r.Fields = map[string][]models.Value{}
		}
		r.Fields[models.SortOrderField] = []models.Value{models.Int(int64(i))}
		rowNames = append(rowNames, r.FieldNames()...)
	}

	orderNames := o.Fields.Names()
	orderFieldIDs, err := s.registries.Orders.ResolveMany(ctx, orderNames)
	if err != nil {
		return err
	}
	rowFieldIDs, err := s.registries.Rows.ResolveMany(ctx, rowNames)
	if err != nil {
		return err
	}

	now := models.NormalizeTime(s.now())
	created := o.Created
	var delta rowdiff.Delta
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		orderRepo := s.repomanager.Orders(tx)
		rowRepo := s.repomanager.Rows(tx)

		if err := orderRepo.EnsureOrder(ctx, orders.Header{UUID: o.UUID, Created: o.Created, Updated: now}); err != nil {
			return err
		}
		if err := orderRepo.Touch(ctx, o.UUID, now); err != nil {
			return err
		}
		// created is fixed at first insert; report the stored value.
		stored, err := orderRepo.Get(ctx, o.UUID)
		if err != nil {
			return err
		}
		created = stored.Created

		if err := orderRepo.DeleteFieldValues(ctx, o.UUID); err != nil {
			return err
		}
		var values []orders.FieldValue
		for _, name := range orderNames {
			for _, v := range o.Fields[name] {
				values = append(values, orders.FieldValue{FieldID: orderFieldIDs[name], Value: v})
			}
		}
		if err := orderRepo.InsertFieldValues(ctx, o.UUID, values); err != nil {
			return err
		}

		snap, err := rowdiff.Load(ctx, rowRepo, o.UUID)
		if err != nil {
			return err
		}
		delta, err = rowdiff.Compute(o.Rows, rowFieldIDs, snap)
		if err != nil {
			return err
		}
		if delta.Unchanged() {
			return nil
		}

		rewrite := append(rowdiff.RowIDs(delta.Changed), delta.Removed...)
		if err := rowRepo.DeleteValues(ctx, rewrite); err != nil {
			return err
		}
		if err := rowRepo.DeleteRows(ctx, delta.Removed); err != nil {
			return err
		}
		var fresh []uuid.UUID
		for _, r := range delta.Changed {
			if delta.New[r.UUID] {
				fresh = append(fresh, r.UUID)
			}
		}
		if err := rowRepo.InsertRows(ctx, o.UUID, fresh); err != nil {
			return err
		}
		rowValues, err := rowdiff.Values(delta.Changed, rowFieldIDs)
		if err != nil {
			return err
		}
		return rowRepo.InsertValues(ctx, rowValues)
	})
	if err != nil {
		s.log.Error(ctx, "order save rolled back", "order", o.UUID, "error", err)
		return fmt.Errorf("failed to save order %s: %w", o.UUID, err)
	}

	o.Created = created
	o.Updated = now
	telemetry.RecordRowWrites(ctx, "inserted", len(delta.New))
	telemetry.RecordRowWrites(ctx, "changed", len(delta.Changed)-len(delta.New))
	telemetry.RecordRowWrites(ctx, "removed", len(delta.Removed))
	s.log.Info(ctx, "order saved", "order", o.UUID,
		"rows", len(o.Rows), "changed", len(delta.Changed), "removed", len(delta.Removed))
	return nil
}

// Load reads an order by identifier. A missing order is reported with
// found == false and a nil error.
func (s *OrderService) Load(ctx context.Context, id uuid.UUID) (o *models.Order, found bool, err error) {
	err = dbx.WithTx(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx dbx.DBTX) error {
		h, err := s.repomanager.Orders(tx).Get(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		o = &models.Order{UUID: h.UUID, Created: h.Created, Updated: h.Updated, Fields: models.Fields{}}

		values, err := s.repomanager.Orders(tx).FieldValues(ctx, []uuid.UUID{id}, nil)
		if err != nil {
			return err
		}
		for _, v := range values {
			o.Fields[v.Name] = append(o.Fields[v.Name], v.Value)
		}

		loaded, err := s.repomanager.Rows(tx).Load(ctx, []uuid.UUID{id}, nil)
		if err != nil {
			return err
		}
		grouped, err := query.GroupRows(loaded, map[uuid.UUID]*models.Order{id: o})
		if err != nil {
			return err
		}
		o.Rows = grouped[id]
		models.SortRows(o.Rows)
		models.StripSortOrder(o.Rows)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return o, o != nil, nil
}

// Remove deletes an order with its field values, rows and row values.
// Field registrations are kept. Removing a missing order is a no-op.
func (s *OrderService) Remove(ctx context.Context, id uuid.UUID) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		orderRepo := s.repomanager.Orders(tx)
		rowRepo := s.repomanager.Rows(tx)
		if err := orderRepo.DeleteFieldValues(ctx, id); err != nil {
			return err
		}
		if err := rowRepo.DeleteValuesByOrder(ctx, id); err != nil {
			return err
		}
		if err := rowRepo.DeleteRowsByOrder(ctx, id); err != nil {
			return err
		}
		return orderRepo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to remove order %s: %w", id, err)
	}
	s.log.Info(ctx, "order removed", "order", id)
	return nil
}

// FieldValues lists the distinct values of an order field, sorted. When
// matchAll is not empty only orders matching it are considered.
func (s *OrderService) FieldValues(ctx context.Context, name string, matchAll map[string][]string) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty field name", common.ErrValidation)
	}
	var filter orders.Filter
	if len(matchAll) > 0 {
		p := query.Build(s.repomanager.Dialect(), query.Options{MatchAllFields: matchAll})
		filter = orders.Filter{Where: p.Where, Args: p.Args}
	}
	return s.repomanager.Orders(s.db).DistinctFieldValues(ctx, name, filter)
}

// Query returns one page of orders matching opts.
func (s *OrderService) Query(ctx context.Context, opts query.Options) (query.Result, error) {
	res, err := query.Execute(ctx, s.db, s.repomanager, opts)
	if err != nil {
		s.log.Error(ctx, "order query failed", "error", err)
		return query.Result{}, err
	}
	s.log.Debug(ctx, "order query", "hits", res.Hits, "page", len(res.IDs))
	return res, nil
}
