package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/dbx"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
	"github.com/dmitrijs2005/orderkeeper/internal/telemetry"
)

// Result is one page of matching orders.
type Result struct {
	// Orders holds the page keyed by identifier.
	Orders map[uuid.UUID]*models.Order
	// IDs lists the page in result order: newest first.
	IDs []uuid.UUID
	// Hits counts every matching order regardless of pagination.
	Hits int64
}

// Ordered returns the page as a slice in result order.
func (r Result) Ordered() []*models.Order {
	out := make([]*models.Order, 0, len(r.IDs))
	for _, id := range r.IDs {
		out = append(out, r.Orders[id])
	}
	return out
}

// Execute runs the page and count queries concurrently, then enriches the
// page with the requested projections. db must be safe for concurrent use,
// which *sql.DB is and *sql.Tx is not.
func Execute(ctx context.Context, db dbx.DBTX, rm repomanager.RepositoryManager, opts Options) (res Result, err error) {
	start := time.Now()
	defer func() { telemetry.RecordQuery(ctx, start, err != nil) }()

	opts = opts.Normalized()
	d := rm.Dialect()
	pred := Build(d, opts)
	pageSQL, countSQL := PageSQL(d, pred, opts.Limit, opts.Offset)

	var (
		headers []*models.Order
		hits    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rs, err := db.QueryContext(gctx, pageSQL, pred.Args...)
		if err != nil {
			return fmt.Errorf("failed to select orders: %w", err)
		}
		defer rs.Close()
		for rs.Next() {
			o := &models.Order{Fields: models.Fields{}}
			if err := rs.Scan(&o.UUID, &o.Created, &o.Updated); err != nil {
				return err
			}
			o.Created = o.Created.UTC()
			o.Updated = o.Updated.UTC()
			headers = append(headers, o)
		}
		return rs.Err()
	})
	g.Go(func() error {
		if err := db.QueryRowContext(gctx, countSQL, pred.Args...).Scan(&hits); err != nil {
			return fmt.Errorf("failed to count orders: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res = Result{Orders: make(map[uuid.UUID]*models.Order, len(headers)), IDs: make([]uuid.UUID, 0, len(headers)), Hits: hits}
	for _, o := range headers {
		res.Orders[o.UUID] = o
		res.IDs = append(res.IDs, o.UUID)
	}
	if len(res.IDs) == 0 {
		return res, nil
	}

	if len(opts.ReturnFields) > 0 {
		if err := enrichFields(ctx, db, rm, res, opts.ReturnFields); err != nil {
			return Result{}, err
		}
	}
	if len(opts.ReturnRowFields) > 0 {
		if err := enrichRows(ctx, db, rm, res, opts.ReturnRowFields); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func enrichFields(ctx context.Context, db dbx.DBTX, rm repomanager.RepositoryManager, res Result, requested []string) error {
	names, _ := projection(requested)
	values, err := rm.Orders(db).FieldValues(ctx, res.IDs, names)
	if err != nil {
		return err
	}
	for _, v := range values {
		o, ok := res.Orders[v.OrderID]
		if !ok {
			return fmt.Errorf("%w: field value for order %s outside the page", common.ErrInconsistent, v.OrderID)
		}
		o.Fields[v.Name] = append(o.Fields[v.Name], v.Value)
	}
	return nil
}

func enrichRows(ctx context.Context, db dbx.DBTX, rm repomanager.RepositoryManager, res Result, requested []string) error {
	names, all := projection(requested)
	keepSortOrder := false
	if !all {
		for _, n := range names {
			if n == models.SortOrderField {
				keepSortOrder = true
			}
		}
		if !keepSortOrder {
			names = append(append([]string(nil), names...), models.SortOrderField)
		}
	}

	values, err := rm.Rows(db).Load(ctx, res.IDs, names)
	if err != nil {
		return err
	}
	grouped, err := GroupRows(values, res.Orders)
	if err != nil {
		return err
	}
	for id, rs := range grouped {
		models.SortRows(rs)
		if !keepSortOrder {
			models.StripSortOrder(rs)
		}
		res.Orders[id].Rows = rs
	}
	return nil
}

// GroupRows assembles loaded tuples into rows per order, keeping the order
// in which rows first appear. Tuples of orders missing from known are an
// inconsistency.
func GroupRows(values []rows.LoadedValue, known map[uuid.UUID]*models.Order) (map[uuid.UUID][]models.Row, error) {
	out := map[uuid.UUID][]models.Row{}
	index := map[uuid.UUID]int{}
	for _, v := range values {
		if _, ok := known[v.OrderID]; !ok {
			return nil, fmt.Errorf("%w: row %s of order %s outside the result", common.ErrInconsistent, v.RowID, v.OrderID)
		}
		i, seen := index[v.RowID]
		if !seen {
			r := models.NewRow()
			r.UUID = v.RowID
			out[v.OrderID] = append(out[v.OrderID], r)
			i = len(out[v.OrderID]) - 1
			index[v.RowID] = i
		}
		if v.Name == "" {
			continue
		}
		row := &out[v.OrderID][i]
		switch {
		case v.Int.Valid:
			row.Fields[v.Name] = append(row.Fields[v.Name], models.Int(v.Int.Int64))
		case v.Str.Valid:
			row.Fields[v.Name] = append(row.Fields[v.Name], models.String(v.Str.String))
		}
	}
	return out, nil
}
