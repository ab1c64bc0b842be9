package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
)

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// migrate has nothing left to do: the store was migrated when it was opened.
func (a *App) migrate(ctx context.Context) error {
	a.logger.Info(ctx, "schema is up to date")
	return nil
}

func (a *App) newOrder(ctx context.Context) error {
	return a.print(a.store.NewOrder())
}

func (a *App) put(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: put takes one file name or -", ErrUsage)
	}

	var r io.Reader = a.in
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var o models.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	if err := a.store.Save(ctx, &o); err != nil {
		return err
	}
	a.logger.Info(ctx, "order saved", "uuid", o.UUID, "rows", len(o.Rows))
	return a.print(&o)
}

func (a *App) get(ctx context.Context, args []string) error {
	id, err := oneUUID("get", args)
	if err != nil {
		return err
	}
	o, found, err := a.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("order %s: %w", id, common.ErrorNotFound)
	}
	return a.print(o)
}

func (a *App) remove(ctx context.Context, args []string) error {
	id, err := oneUUID("rm", args)
	if err != nil {
		return err
	}
	if err := a.store.Remove(ctx, id); err != nil {
		return err
	}
	a.logger.Info(ctx, "order removed", "uuid", id)
	return nil
}

type listOutput struct {
	Hits   int64           `json:"hits"`
	Orders []*models.Order `json:"orders"`
}

func (a *App) list(ctx context.Context, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}
	res, err := a.store.Orders(ctx, opts)
	if err != nil {
		return err
	}
	return a.print(listOutput{Hits: res.Hits, Orders: res.Ordered()})
}

func (a *App) values(ctx context.Context, args []string) error {
	name, matchAll, err := parseValuesFlags(args)
	if err != nil {
		return err
	}
	vals, err := a.store.FieldValues(ctx, name, matchAll)
	if err != nil {
		return err
	}
	if vals == nil {
		vals = []string{}
	}
	return a.print(vals)
}

func (a *App) fields(ctx context.Context) error {
	return a.print(map[string][]string{
		"order": a.store.OrderFieldNames(),
		"row":   a.store.RowFieldNames(),
	})
}
