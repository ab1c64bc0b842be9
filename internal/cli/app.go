// Package cli implements the orderkeeper command: one-shot subcommands that
// save, load, remove and query orders and print the results as JSON.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/query"
)

// Store is the part of orderkeeper.Keeper the commands use.
type Store interface {
	NewOrder() *models.Order
	Save(ctx context.Context, o *models.Order) error
	Load(ctx context.Context, id uuid.UUID) (*models.Order, bool, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Orders(ctx context.Context, q query.Options) (query.Result, error)
	FieldValues(ctx context.Context, name string, matchAll map[string][]string) ([]string, error)
	OrderFieldNames() []string
	RowFieldNames() []string
}

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage error")

const usage = `usage: orderkeeper [-c file] [-t driver] [-d dsn] [-l level] [-f format] [-w wait] [-m] <command> [args]

commands:
  migrate              apply schema migrations and exit
  new                  print an empty order to fill in
  put <file|->         save the order read from a JSON file or stdin
  get <uuid>           print one order
  rm <uuid>            remove one order
  list [filters]       print a page of matching orders (list -h for filters)
  values <name> [-match name=value ...]
                       print the distinct values of an order field
  fields               print the registered field names
`

type App struct {
	store  Store
	in     io.Reader
	out    io.Writer
	logger logging.Logger
}

func NewApp(store Store, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{store: store, in: in, out: out, logger: logger}
}

// Usage writes the command summary to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", ErrUsage)
	}

	cmd, rest := strings.ToLower(args[0]), args[1:]
	a.logger.Debug(ctx, "running command", "command", cmd, "args", len(rest))

	switch cmd {
	case "migrate":
		return a.migrate(ctx)
	case "new":
		return a.newOrder(ctx)
	case "put":
		return a.put(ctx, rest)
	case "get":
		return a.get(ctx, rest)
	case "rm", "remove", "delete":
		return a.remove(ctx, rest)
	case "list":
		return a.list(ctx, rest)
	case "values":
		return a.values(ctx, rest)
	case "fields":
		return a.fields(ctx)
	case "help":
		Usage(a.out)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}
