// Package orderkeeper persists orders with an open set of multi-valued
// fields and ordered rows in a relational database.
//
// A Keeper is created with Open or New, which run the schema migrations and
// warm the field caches before returning:
//
//	k, err := orderkeeper.Open(ctx, "pgx", dsn)
//	if err != nil {
//	    return err
//	}
//	defer k.Close()
//
//	o := k.NewOrder()
//	o.SetField("customer", "Ann")
//	err = k.Save(ctx, o)
package orderkeeper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/query"
	"github.com/dmitrijs2005/orderkeeper/internal/registry"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/orderkeeper/internal/services"
	"github.com/dmitrijs2005/orderkeeper/internal/telemetry"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type (
	Order   = models.Order
	Row     = models.Row
	Value   = models.Value
	Fields  = models.Fields
	Query   = query.Options
	Result  = query.Result
	Bound   = query.Bound
	Logger  = logging.Logger
	Dialect = dialect.Dialect
)

var (
	ErrValidation     = common.ErrValidation
	ErrReservedName   = common.ErrReservedName
	ErrRowWithoutUUID = common.ErrRowWithoutUUID
	ErrNotRegistered  = common.ErrNotRegistered
	ErrInconsistent   = common.ErrInconsistent
	ErrUnsupported    = common.ErrUnsupportedDialect
)

// Value constructors and bounds re-exported for callers.
var (
	String     = models.String
	Int        = models.Int
	ValueOf    = models.ValueOf
	NewRow     = models.NewRow
	TextBound  = query.Text
	IntBound   = query.Int
	NumBound   = query.Number
	ParseBound = query.ParseBound
)

// AllFields selects every field in Query.ReturnFields and ReturnRowFields.
const AllFields = query.AllFields

type options struct {
	log        logging.Logger
	now        func() time.Time
	migrate    bool
	ownsDB     bool
	observeDBs bool
	retryFor   time.Duration
}

func buildOptions(opts []Option) options {
	cfg := options{log: logging.Discard(), now: time.Now, migrate: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a Keeper.
type Option func(*options)

// WithLogger sets the diagnostics logger. The default discards records.
func WithLogger(l Logger) Option { return func(o *options) { o.log = l } }

// WithClock overrides the time source used for updated timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithoutMigrations skips schema migrations, for databases migrated elsewhere.
func WithoutMigrations() Option { return func(o *options) { o.migrate = false } }

// WithConnectRetry makes Open wait for the database to accept connections,
// retrying with exponential backoff for at most d.
func WithConnectRetry(d time.Duration) Option { return func(o *options) { o.retryFor = d } }

// WithDBMetrics registers connection pool gauges with the global meter.
func WithDBMetrics() Option { return func(o *options) { o.observeDBs = true } }

// Keeper is the entry point for saving, loading and querying orders. It is
// safe for concurrent use.
type Keeper struct {
	db         *sql.DB
	ownsDB     bool
	d          dialect.Dialect
	registries *registry.Set
	svc        *services.OrderService
	now        func() time.Time
}

// Open connects to the database with the named driver ("pgx" or "mysql")
// and returns a ready Keeper. The connection is closed by Keeper.Close.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Keeper, error) {
	d, err := dialect.ByName(driver)
	if err != nil {
		return nil, err
	}
	if d.Name() == "mysql" {
		if dsn, err = dialect.NormalizeDSN(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(d.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg := buildOptions(opts); cfg.retryFor > 0 {
		if err := waitForDB(ctx, db, cfg.retryFor, cfg.log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	k, err := New(ctx, db, d, append(opts, func(o *options) { o.ownsDB = true })...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return k, nil
}

// New returns a Keeper over an existing connection. It migrates the schema
// and loads both field caches before returning.
func New(ctx context.Context, db *sql.DB, d Dialect, opts ...Option) (*Keeper, error) {
	cfg := buildOptions(opts)

	rm, err := repomanager.NewRepositoryManager(d)
	if err != nil {
		return nil, err
	}
	if cfg.migrate {
		if err := rm.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if cfg.observeDBs {
		if err := telemetry.ObserveDBStats(db, d.Name()); err != nil {
			cfg.log.Warn(ctx, "database metrics unavailable", "error", err)
		}
	}

	regs := registry.NewSet(rm.Fields(db), cfg.log)
	if err := regs.Warm(ctx); err != nil {
		return nil, err
	}
	cfg.log.Debug(ctx, "orderkeeper ready", "dialect", d.Name(),
		"order_fields", len(regs.Orders.Names()), "row_fields", len(regs.Rows.Names()))

	return &Keeper{
		db:         db,
		ownsDB:     cfg.ownsDB,
		d:          d,
		registries: regs,
		svc:        services.NewOrderService(db, rm, regs, cfg.log, cfg.now),
		now:        cfg.now,
	}, nil
}

// waitForDB pings db until it answers or maxElapsed passes.
func waitForDB(ctx context.Context, db *sql.DB, maxElapsed time.Duration, log logging.Logger) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn(ctx, "database not ready", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// NewOrder returns an unsaved order with a fresh identifier created now.
func (k *Keeper) NewOrder() *Order {
	return models.NewOrder(k.now())
}

// Save persists o. Rows without identifiers get one assigned in place.
func (k *Keeper) Save(ctx context.Context, o *Order) error {
	return k.svc.Save(ctx, o)
}

// Load returns the order with id; found is false when it does not exist.
func (k *Keeper) Load(ctx context.Context, id uuid.UUID) (o *Order, found bool, err error) {
	return k.svc.Load(ctx, id)
}

// Remove deletes the order with id.
func (k *Keeper) Remove(ctx context.Context, id uuid.UUID) error {
	return k.svc.Remove(ctx, id)
}

// Orders returns a page of orders matching q along with the total hit count.
func (k *Keeper) Orders(ctx context.Context, q Query) (Result, error) {
	return k.svc.Query(ctx, q)
}

// FieldValues lists the distinct values of an order field, optionally only
// across orders matching matchAll.
func (k *Keeper) FieldValues(ctx context.Context, name string, matchAll map[string][]string) ([]string, error) {
	return k.svc.FieldValues(ctx, name, matchAll)
}

// OrderFieldNames returns the registered order field names.
func (k *Keeper) OrderFieldNames() []string { return k.registries.Orders.Names() }

// RowFieldNames returns the registered row field names.
func (k *Keeper) RowFieldNames() []string { return k.registries.Rows.Names() }

// Dialect reports the SQL dialect in use.
func (k *Keeper) Dialect() Dialect { return k.d }

// Close releases the connection when the Keeper opened it.
func (k *Keeper) Close() error {
	if k.ownsDB {
		return k.db.Close()
	}
	return nil
}
