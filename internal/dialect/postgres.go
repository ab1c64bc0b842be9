package dialect

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Postgres targets PostgreSQL through the pgx stdlib driver.
type Postgres struct{}

func (Postgres) Name() string         { return "pgx" }
func (Postgres) GooseDialect() string { return "postgres" }
func (Postgres) MaxParams() int       { return 65535 }

func (Postgres) Rebind(query string) string { return rebindNumbered(query) }

func (Postgres) UUIDArg(id uuid.UUID) any { return id.String() }

func (Postgres) InsertIgnore(table string, cols []string, n int) string {
	return Insert(table, cols, n) + " ON CONFLICT DO NOTHING"
}

func (Postgres) ContainsFold(expr, pattern string) string {
	return fmt.Sprintf("%s ILIKE %s", expr, pattern)
}

func (Postgres) Numeric(expr string) string {
	return fmt.Sprintf("(CASE WHEN %s ~ '^-?[0-9]+([.][0-9]+)?$' THEN CAST(%s AS NUMERIC) END)", expr, expr)
}

// Timestamp casts through orders_try_timestamptz, which yields NULL for
// text that starts like a date but does not parse as one.
func (Postgres) Timestamp(expr string) string {
	return fmt.Sprintf("(CASE WHEN %s ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}' THEN orders_try_timestamptz(%s) END)", expr, expr)
}

func (Postgres) LimitOffset(limit, offset int) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}
