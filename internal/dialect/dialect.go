// Package dialect hides the SQL differences between the supported storage
// engines. Statements throughout orderkeeper are written with '?'
// placeholders and converted with Rebind before execution.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
)

// Dialect renders engine-specific SQL fragments and arguments.
type Dialect interface {
	// Name is the database/sql driver name.
	Name() string

	// GooseDialect is the dialect name understood by goose.
	GooseDialect() string

	// Rebind converts '?' placeholders into the engine syntax.
	Rebind(query string) string

	// UUIDArg encodes an identifier for the engine's uuid column type.
	UUIDArg(id uuid.UUID) any

	// InsertIgnore returns a multi-row insert of n tuples that silently
	// skips rows violating a unique constraint.
	InsertIgnore(table string, cols []string, n int) string

	// ContainsFold is a case-insensitive LIKE of expr against pattern.
	ContainsFold(expr, pattern string) string

	// Numeric casts expr to a number, or NULL when expr is not numeric.
	Numeric(expr string) string

	// Timestamp casts expr to a timestamp, or NULL when it does not look
	// like a date.
	Timestamp(expr string) string

	// LimitOffset renders the pagination clause; zero limit means no limit.
	LimitOffset(limit, offset int) string

	// MaxParams is the largest number of bind parameters per statement.
	MaxParams() int
}

// ByName returns the dialect registered for a driver name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "pgx", "postgres", "postgresql":
		return Postgres{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedDialect, name)
	}
}

// Insert returns a plain multi-row insert of n tuples.
func Insert(table string, cols []string, n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	writeTuples(&b, cols, n)
	return b.String()
}

func writeTuples(b *strings.Builder, cols []string, n int) {
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
}

// rebindNumbered replaces '?' outside string literals with $1, $2, ...
func rebindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeLike escapes LIKE wildcards so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// maxTuples caps the number of tuples per bulk statement.
const maxTuples = 1000

// BatchSize returns how many tuples of cols columns fit in one statement.
func BatchSize(d Dialect, cols int) int {
	if cols <= 0 {
		return maxTuples
	}
	n := d.MaxParams() / cols
	if n > maxTuples {
		n = maxTuples
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Placeholders returns n comma separated '?' placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// UUIDArgs encodes a list of identifiers with d.
func UUIDArgs(d Dialect, ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = d.UUIDArg(id)
	}
	return args
}
