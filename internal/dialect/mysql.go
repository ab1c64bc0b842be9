package dialect

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQL targets MySQL and MariaDB through go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string         { return "mysql" }
func (MySQL) GooseDialect() string { return "mysql" }
func (MySQL) MaxParams() int       { return 65535 }

func (MySQL) Rebind(query string) string { return query }

// UUIDArg encodes the identifier as the 16 raw bytes of a BINARY(16) column.
func (MySQL) UUIDArg(id uuid.UUID) any {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

func (MySQL) InsertIgnore(table string, cols []string, n int) string {
	return "INSERT IGNORE" + Insert(table, cols, n)[len("INSERT"):]
}

func (MySQL) ContainsFold(expr, pattern string) string {
	return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", expr, pattern)
}

func (MySQL) Numeric(expr string) string {
	return fmt.Sprintf("(CASE WHEN %s REGEXP '^-?[0-9]+([.][0-9]+)?$' THEN CAST(%s AS DECIMAL(65,10)) END)", expr, expr)
}

// Timestamp reads the first 19 characters as a UTC DATETIME. A trailing
// numeric offset ("+02:00") after full seconds is applied with CONVERT_TZ.
func (MySQL) Timestamp(expr string) string {
	local := fmt.Sprintf("CAST(LEFT(REPLACE(%s, 'T', ' '), 19) AS DATETIME)", expr)
	return fmt.Sprintf("(CASE WHEN %s REGEXP '%s' THEN CONVERT_TZ(%s, RIGHT(%s, 6), '+00:00') "+
		"WHEN %s REGEXP '^[0-9]{4}-[0-9]{2}-[0-9]{2}' THEN %s END)",
		expr, mysqlOffsetPattern, local, expr, expr, local)
}

const mysqlOffsetPattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}[T ][0-9]{2}:[0-9]{2}:[0-9]{2}([.][0-9]+)?[+-][0-9]{2}:[0-9]{2}$`

// LimitOffset uses the largest unsigned value as limit when only an offset
// is given, since MySQL has no bare OFFSET clause.
func (MySQL) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", offset)
	default:
		return ""
	}
}

// NormalizeDSN forces the connection options the schema relies on:
// DATETIME columns parsed into time.Time and interpreted as UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
