// Package query assembles order filters into SQL predicates and runs paged
// order queries with optional field and row projections.
package query

import (
	"sort"
	"strings"

	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
)

// Predicate is an SQL boolean expression over the orders table aliased as o,
// written with '?' placeholders.
type Predicate struct {
	Where string
	Args  []any
}

const (
	fieldValueJoin = `SELECT 1 FROM orders_orders_fields f JOIN orders_orderFields n ON n.uuid = f.fieldUuid WHERE f.orderUuid = o.uuid`
	rowValueJoin   = `SELECT 1 FROM orders_rows r JOIN orders_rows_fields v ON v.rowUuid = r.rowUuid JOIN orders_rowFields n ON n.uuid = v.rowFieldUuid WHERE r.orderUuid = o.uuid`
)

type builder struct {
	d       dialect.Dialect
	clauses []string
	args    []any
}

func (b *builder) add(clause string, args ...any) {
	b.clauses = append(b.clauses, clause)
	b.args = append(b.args, args...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// Build translates opts into a predicate. It performs no I/O.
func Build(d dialect.Dialect, opts Options) Predicate {
	b := &builder{d: d}

	if opts.UUIDs != nil {
		if len(opts.UUIDs) == 0 {
			b.add("1=0")
		} else {
			b.add("o.uuid IN ("+dialect.Placeholders(len(opts.UUIDs))+")", dialect.UUIDArgs(d, opts.UUIDs)...)
		}
	}

	if opts.Q != "" {
		pattern := "%" + dialect.EscapeLike(opts.Q) + "%"
		b.add("(EXISTS (SELECT 1 FROM orders_orders_fields qf WHERE qf.orderUuid = o.uuid AND "+
			d.ContainsFold("qf.fieldValue", "?")+
			") OR EXISTS (SELECT 1 FROM orders_rows qr JOIN orders_rows_fields qv ON qv.rowUuid = qr.rowUuid WHERE qr.orderUuid = o.uuid AND "+
			d.ContainsFold("qv.rowStrValue", "?")+"))",
			pattern, pattern)
	}

	for _, name := range sortedKeys(opts.MatchAllFields) {
		values := opts.MatchAllFields[name]
		if len(values) == 0 {
			b.add("1=0")
			continue
		}
		b.add("EXISTS ("+fieldValueJoin+" AND n.name = ? AND f.fieldValue IN ("+dialect.Placeholders(len(values))+"))",
			append([]any{name}, stringArgs(values)...)...)
	}

	for _, name := range sortedKeys(opts.FieldNotEqualTo) {
		b.add("NOT EXISTS ("+fieldValueJoin+" AND n.name = ? AND f.fieldValue = ?)", name, opts.FieldNotEqualTo[name])
	}

	for _, name := range sortedKeys(opts.FieldGreaterThanOrEqualTo) {
		b.rangeClause(name, ">=", opts.FieldGreaterThanOrEqualTo[name])
	}
	for _, name := range sortedKeys(opts.FieldLessThanOrEqualTo) {
		b.rangeClause(name, "<=", opts.FieldLessThanOrEqualTo[name])
	}

	if len(opts.FieldExists) > 0 {
		b.add("EXISTS ("+fieldValueJoin+" AND n.name IN ("+dialect.Placeholders(len(opts.FieldExists))+") AND f.fieldValue <> '')",
			stringArgs(opts.FieldExists)...)
	}
	if len(opts.FieldNotExists) > 0 {
		parts := make([]string, len(opts.FieldNotExists))
		for i := range opts.FieldNotExists {
			parts[i] = "NOT EXISTS (" + fieldValueJoin + " AND n.name = ? AND f.fieldValue <> '')"
		}
		b.add("("+strings.Join(parts, " OR ")+")", stringArgs(opts.FieldNotExists)...)
	}

	for _, name := range sortedKeys(opts.MatchAllRowFields) {
		v := opts.MatchAllRowFields[name]
		if v.IsInt() {
			b.add("EXISTS ("+rowValueJoin+" AND n.name = ? AND v.rowIntValue = ?)", name, v.Int64())
		} else {
			b.add("EXISTS ("+rowValueJoin+" AND n.name = ? AND v.rowStrValue = ?)", name, v.Text())
		}
	}

	if opts.CreatedAfter != nil {
		b.add("o.created >= ?", opts.CreatedAfter.UTC())
	}
	if opts.CreatedBefore != nil {
		b.add("o.created <= ?", opts.CreatedBefore.UTC())
	}
	if opts.UpdatedAfter != nil {
		b.add("o.updated >= ?", opts.UpdatedAfter.UTC())
	}
	if opts.UpdatedBefore != nil {
		b.add("o.updated <= ?", opts.UpdatedBefore.UTC())
	}

	for _, name := range sortedKeys(opts.FieldDateAfter) {
		b.add("EXISTS ("+fieldValueJoin+" AND n.name = ? AND "+d.Timestamp("f.fieldValue")+" >= ?)", name, opts.FieldDateAfter[name].UTC())
	}
	for _, name := range sortedKeys(opts.FieldDateBefore) {
		b.add("EXISTS ("+fieldValueJoin+" AND n.name = ? AND "+d.Timestamp("f.fieldValue")+" <= ?)", name, opts.FieldDateBefore[name].UTC())
	}

	if len(b.clauses) == 0 {
		return Predicate{Where: "1=1"}
	}
	return Predicate{Where: strings.Join(b.clauses, " AND "), Args: b.args}
}

func (b *builder) rangeClause(name, op string, bound Bound) {
	expr := "f.fieldValue"
	if !bound.IsText() {
		expr = b.d.Numeric(expr)
	}
	b.add("EXISTS ("+fieldValueJoin+" AND n.name = ? AND "+expr+" "+op+" ?)", name, bound.arg())
}

// PageSQL returns the page and count statements for p, rebound for d.
func PageSQL(d dialect.Dialect, p Predicate, limit, offset int) (page, count string) {
	page = "SELECT o.uuid, o.created, o.updated FROM orders o WHERE " + p.Where + " ORDER BY o.created DESC, o.uuid"
	if lo := d.LimitOffset(limit, offset); lo != "" {
		page += " " + lo
	}
	count = "SELECT COUNT(*) FROM orders o WHERE " + p.Where
	return d.Rebind(page), d.Rebind(count)
}
