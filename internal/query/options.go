package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrijs2005/orderkeeper/internal/models"
)

// AllFields in a projection list selects every field.
const AllFields = "*"

// Bound is the operand of a range filter. Numeric bounds compare numerically
// against values that look like numbers; text bounds compare lexicographically.
type Bound struct {
	num    decimal.Decimal
	text   string
	isText bool
}

func Number(d decimal.Decimal) Bound { return Bound{num: d} }

func Int(n int64) Bound { return Bound{num: decimal.NewFromInt(n)} }

func Text(s string) Bound { return Bound{text: s, isText: true} }

// ParseBound reads a numeric bound when s is a decimal number and a text
// bound otherwise.
func ParseBound(s string) Bound {
	if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
		return Number(d)
	}
	return Text(s)
}

func (b Bound) IsText() bool { return b.isText }

func (b Bound) String() string {
	if b.isText {
		return b.text
	}
	return b.num.String()
}

func (b Bound) arg() any {
	if b.isText {
		return b.text
	}
	return b.num.String()
}

// Options is a filter set with pagination and projections. Filters combine
// with AND; the zero value matches every order.
type Options struct {
	// UUIDs restricts results to the listed orders. Nil disables the
	// filter; a non-nil empty slice matches nothing.
	UUIDs []uuid.UUID

	// Q matches orders with an order-field value or a row-field text value
	// containing Q, ignoring case.
	Q string

	// MatchAllFields requires, per field, a value equal to one of the listed
	// values. An empty list matches nothing.
	MatchAllFields map[string][]string

	// FieldNotEqualTo requires that no value of the field equals the given value.
	FieldNotEqualTo map[string]string

	FieldGreaterThanOrEqualTo map[string]Bound
	FieldLessThanOrEqualTo    map[string]Bound

	// FieldExists requires a non-empty value for at least one of the names.
	FieldExists []string
	// FieldNotExists requires at least one of the names to have no value.
	FieldNotExists []string

	// MatchAllRowFields requires, per row field, some row holding the value.
	MatchAllRowFields map[string]models.Value

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time

	// FieldDateAfter and FieldDateBefore compare field values read as
	// timestamps. Bounds are inclusive.
	FieldDateAfter  map[string]time.Time
	FieldDateBefore map[string]time.Time

	// Limit of zero returns every matching order.
	Limit  int
	Offset int

	ReturnFields    []string
	ReturnRowFields []string
}

// Normalized returns a copy with negative pagination values set to zero.
func (o Options) Normalized() Options {
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// CoerceCount reads a limit or offset from text. A leading integer is used
// and anything after it ignored; unreadable or negative input yields zero.
func CoerceCount(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// projection turns a requested name list into the repository form: nil
// selects every field, an empty list none.
func projection(names []string) (list []string, all bool) {
	for _, n := range names {
		if n == AllFields {
			return nil, true
		}
	}
	return names, false
}
