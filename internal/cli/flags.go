package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/query"
)

// multiFlag collects every occurrence of a repeatable flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func oneUUID(cmd string, args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, fmt.Errorf("%w: %s takes one order uuid", ErrUsage, cmd)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad uuid %q", ErrUsage, args[0])
	}
	return id, nil
}

func splitPair(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("%w: expected name=value, got %q", ErrUsage, s)
	}
	return name, value, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", ErrUsage, s)
	}
	return t, nil
}

// rowValue reads integers as integer values and everything else as text.
func rowValue(s string) models.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.Int(n)
	}
	return models.String(s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseListFlags(args []string) (query.Options, error) {
	var (
		opts                             query.Options
		ids, match, ne, gte, lte, rowEq  multiFlag
		exists, missing, dAfter, dBefore multiFlag
		createdAfter, createdBefore      string
		updatedAfter, updatedBefore      string
		limit, offset, fields, rowFields string
	)

	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&ids, "uuid", "restrict to order uuid (repeatable)")
	fs.StringVar(&opts.Q, "q", "", "free text search")
	fs.Var(&match, "match", "name=value, values of one name are alternatives (repeatable)")
	fs.Var(&ne, "ne", "name=value the field must not hold (repeatable)")
	fs.Var(&gte, "gte", "name=bound lower bound, numeric when bound is a number (repeatable)")
	fs.Var(&lte, "lte", "name=bound upper bound (repeatable)")
	fs.Var(&exists, "exists", "field that must have a value (repeatable)")
	fs.Var(&missing, "missing", "field that must have no value (repeatable)")
	fs.Var(&rowEq, "row", "name=value some row must hold (repeatable)")
	fs.StringVar(&createdAfter, "created-after", "", "RFC3339 or YYYY-MM-DD")
	fs.StringVar(&createdBefore, "created-before", "", "RFC3339 or YYYY-MM-DD")
	fs.StringVar(&updatedAfter, "updated-after", "", "RFC3339 or YYYY-MM-DD")
	fs.StringVar(&updatedBefore, "updated-before", "", "RFC3339 or YYYY-MM-DD")
	fs.Var(&dAfter, "date-after", "name=time the field date must not precede (repeatable)")
	fs.Var(&dBefore, "date-before", "name=time the field date must not follow (repeatable)")
	fs.StringVar(&limit, "limit", "", "page size, 0 for all")
	fs.StringVar(&offset, "offset", "", "orders to skip")
	fs.StringVar(&fields, "fields", query.AllFields, "comma separated order fields to return")
	fs.StringVar(&rowFields, "row-fields", "", "comma separated row fields to return")

	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}

	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return opts, fmt.Errorf("%w: bad uuid %q", ErrUsage, s)
		}
		opts.UUIDs = append(opts.UUIDs, id)
	}

	for _, p := range match {
		name, value, err := splitPair(p)
		if err != nil {
			return opts, err
		}
		if opts.MatchAllFields == nil {
			opts.MatchAllFields = map[string][]string{}
		}
		opts.MatchAllFields[name] = append(opts.MatchAllFields[name], value)
	}
	for _, p := range ne {
		name, value, err := splitPair(p)
		if err != nil {
			return opts, err
		}
		if opts.FieldNotEqualTo == nil {
			opts.FieldNotEqualTo = map[string]string{}
		}
		opts.FieldNotEqualTo[name] = value
	}

	var err error
	if opts.FieldGreaterThanOrEqualTo, err = bounds(gte); err != nil {
		return opts, err
	}
	if opts.FieldLessThanOrEqualTo, err = bounds(lte); err != nil {
		return opts, err
	}
	if opts.FieldDateAfter, err = dates(dAfter); err != nil {
		return opts, err
	}
	if opts.FieldDateBefore, err = dates(dBefore); err != nil {
		return opts, err
	}

	opts.FieldExists = exists
	opts.FieldNotExists = missing

	for _, p := range rowEq {
		name, value, err := splitPair(p)
		if err != nil {
			return opts, err
		}
		if opts.MatchAllRowFields == nil {
			opts.MatchAllRowFields = map[string]models.Value{}
		}
		opts.MatchAllRowFields[name] = rowValue(value)
	}

	for _, tf := range []struct {
		text string
		dst  **time.Time
	}{
		{createdAfter, &opts.CreatedAfter},
		{createdBefore, &opts.CreatedBefore},
		{updatedAfter, &opts.UpdatedAfter},
		{updatedBefore, &opts.UpdatedBefore},
	} {
		if tf.text == "" {
			continue
		}
		t, err := parseTime(tf.text)
		if err != nil {
			return opts, err
		}
		*tf.dst = &t
	}

	opts.Limit = query.CoerceCount(limit)
	opts.Offset = query.CoerceCount(offset)
	opts.ReturnFields = splitList(fields)
	opts.ReturnRowFields = splitList(rowFields)
	return opts, nil
}

func bounds(pairs []string) (map[string]query.Bound, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]query.Bound, len(pairs))
	for _, p := range pairs {
		name, value, err := splitPair(p)
		if err != nil {
			return nil, err
		}
		out[name] = query.ParseBound(value)
	}
	return out, nil
}

func dates(pairs []string) (map[string]time.Time, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]time.Time, len(pairs))
	for _, p := range pairs {
		name, value, err := splitPair(p)
		if err != nil {
			return nil, err
		}
		t, err := parseTime(value)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}

// parseValuesFlags reads "<name> [-match name=value ...]".
func parseValuesFlags(args []string) (string, map[string][]string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil, fmt.Errorf("%w: values takes a field name", ErrUsage)
	}
	name := args[0]

	var match multiFlag
	fs := flag.NewFlagSet("values", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&match, "match", "name=value restricting the orders searched (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	var matchAll map[string][]string
	for _, p := range match {
		n, v, err := splitPair(p)
		if err != nil {
			return "", nil, err
		}
		if matchAll == nil {
			matchAll = map[string][]string{}
		}
		matchAll[n] = append(matchAll[n], v)
	}
	return name, matchAll, nil
}
