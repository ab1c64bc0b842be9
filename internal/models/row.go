package models

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	// RowUUIDKey names the row identifier in the flat row representation.
	// It is never stored as a row field.
	RowUUIDKey = "uuid"

	// SortOrderField is the row field that carries a row's position inside
	// its order while the order is persisted.
	SortOrderField = "sortOrder"
)

// Row is an ordered line item of an order with its own multi-valued fields.
type Row struct {
	UUID   uuid.UUID
	Fields map[string][]Value
}

// NewRow returns a row without an identifier; one is assigned on save.
func NewRow() Row {
	return Row{Fields: map[string][]Value{}}
}

// Get returns the values of a field.
func (r Row) Get(name string) []Value {
	return r.Fields[name]
}

// Set replaces the values of a field. Unsupported or nil inputs are skipped.
func (r *Row) Set(name string, values ...any) {
	if r.Fields == nil {
		r.Fields = map[string][]Value{}
	}
	out := make([]Value, 0, len(values))
	for _, x := range values {
		if v, ok := ValueOf(x); ok {
			out = append(out, v)
		}
	}
	r.Fields[name] = out
}

// FieldNames returns the names of the row fields that carry values, sorted.
func (r Row) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name, vals := range r.Fields {
		if name == RowUUIDKey || len(vals) == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortKey reports the numeric sortOrder of the row. Rows without one, or
// with an unparseable one, report ok == false.
func (r Row) SortKey() (float64, bool) {
	vals := r.Fields[SortOrderField]
	if len(vals) == 0 {
		return 0, false
	}
	if vals[0].IsInt() {
		return float64(vals[0].Int64()), true
	}
	f, err := strconv.ParseFloat(vals[0].Text(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SortRows orders rows by their sortOrder, numerically ascending. Rows
// without a usable sortOrder keep their relative order at the end.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := rows[i].SortKey()
		b, bok := rows[j].SortKey()
		switch {
		case aok && bok:
			return a < b
		case aok:
			return true
		default:
			return false
		}
	})
}

// StripSortOrder removes the internal sortOrder field from every row.
func StripSortOrder(rows []Row) {
	for i := range rows {
		delete(rows[i].Fields, SortOrderField)
	}
}

func (r Row) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+1)
	for name, vals := range r.Fields {
		if name == RowUUIDKey {
			continue
		}
		flat[name] = vals
	}
	if r.UUID != uuid.Nil {
		flat[RowUUIDKey] = r.UUID.String()
	}
	return json.Marshal(flat)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	out := Row{Fields: make(map[string][]Value, len(flat))}
	for name, raw := range flat {
		if name == RowUUIDKey {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("row uuid: %w", err)
			}
			if s == "" {
				continue
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return fmt.Errorf("row uuid %q: %w", s, err)
			}
			out.UUID = id
			continue
		}
		vals, err := decodeValues(raw)
		if err != nil {
			return fmt.Errorf("row field %q: %w", name, err)
		}
		if len(vals) > 0 {
			out.Fields[name] = vals
		}
	}
	*r = out
	return nil
}

// decodeValues accepts a single value, a list of values or null.
func decodeValues(raw json.RawMessage) ([]Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return []Value{v}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]Value, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if bytes.Equal(item, []byte("null")) {
			continue
		}
		var v Value
		if err := v.UnmarshalJSON(item); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
