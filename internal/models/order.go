// Package models holds the orderkeeper domain types: orders, their
// multi-valued fields and their ordered rows.
package models

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
)

// Fields maps an order field name to its values.
type Fields map[string][]string

// Order is a business document with an open set of named fields and an
// ordered list of rows.
type Order struct {
	UUID    uuid.UUID
	Created time.Time
	Updated time.Time
	Fields  Fields
	Rows    []Row
}

// NewOrder returns an order with a fresh time-ordered identifier and the
// current time as its creation time.
func NewOrder(now time.Time) *Order {
	id, err := uuid.NewUUID()
	if err != nil {
		id = uuid.New()
	}
	return &Order{
		UUID:    id,
		Created: NormalizeTime(now),
		Fields:  Fields{},
	}
}

// NormalizeTime converts t to UTC with second precision, the resolution of
// stored timestamps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Field returns the first value of an order field.
func (o *Order) Field(name string) (string, bool) {
	vals := o.Fields[name]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// SetField replaces the values of an order field.
func (o *Order) SetField(name string, values ...string) {
	if o.Fields == nil {
		o.Fields = Fields{}
	}
	o.Fields[name] = append([]string(nil), values...)
}

// AddRow appends a row and returns a pointer to it.
func (o *Order) AddRow(r Row) *Row {
	o.Rows = append(o.Rows, r)
	return &o.Rows[len(o.Rows)-1]
}

// Validate checks the invariants required before any write.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil order", common.ErrValidation)
	}
	if o.UUID == uuid.Nil {
		return fmt.Errorf("%w: order uuid is empty", common.ErrValidation)
	}
	if o.Created.IsZero() {
		return fmt.Errorf("%w: order created time is not set", common.ErrValidation)
	}
	return nil
}

// Names returns the field names that carry values, sorted.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name, vals := range f {
		if len(vals) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	out := make(Fields, len(flat))
	for name, raw := range flat {
		vals, err := decodeValues(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if len(vals) == 0 {
			continue
		}
		strs := make([]string, len(vals))
		for i, v := range vals {
			strs[i] = v.String()
		}
		out[name] = strs
	}
	*f = out
	return nil
}

type orderJSON struct {
	UUID    string          `json:"uuid"`
	Created string          `json:"created"`
	Updated string          `json:"updated,omitempty"`
	Fields  Fields          `json:"fields"`
	Rows    json.RawMessage `json:"rows,omitempty"`
}

func (o Order) MarshalJSON() ([]byte, error) {
	dto := struct {
		UUID    string `json:"uuid"`
		Created string `json:"created"`
		Updated string `json:"updated,omitempty"`
		Fields  Fields `json:"fields"`
		Rows    []Row  `json:"rows"`
	}{
		UUID:    o.UUID.String(),
		Created: o.Created.UTC().Format(time.RFC3339),
		Fields:  o.Fields,
		Rows:    o.Rows,
	}
	if !o.Updated.IsZero() {
		dto.Updated = o.Updated.UTC().Format(time.RFC3339)
	}
	if dto.Fields == nil {
		dto.Fields = Fields{}
	}
	if dto.Rows == nil {
		dto.Rows = []Row{}
	}
	return json.Marshal(dto)
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var dto orderJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	id, err := uuid.Parse(dto.UUID)
	if err != nil {
		return fmt.Errorf("%w: order uuid %q", common.ErrValidation, dto.UUID)
	}
	created, err := time.Parse(time.RFC3339, dto.Created)
	if err != nil {
		return fmt.Errorf("%w: order created %q", common.ErrValidation, dto.Created)
	}
	out := Order{UUID: id, Created: NormalizeTime(created), Fields: dto.Fields}
	if dto.Updated != "" {
		updated, err := time.Parse(time.RFC3339, dto.Updated)
		if err != nil {
			return fmt.Errorf("%w: order updated %q", common.ErrValidation, dto.Updated)
		}
		out.Updated = NormalizeTime(updated)
	}
	if out.Fields == nil {
		out.Fields = Fields{}
	}
	raw := bytes.TrimSpace(dto.Rows)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &out.Rows); err != nil {
			return fmt.Errorf("order rows: %w", err)
		}
	}
	*o = out
	return nil
}
