// Package rowdiff computes which rows of an order must be rewritten by
// comparing the in-memory rows against their persisted snapshot.
package rowdiff

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
)

// Snapshot is the persisted state of one order's rows.
type Snapshot struct {
	RowIDs []uuid.UUID
	Values []rows.Value
}

// Delta lists the row level writes a save has to perform.
type Delta struct {
	// Changed rows need their row-field values rewritten.
	Changed []models.Row
	// New holds the changed rows that have no row record yet.
	New map[uuid.UUID]bool
	// Removed rows exist in storage but no longer in memory.
	Removed []uuid.UUID
}

// Unchanged reports whether the delta requires no writes.
func (d Delta) Unchanged() bool {
	return len(d.Changed) == 0 && len(d.Removed) == 0
}

// Load reads the snapshot of an order through repo.
func Load(ctx context.Context, repo rows.Repository, orderID uuid.UUID) (Snapshot, error) {
	ids, err := repo.ListRowIDs(ctx, orderID)
	if err != nil {
		return Snapshot{}, err
	}
	values, err := repo.ListValues(ctx, orderID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{RowIDs: ids, Values: values}, nil
}

type tuple struct {
	field uuid.UUID
	isInt bool
	n     int64
	s     string
}

func storedTuple(v rows.Value) tuple {
	if v.Int.Valid {
		return tuple{field: v.FieldID, isInt: true, n: v.Int.Int64}
	}
	return tuple{field: v.FieldID, s: v.Str.String}
}

func memoryTuple(field uuid.UUID, v models.Value) tuple {
	if v.IsInt() {
		return tuple{field: field, isInt: true, n: v.Int64()}
	}
	return tuple{field: field, s: v.Text()}
}

// Compute classifies in-memory rows against snap. fieldIDs must map every
// row-field name in rows to its registered identifier. Compute does not
// touch storage.
func Compute(in []models.Row, fieldIDs map[string]uuid.UUID, snap Snapshot) (Delta, error) {
	persisted := make(map[uuid.UUID]map[tuple]int, len(snap.RowIDs))
	for _, id := range snap.RowIDs {
		persisted[id] = map[tuple]int{}
	}
	for _, v := range snap.Values {
		bag, ok := persisted[v.RowID]
		if !ok {
			bag = map[tuple]int{}
			persisted[v.RowID] = bag
		}
		bag[storedTuple(v)]++
	}

	delta := Delta{New: map[uuid.UUID]bool{}}
	inMemory := make(map[uuid.UUID]struct{}, len(in))
	for _, row := range in {
		if row.UUID == uuid.Nil {
			return Delta{}, common.ErrRowWithoutUUID
		}
		inMemory[row.UUID] = struct{}{}

		bag, exists := persisted[row.UUID]
		if !exists {
			delta.Changed = append(delta.Changed, row)
			delta.New[row.UUID] = true
			continue
		}
		changed, err := differs(row, fieldIDs, bag)
		if err != nil {
			return Delta{}, err
		}
		if changed {
			delta.Changed = append(delta.Changed, row)
		}
	}

	for _, id := range snap.RowIDs {
		if _, ok := inMemory[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}
	return delta, nil
}

// differs consumes the persisted tuples of a row with its in-memory values
// and stops at the first value storage does not hold. Leftover tuples mean a
// value was dropped in memory.
func differs(row models.Row, fieldIDs map[string]uuid.UUID, bag map[tuple]int) (bool, error) {
	remaining := make(map[tuple]int, len(bag))
	for k, n := range bag {
		remaining[k] = n
	}
	for name, vals := range row.Fields {
		if name == models.RowUUIDKey || len(vals) == 0 {
			continue
		}
		fieldID, ok := fieldIDs[name]
		if !ok {
			return false, fmt.Errorf("%w: row field %q", common.ErrNotRegistered, name)
		}
		for _, v := range vals {
			t := memoryTuple(fieldID, v)
			if remaining[t] == 0 {
				return true, nil
			}
			remaining[t]--
		}
	}
	for _, n := range remaining {
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Values flattens rows into row-field tuples ready for insertion.
func Values(in []models.Row, fieldIDs map[string]uuid.UUID) ([]rows.Value, error) {
	var out []rows.Value
	for _, row := range in {
		for _, name := range row.FieldNames() {
			fieldID, ok := fieldIDs[name]
			if !ok {
				return nil, fmt.Errorf("%w: row field %q", common.ErrNotRegistered, name)
			}
			for _, v := range row.Fields[name] {
				rv := rows.Value{RowID: row.UUID, FieldID: fieldID}
				if v.IsInt() {
					rv.Int = sql.NullInt64{Int64: v.Int64(), Valid: true}
				} else {
					rv.Str = sql.NullString{String: v.Text(), Valid: true}
				}
				out = append(out, rv)
			}
		}
	}
	return out, nil
}

// RowIDs returns the identifiers of rows, in order.
func RowIDs(in []models.Row) []uuid.UUID {
	ids := make([]uuid.UUID, len(in))
	for i, r := range in {
		ids[i] = r.UUID
	}
	return ids
}
