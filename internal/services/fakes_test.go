package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/dbx"
	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/registry"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/fields"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/orders"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
)

// memStore keeps every table in memory and implements the fields, orders
// and rows repositories. Transactions are not simulated.
type memStore struct {
	mu          sync.Mutex
	names       map[fields.Namespace]map[string]uuid.UUID
	headers     map[uuid.UUID]orders.Header
	fieldValues map[uuid.UUID][]orders.FieldValue
	rowOwner    map[uuid.UUID]uuid.UUID
	rowOrder    []uuid.UUID
	rowValues   []rows.Value

	// rowTouches counts value deletes and inserts per row.
	rowTouches map[uuid.UUID]int
	failOn     string
	lastFilter orders.Filter
}

func newMemStore() *memStore {
	return &memStore{
		names:       map[fields.Namespace]map[string]uuid.UUID{},
		headers:     map[uuid.UUID]orders.Header{},
		fieldValues: map[uuid.UUID][]orders.FieldValue{},
		rowOwner:    map[uuid.UUID]uuid.UUID{},
		rowTouches:  map[uuid.UUID]int{},
	}
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return errDB
	}
	return nil
}

func (m *memStore) nameOf(ns fields.Namespace, id uuid.UUID) string {
	for name, fid := range m.names[ns] {
		if fid == id {
			return name
		}
	}
	return ""
}

// fields.Repository

func (m *memStore) InsertIgnore(_ context.Context, ns fields.Namespace, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.names[ns] == nil {
		m.names[ns] = map[string]uuid.UUID{}
	}
	if _, ok := m.names[ns][name]; !ok {
		m.names[ns][name] = id
	}
	return nil
}

func (m *memStore) List(_ context.Context, ns fields.Namespace) ([]fields.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fields.Field
	for name, id := range m.names[ns] {
		out = append(out, fields.Field{ID: id, Name: name})
	}
	return out, nil
}

// orders.Repository

func (m *memStore) EnsureOrder(_ context.Context, h orders.Header) error {
	if err := m.fail("EnsureOrder"); err != nil {
		return err
	}
	if _, ok := m.headers[h.UUID]; !ok {
		m.headers[h.UUID] = h
	}
	return nil
}

func (m *memStore) Touch(_ context.Context, id uuid.UUID, updated time.Time) error {
	h := m.headers[id]
	h.Updated = updated
	m.headers[id] = h
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (orders.Header, error) {
	h, ok := m.headers[id]
	if !ok {
		return orders.Header{}, common.ErrorNotFound
	}
	return h, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.headers, id)
	return nil
}

func (m *memStore) DeleteFieldValues(_ context.Context, id uuid.UUID) error {
	delete(m.fieldValues, id)
	return nil
}

func (m *memStore) InsertFieldValues(_ context.Context, id uuid.UUID, values []orders.FieldValue) error {
	m.fieldValues[id] = append(m.fieldValues[id], values...)
	return nil
}

func (m *memStore) FieldValues(_ context.Context, ids []uuid.UUID, names []string) ([]orders.NamedValue, error) {
	var out []orders.NamedValue
	for _, id := range ids {
		for _, v := range m.fieldValues[id] {
			out = append(out, orders.NamedValue{OrderID: id, Name: m.nameOf(fields.OrderFields, v.FieldID), Value: v.Value})
		}
	}
	return out, nil
}

func (m *memStore) DistinctFieldValues(_ context.Context, name string, f orders.Filter) ([]string, error) {
	m.lastFilter = f
	seen := map[string]bool{}
	var out []string
	for _, values := range m.fieldValues {
		for _, v := range values {
			if m.nameOf(fields.OrderFields, v.FieldID) == name && !seen[v.Value] {
				seen[v.Value] = true
				out = append(out, v.Value)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// rows.Repository

func (m *memStore) ListRowIDs(_ context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range m.rowOrder {
		if m.rowOwner[id] == orderID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memStore) ListValues(_ context.Context, orderID uuid.UUID) ([]rows.Value, error) {
	var out []rows.Value
	for _, v := range m.rowValues {
		if m.rowOwner[v.RowID] == orderID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) InsertRows(_ context.Context, orderID uuid.UUID, ids []uuid.UUID) error {
	for _, id := range ids {
		m.rowOwner[id] = orderID
		// storage order deliberately reversed
		m.rowOrder = append([]uuid.UUID{id}, m.rowOrder...)
	}
	return nil
}

func (m *memStore) InsertValues(_ context.Context, values []rows.Value) error {
	if err := m.fail("InsertValues"); err != nil {
		return err
	}
	for _, v := range values {
		m.rowTouches[v.RowID]++
	}
	m.rowValues = append(m.rowValues, values...)
	return nil
}

func (m *memStore) DeleteValues(_ context.Context, ids []uuid.UUID) error {
	drop := map[uuid.UUID]bool{}
	for _, id := range ids {
		drop[id] = true
		m.rowTouches[id]++
	}
	kept := m.rowValues[:0]
	for _, v := range m.rowValues {
		if !drop[v.RowID] {
			kept = append(kept, v)
		}
	}
	m.rowValues = kept
	return nil
}

func (m *memStore) DeleteRows(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(m.rowOwner, id)
	}
	var kept []uuid.UUID
	for _, id := range m.rowOrder {
		if _, ok := m.rowOwner[id]; ok {
			kept = append(kept, id)
		}
	}
	m.rowOrder = kept
	return nil
}

func (m *memStore) DeleteValuesByOrder(ctx context.Context, orderID uuid.UUID) error {
	ids, _ := m.ListRowIDs(ctx, orderID)
	return m.DeleteValues(ctx, ids)
}

func (m *memStore) DeleteRowsByOrder(ctx context.Context, orderID uuid.UUID) error {
	ids, _ := m.ListRowIDs(ctx, orderID)
	return m.DeleteRows(ctx, ids)
}

func (m *memStore) Load(_ context.Context, orderIDs []uuid.UUID, names []string) ([]rows.LoadedValue, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range orderIDs {
		want[id] = true
	}
	var out []rows.LoadedValue
	for _, rowID := range m.rowOrder {
		orderID := m.rowOwner[rowID]
		if !want[orderID] {
			continue
		}
		emitted := false
		for _, v := range m.rowValues {
			if v.RowID != rowID {
				continue
			}
			out = append(out, rows.LoadedValue{
				OrderID: orderID, RowID: rowID,
				Name: m.nameOf(fields.RowFields, v.FieldID),
				Int:  v.Int, Str: v.Str,
			})
			emitted = true
		}
		if !emitted {
			out = append(out, rows.LoadedValue{OrderID: orderID, RowID: rowID})
		}
	}
	return out, nil
}

func (m *memStore) orderFieldValueCount(id uuid.UUID) int {
	return len(m.fieldValues[id])
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	store *memStore
}

func (f *fakeRepoManager) Dialect() dialect.Dialect             { return dialect.Postgres{} }
func (f *fakeRepoManager) Fields(db dbx.DBTX) fields.Repository { return f.store }
func (f *fakeRepoManager) Orders(db dbx.DBTX) orders.Repository { return f.store }
func (f *fakeRepoManager) Rows(db dbx.DBTX) rows.Repository     { return f.store }

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var errDB = errors.New("db is down")

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*OrderService, *memStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	rm := &fakeRepoManager{store: store}
	regs := registry.NewSet(store, logging.Discard())
	svc := NewOrderService(db, rm, regs, logging.Discard(), func() time.Time { return fixedNow })
	return svc, store, mock
}
