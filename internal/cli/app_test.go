package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/logging"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/query"
)

var created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	orders map[uuid.UUID]*models.Order

	saveErr   error
	lastQuery query.Options
	result    query.Result

	valuesName  string
	valuesMatch map[string][]string
	values      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeStore) NewOrder() *models.Order { return models.NewOrder(created) }

func (f *fakeStore) Save(_ context.Context, o *models.Order) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.orders[o.UUID] = o
	return nil
}

func (f *fakeStore) Load(_ context.Context, id uuid.UUID) (*models.Order, bool, error) {
	o, ok := f.orders[id]
	return o, ok, nil
}

func (f *fakeStore) Remove(_ context.Context, id uuid.UUID) error {
	delete(f.orders, id)
	return nil
}

func (f *fakeStore) Orders(_ context.Context, q query.Options) (query.Result, error) {
	f.lastQuery = q
	return f.result, nil
}

func (f *fakeStore) FieldValues(_ context.Context, name string, matchAll map[string][]string) ([]string, error) {
	f.valuesName, f.valuesMatch = name, matchAll
	return f.values, nil
}

func (f *fakeStore) OrderFieldNames() []string { return []string{"customer", "total"} }
func (f *fakeStore) RowFieldNames() []string   { return []string{"name", "sortOrder"} }

func newTestApp(store Store, in string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewApp(store, strings.NewReader(in), out, logging.Discard()), out
}

func TestRun_UsageErrors(t *testing.T) {
	app, _ := newTestApp(newFakeStore(), "")

	for _, args := range [][]string{
		nil,
		{"frobnicate"},
		{"get"},
		{"get", "not-a-uuid"},
		{"rm", "a", "b"},
		{"put"},
		{"values"},
		{"values", "-match", "x=y"},
		{"list", "-match", "novalue"},
		{"list", "extra"},
		{"list", "-created-after", "yesterday"},
	} {
		err := app.Run(context.Background(), args)
		assert.ErrorIs(t, err, ErrUsage, "args %v", args)
	}
}

func TestRun_PutGetRemove(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	body := `{"uuid":"` + id.String() + `","created":"2024-05-01T10:00:00Z",
		"fields":{"customer":["Ann"],"total":"12"},
		"rows":[{"name":"foo","price":399}]}`

	app, out := newTestApp(store, body)
	require.NoError(t, app.Run(context.Background(), []string{"put", "-"}))
	require.Contains(t, store.orders, id)
	assert.Equal(t, []string{"12"}, store.orders[id].Fields["total"])
	assert.Contains(t, out.String(), id.String())

	out.Reset()
	require.NoError(t, app.Run(context.Background(), []string{"get", id.String()}))
	var got models.Order
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, id, got.UUID)
	assert.Equal(t, []models.Value{models.Int(399)}, got.Rows[0].Get("price"))

	require.NoError(t, app.Run(context.Background(), []string{"rm", id.String()}))
	err := app.Run(context.Background(), []string{"get", id.String()})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRun_PutFromFile(t *testing.T) {
	store := newFakeStore()
	o := models.NewOrder(created)
	o.SetField("customer", "Ann")
	data, err := json.Marshal(o)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	app, _ := newTestApp(store, "")
	require.NoError(t, app.Run(context.Background(), []string{"put", path}))
	assert.Contains(t, store.orders, o.UUID)
}

func TestRun_PutErrors(t *testing.T) {
	store := newFakeStore()
	app, _ := newTestApp(store, `{"uuid":"nope","created":"2024-05-01T10:00:00Z"}`)
	err := app.Run(context.Background(), []string{"put", "-"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order uuid")

	store.saveErr = errors.New("db down")
	o := models.NewOrder(created)
	data, _ := json.Marshal(o)
	app, _ = newTestApp(store, string(data))
	err = app.Run(context.Background(), []string{"put", "-"})
	assert.EqualError(t, err, "db down")
}

func TestRun_List(t *testing.T) {
	store := newFakeStore()
	o := models.NewOrder(created)
	store.result = query.Result{
		Orders: map[uuid.UUID]*models.Order{o.UUID: o},
		IDs:    []uuid.UUID{o.UUID},
		Hits:   7,
	}
	id := uuid.New()

	app, out := newTestApp(store, "")
	require.NoError(t, app.Run(context.Background(), []string{"list",
		"-uuid", id.String(),
		"-q", "ann",
		"-match", "status=open", "-match", "status=paid",
		"-ne", "customer=Bob",
		"-gte", "total=51", "-lte", "code=M",
		"-exists", "email", "-missing", "phone",
		"-row", "price=399", "-row", "name=foo",
		"-created-after", "2024-01-01",
		"-updated-before", "2024-02-01T12:00:00Z",
		"-date-after", "due=2024-03-01",
		"-limit", "10abc", "-offset", "-3",
		"-fields", "total, customer", "-row-fields", "*",
	}))

	q := store.lastQuery
	assert.Equal(t, []uuid.UUID{id}, q.UUIDs)
	assert.Equal(t, "ann", q.Q)
	assert.Equal(t, map[string][]string{"status": {"open", "paid"}}, q.MatchAllFields)
	assert.Equal(t, map[string]string{"customer": "Bob"}, q.FieldNotEqualTo)
	assert.False(t, q.FieldGreaterThanOrEqualTo["total"].IsText())
	assert.True(t, q.FieldLessThanOrEqualTo["code"].IsText())
	assert.Equal(t, []string{"email"}, []string(q.FieldExists))
	assert.Equal(t, []string{"phone"}, []string(q.FieldNotExists))
	assert.Equal(t, models.Int(399), q.MatchAllRowFields["price"])
	assert.Equal(t, models.String("foo"), q.MatchAllRowFields["name"])
	require.NotNil(t, q.CreatedAfter)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *q.CreatedAfter)
	require.NotNil(t, q.UpdatedBefore)
	assert.Nil(t, q.CreatedBefore)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), q.FieldDateAfter["due"])
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 0, q.Offset)
	assert.Equal(t, []string{"total", "customer"}, q.ReturnFields)
	assert.Equal(t, []string{"*"}, q.ReturnRowFields)

	var printed struct {
		Hits   int64             `json:"hits"`
		Orders []json.RawMessage `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.EqualValues(t, 7, printed.Hits)
	assert.Len(t, printed.Orders, 1)
}

func TestRun_ListDefaults(t *testing.T) {
	store := newFakeStore()
	app, _ := newTestApp(store, "")
	require.NoError(t, app.Run(context.Background(), []string{"list"}))

	q := store.lastQuery
	assert.Nil(t, q.UUIDs)
	assert.Nil(t, q.MatchAllFields)
	assert.Equal(t, []string{query.AllFields}, q.ReturnFields)
	assert.Empty(t, q.ReturnRowFields)
	assert.Zero(t, q.Limit)
}

func TestRun_Values(t *testing.T) {
	store := newFakeStore()
	store.values = []string{"100", "50"}
	app, out := newTestApp(store, "")

	require.NoError(t, app.Run(context.Background(), []string{"values", "total", "-match", "customer=Ann"}))
	assert.Equal(t, "total", store.valuesName)
	assert.Equal(t, map[string][]string{"customer": {"Ann"}}, store.valuesMatch)
	assert.JSONEq(t, `["100","50"]`, out.String())

	store.values = nil
	out.Reset()
	require.NoError(t, app.Run(context.Background(), []string{"values", "status"}))
	assert.Nil(t, store.valuesMatch)
	assert.JSONEq(t, `[]`, out.String())
}

func TestRun_FieldsNewHelp(t *testing.T) {
	app, out := newTestApp(newFakeStore(), "")

	require.NoError(t, app.Run(context.Background(), []string{"fields"}))
	assert.JSONEq(t, `{"order":["customer","total"],"row":["name","sortOrder"]}`, out.String())

	out.Reset()
	require.NoError(t, app.Run(context.Background(), []string{"new"}))
	var o models.Order
	require.NoError(t, json.Unmarshal(out.Bytes(), &o))
	assert.Equal(t, created, o.Created)

	out.Reset()
	require.NoError(t, app.Run(context.Background(), []string{"HELP"}))
	assert.Contains(t, out.String(), "usage: orderkeeper")

	require.NoError(t, app.Run(context.Background(), []string{"migrate"}))
}
