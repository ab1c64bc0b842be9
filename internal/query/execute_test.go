package query

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/orderkeeper/internal/common"
	"github.com/dmitrijs2005/orderkeeper/internal/dialect"
	"github.com/dmitrijs2005/orderkeeper/internal/models"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/orderkeeper/internal/repositories/rows"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, repomanager.RepositoryManager) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	rm, err := repomanager.NewRepositoryManager(dialect.Postgres{})
	require.NoError(t, err)
	return db, mock, rm
}

func headerRows(ids ...uuid.UUID) *sqlmock.Rows {
	rs := sqlmock.NewRows([]string{"uuid", "created", "updated"})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		at := base.Add(-time.Duration(i) * time.Hour)
		rs.AddRow(id.String(), at, at)
	}
	return rs
}

func TestExecute_PageAndCountOnly(t *testing.T) {
	db, mock, rm := newMock(t)
	defer db.Close()

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT o.uuid, o.created, o.updated FROM orders o WHERE 1=1 ORDER BY o.created DESC, o.uuid LIMIT 2$`).
		WillReturnRows(headerRows(a, b))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders o WHERE 1=1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	res, err := Execute(context.Background(), db, rm, Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Hits)
	assert.Equal(t, []uuid.UUID{a, b}, res.IDs)
	require.Len(t, res.Orders, 2)
	assert.Empty(t, res.Orders[a].Fields)
	assert.Nil(t, res.Orders[a].Rows)
	assert.Equal(t, []*models.Order{res.Orders[a], res.Orders[b]}, res.Ordered())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_EmptyUUIDSetReturnsNothing(t *testing.T) {
	db, mock, rm := newMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT o.uuid, o.created, o.updated FROM orders o WHERE 1=0`).
		WillReturnRows(headerRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders o WHERE 1=0`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	res, err := Execute(context.Background(), db, rm, Options{
		UUIDs:        []uuid.UUID{},
		ReturnFields: []string{"customer"},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Hits)
	assert.Empty(t, res.Orders)
	require.NoError(t, mock.ExpectationsWereMet(), "empty page must not run enrichment")
}

func TestExecute_FieldAndRowProjections(t *testing.T) {
	db, mock, rm := newMock(t)
	defer db.Close()

	a := uuid.New()
	r1, r2 := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT o.uuid, o.created, o.updated FROM orders o`).WillReturnRows(headerRows(a))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders o`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT v.orderUuid, f.name, v.fieldValue FROM orders_orders_fields v`).
		WithArgs(a.String(), "lastname").
		WillReturnRows(sqlmock.NewRows([]string{"orderUuid", "name", "fieldValue"}).
			AddRow(a.String(), "lastname", "Göransson").
			AddRow(a.String(), "lastname", "Kollektiv"))
	mock.ExpectQuery(`SELECT r.orderUuid, r.rowUuid, n.name, v.rowIntValue, v.rowStrValue FROM orders_rows r`).
		WithArgs("price", models.SortOrderField, a.String()).
		WillReturnRows(sqlmock.NewRows([]string{"orderUuid", "rowUuid", "name", "rowIntValue", "rowStrValue"}).
			AddRow(a.String(), r2.String(), "price", int64(20), nil).
			AddRow(a.String(), r2.String(), models.SortOrderField, int64(1), nil).
			AddRow(a.String(), r1.String(), "price", int64(10), nil).
			AddRow(a.String(), r1.String(), models.SortOrderField, int64(0), nil))

	res, err := Execute(context.Background(), db, rm, Options{
		ReturnFields:    []string{"lastname"},
		ReturnRowFields: []string{"price"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	o := res.Orders[a]
	assert.ElementsMatch(t, []string{"Göransson", "Kollektiv"}, o.Fields["lastname"])
	require.Len(t, o.Rows, 2)
	assert.Equal(t, r1, o.Rows[0].UUID, "rows follow the saved order")
	assert.Equal(t, []models.Value{models.Int(10)}, o.Rows[0].Get("price"))
	_, hasSort := o.Rows[0].Fields[models.SortOrderField]
	assert.False(t, hasSort, "sortOrder is stripped unless requested")
}

func TestExecute_EnrichmentOutsidePageIsInconsistent(t *testing.T) {
	db, mock, rm := newMock(t)
	defer db.Close()

	a := uuid.New()
	mock.ExpectQuery(`SELECT o.uuid, o.created, o.updated FROM orders o`).WillReturnRows(headerRows(a))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders o`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT v.orderUuid, f.name, v.fieldValue`).
		WillReturnRows(sqlmock.NewRows([]string{"orderUuid", "name", "fieldValue"}).
			AddRow(uuid.NewString(), "customer", "Ann"))

	_, err := Execute(context.Background(), db, rm, Options{ReturnFields: []string{AllFields}})
	assert.ErrorIs(t, err, common.ErrInconsistent)
}

func TestExecute_CountFailure(t *testing.T) {
	db, mock, rm := newMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT o.uuid, o.created, o.updated FROM orders o`).WillReturnRows(headerRows(uuid.New()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM orders o`).WillReturnError(errors.New("boom"))

	_, err := Execute(context.Background(), db, rm, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count orders")
}

func TestGroupRows_KeepsRowsWithoutSelectedFields(t *testing.T) {
	a := uuid.New()
	r := uuid.New()
	known := map[uuid.UUID]*models.Order{a: {UUID: a}}

	got, err := GroupRows([]rows.LoadedValue{{OrderID: a, RowID: r}}, known)
	require.NoError(t, err)
	require.Len(t, got[a], 1)
	assert.Equal(t, r, got[a][0].UUID)
	assert.Empty(t, got[a][0].Fields)
}
