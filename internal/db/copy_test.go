package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var polygons = Table{Schema: "wui", Name: "classified_polygons"}

func TestTable(t *testing.T) {
	tests := []struct {
		in        string
		want      Table
		sanitized string
	}{
		{"runs", Table{Name: "runs"}, `"runs"`},
		{"wui.classified_polygons", polygons, `"wui"."classified_polygons"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseTable(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
			assert.Equal(t, tt.sanitized, got.Sanitize())
		})
	}
}

func TestCopy_EmptyRows(t *testing.T) {
	n, err := Copy(context.TODO(), nil, polygons, []string{"scenario"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopy_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"scenario", "radius"}
	mock.ExpectCopyFrom(pgx.Identifier{"wui", "classified_polygons"}, cols).WillReturnResult(2)

	n, err := Copy(context.Background(), mock, polygons, cols, [][]any{{"larimer", 500}, {"larimer", 500}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopy_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"runs"}, []string{"id"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = Copy(context.Background(), mock, Table{Name: "runs"}, []string{"id"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"scenario", "radius", "feature_id"}
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "wui"."classified_polygons" WHERE "scenario" = \$1 AND "radius" = \$2`).
		WithArgs("larimer", 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"wui", "classified_polygons"}, cols).WillReturnResult(2)
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	deleted, inserted, err := Replace(ctx, tx, polygons,
		Match{Columns: []string{"scenario", "radius"}, Values: []any{"larimer", 500}},
		cols, [][]any{{"larimer", 500, 0}, {"larimer", 500, 1}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, int64(4), deleted)
	assert.Equal(t, int64(2), inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_NoRowsOnlyDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM "wui"."classified_polygons"`).
		WithArgs("larimer", 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	deleted, inserted, err := Replace(context.Background(), mock, polygons,
		Match{Columns: []string{"scenario", "radius"}, Values: []any{"larimer", 500}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Zero(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_DeleteFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM`).WithArgs("larimer", 500).WillReturnError(fmt.Errorf("relation does not exist"))

	_, _, err = Replace(context.Background(), mock, polygons,
		Match{Columns: []string{"scenario", "radius"}, Values: []any{"larimer", 500}},
		[]string{"scenario"}, [][]any{{"larimer"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete from wui.classified_polygons")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_BadMatch(t *testing.T) {
	_, _, err := Replace(context.TODO(), nil, polygons, Match{Columns: []string{"scenario"}}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one value per column")
}
