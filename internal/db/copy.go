// Package db holds the PostgreSQL bulk-load helpers behind the PostGIS sink.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Table is a table name, optionally schema-qualified.
type Table struct {
	Schema string
	Name   string
}

// ParseTable splits "schema.name" into a Table.
func ParseTable(s string) Table {
	if schema, name, ok := strings.Cut(s, "."); ok {
		return Table{Schema: schema, Name: name}
	}
	return Table{Name: s}
}

// Identifier returns the pgx identifier of t.
func (t Table) Identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// Sanitize returns t quoted for use in SQL text.
func (t Table) Sanitize() string { return t.Identifier().Sanitize() }

func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Copy bulk-loads rows into t with the COPY protocol.
func Copy(ctx context.Context, q Querier, t Table, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := q.CopyFrom(ctx, t.Identifier(), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", t)
	}
	return n, nil
}

// Match selects the rows whose columns equal the given values.
type Match struct {
	Columns []string
	Values  []any
}

func (m Match) where() (string, error) {
	if len(m.Columns) == 0 || len(m.Columns) != len(m.Values) {
		return "", eris.Errorf("db: match needs one value per column, got %d columns and %d values", len(m.Columns), len(m.Values))
	}
	conds := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		conds[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
	}
	return strings.Join(conds, " AND "), nil
}

// Replace deletes the rows of t selected by match and COPYs rows in. Run it on
// a transaction so readers never see the gap. It returns the deleted and
// inserted counts.
func Replace(ctx context.Context, q Querier, t Table, match Match, columns []string, rows [][]any) (deleted, inserted int64, err error) {
	where, err := match.where()
	if err != nil {
		return 0, 0, err
	}
	tag, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", t.Sanitize(), where), match.Values...)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "db: replace: delete from %s", t)
	}
	if len(rows) > 0 {
		inserted, err = q.CopyFrom(ctx, t.Identifier(), columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, 0, eris.Wrapf(err, "db: replace: COPY INTO %s", t)
		}
	}
	return tag.RowsAffected(), inserted, nil
}
