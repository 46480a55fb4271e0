package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a keyed bulk upsert.
type UpsertSpec struct {
	Table   Table
	Columns []string // columns being loaded
	Keys    []string // columns of the unique constraint
	Update  []string // columns rewritten on conflict; nil means every non-key column
}

func (s UpsertSpec) updateColumns() []string {
	if s.Update != nil {
		return s.Update
	}
	var out []string
	for _, c := range s.Columns {
		if !slices.Contains(s.Keys, c) {
			out = append(out, c)
		}
	}
	return out
}

// stagingTable names the per-transaction temp table rows are copied into.
func (s UpsertSpec) stagingTable() Table {
	name := s.Table.Name
	if s.Table.Schema != "" {
		name = s.Table.Schema + "_" + name
	}
	return Table{Name: "_stage_" + name}
}

// Upsert loads rows into a temp table shaped like the target, then merges them
// with INSERT ... ON CONFLICT (keys) DO UPDATE, in one transaction.
func Upsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(spec.Keys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := spec.stagingTable()
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Sanitize(), spec.Table.Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", spec.Table)
	}
	if _, err := Copy(ctx, tx, stage, spec.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage rows for %s", spec.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(spec, stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func mergeSQL(spec UpsertSpec, stage Table) string {
	cols := quoteColumns(spec.Columns)
	action := "DO NOTHING"
	if update := spec.updateColumns(); len(update) > 0 {
		sets := make([]string, len(update))
		for i, c := range update {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		spec.Table.Sanitize(), cols, cols, stage.Sanitize(), quoteColumns(spec.Keys), action)
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
