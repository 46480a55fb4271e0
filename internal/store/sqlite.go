package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wuimap/internal/model"
)

// SQLiteStore is the ledger backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// ledgerPragmas are applied to every pooled connection through the DSN.
var ledgerPragmas = []string{"journal_mode(WAL)", "busy_timeout(5000)", "synchronous(NORMAL)"}

// NewSQLite opens the ledger at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	params := make([]string, len(ledgerPragmas))
	for i, p := range ledgerPragmas {
		params[i] = "_pragma=" + p
	}
	db, err := sql.Open("sqlite", path+"?"+strings.Join(params, "&"))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	return &SQLiteStore{db: db}, nil
}

// ledgerSchema holds one entry per schema version; user_version records how
// many have been applied.
var ledgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		scenario   TEXT NOT NULL,
		year       INTEGER NOT NULL DEFAULT 0,
		status     TEXT NOT NULL DEFAULT 'queued',
		result     TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);`,

	`CREATE TABLE IF NOT EXISTS run_radii (
		id         TEXT PRIMARY KEY,
		run_id     TEXT NOT NULL REFERENCES runs(id),
		radius     INTEGER NOT NULL,
		status     TEXT NOT NULL DEFAULT 'running',
		result     TEXT,
		started_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_radii_run_id ON run_radii(run_id);`,
}

// Migrate brings the ledger schema up to date.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var version int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return eris.Wrap(err, "sqlite: migrate: read version")
	}
	for i := version; i < len(ledgerSchema); i++ {
		if _, err := tx.ExecContext(ctx, ledgerSchema[i]); err != nil {
			return eris.Wrapf(err, "sqlite: migrate: apply version %d", i+1)
		}
	}
	if version < len(ledgerSchema) {
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(ledgerSchema))); err != nil {
			return eris.Wrap(err, "sqlite: migrate: set version")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: migrate: commit")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, scenario string, year int) (*model.Run, error) {
	run := &model.Run{
		ID:       uuid.NewString(),
		Scenario: scenario,
		Year:     year,
		Status:   model.RunStatusQueued,
	}
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, year, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, run.Year, string(run.Status), run.CreatedAt, run.UpdatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for %s", scenario)
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return s.execOne(ctx, "run", runID,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID)
}

// UpdateRunResult stores the result of a successful run and marks it complete.
func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, result)
}

// FailRun marks a run failed and records the cause in its result. Radius rows
// already written are kept.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause string) error {
	return s.finishRun(ctx, runID, model.RunStatusFailed, &model.RunResult{Error: cause})
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	encoded, err := encodeJSON(result)
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode result of run %s", runID)
	}
	return s.execOne(ctx, "run", runID,
		`UPDATE runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), encoded, time.Now().UTC(), runID)
}

const runColumns = `id, scenario, year, status, result, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	return run, err
}

// ListRuns returns the runs matching filter, newest first. A zero Limit
// returns at most 100.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Scenario != "" {
		conds = append(conds, "scenario = ?")
		args = append(args, filter.Scenario)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) CreateRadius(ctx context.Context, runID string, radius int) (*model.RunRadius, error) {
	rr := &model.RunRadius{
		ID:        uuid.NewString(),
		RunID:     runID,
		Radius:    radius,
		Status:    model.PhaseStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO run_radii (id, run_id, radius, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rr.ID, rr.RunID, rr.Radius, string(rr.Status), rr.StartedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert radius %d for run %s", radius, runID)
	}
	return rr, nil
}

// CompleteRadius records the outcome of one radius. The row takes the status
// carried by result.
func (s *SQLiteStore) CompleteRadius(ctx context.Context, radiusID string, result *model.RadiusResult) error {
	encoded, err := encodeJSON(result)
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode result of radius %s", radiusID)
	}
	return s.execOne(ctx, "radius", radiusID,
		`UPDATE run_radii SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), encoded, radiusID)
}

// ListRadii returns the radius rows of a run in ascending radius order.
func (s *SQLiteStore) ListRadii(ctx context.Context, runID string) ([]model.RunRadius, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, radius, status, result, started_at FROM run_radii WHERE run_id = ? ORDER BY radius`,
		runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list radii of run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RunRadius
	for rows.Next() {
		var (
			rr      model.RunRadius
			encoded sql.NullString
		)
		if err := rows.Scan(&rr.ID, &rr.RunID, &rr.Radius, &rr.Status, &encoded, &rr.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan radius")
		}
		if rr.Result, err = decodeJSON[model.RadiusResult](encoded); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode result of radius %s", rr.ID)
		}
		out = append(out, rr)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list radii of run %s", runID)
}

// execOne runs an update that must touch exactly one row of entity id.
func (s *SQLiteStore) execOne(ctx context.Context, entity, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", entity, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun returns sql.ErrNoRows unwrapped so callers can name the missing id.
func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run     model.Run
		encoded sql.NullString
	)
	err := row.Scan(&run.ID, &run.Scenario, &run.Year, &run.Status, &encoded, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if run.Result, err = decodeJSON[model.RunResult](encoded); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode result of run %s", run.ID)
	}
	return &run, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON[T any](s sql.NullString) (*T, error) {
	if !s.Valid {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return nil, err
	}
	return v, nil
}
