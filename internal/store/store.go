// Package store persists the run ledger: one row per scenario run and one per
// window radius within it.
package store

import (
	"context"

	"github.com/sells-group/wuimap/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Scenario string          `json:"scenario,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the scenario batch.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, scenario string, year int) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Radii
	CreateRadius(ctx context.Context, runID string, radius int) (*model.RunRadius, error)
	CompleteRadius(ctx context.Context, radiusID string, result *model.RadiusResult) error
	ListRadii(ctx context.Context, runID string) ([]model.RunRadius, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
