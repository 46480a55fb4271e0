package model

import (
	"time"
)

// RunStatus represents the current state of a scenario run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusMasking   RunStatus = "masking"
	RunStatusSweeping  RunStatus = "sweeping"
	RunStatusExporting RunStatus = "exporting"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents a single scenario run of the WUI pipeline.
type Run struct {
	ID        string     `json:"id"`
	Scenario  string     `json:"scenario"`
	Year      int        `json:"year,omitempty"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	OutputDir string         `json:"output_dir,omitempty"`
	Radii     []RadiusResult `json:"radii"`
	Duration  int64          `json:"duration_ms"`
	Exported  int64          `json:"exported_polygons,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RunRadius represents one window radius within a run.
type RunRadius struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Radius    int           `json:"radius"`
	Status    PhaseStatus   `json:"status"`
	Result    *RadiusResult `json:"result,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// PhaseStatus represents the current state of a radius within a run.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// RadiusResult holds the outcome of classifying one radius.
type RadiusResult struct {
	Radius         int         `json:"radius"`
	Status         PhaseStatus `json:"status"`
	Duration       int64       `json:"duration_ms"`
	IntermixCells  int         `json:"intermix_cells"`
	InterfaceCells int         `json:"interface_cells"`
	IntermixArea   float64     `json:"intermix_area"`
	InterfaceArea  float64     `json:"interface_area"`
	Polygons       int         `json:"polygons"`
	Error          string      `json:"error,omitempty"`
}
