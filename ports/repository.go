package ports

import (
	"context"

	"edgestat/domain/core"
	"edgestat/domain/run"
)

// RunRepository persists run manifests and result matrices. Writes follow
// the run lifecycle: manifest first, status transitions, result last.
type RunRepository interface {
	// SaveManifest records a new run before any computation starts.
	SaveManifest(ctx context.Context, m *run.Manifest) error

	// SetStatus advances the run lifecycle. The note carries the failure
	// message for RunFailed transitions and is otherwise empty.
	SetStatus(ctx context.Context, id core.RunID, status RunStatus, note string) error

	// SaveResult stores the complete output of a finished run.
	SaveResult(ctx context.Context, res *run.Result) error

	// GetManifest retrieves a run manifest by id.
	GetManifest(ctx context.Context, id core.RunID) (*run.Manifest, error)

	// GetResult retrieves the stored result for a finished run.
	GetResult(ctx context.Context, id core.RunID) (*run.Result, error)

	// ListRuns returns summaries of stored runs, newest first.
	ListRuns(ctx context.Context, filters RunFilters) ([]RunSummary, error)
}

// RunFilters narrows repository listings. Nil fields match everything.
type RunFilters struct {
	Status    *RunStatus
	Algorithm *run.Algorithm
	Limit     int
	Offset    int
}

// RunSummary is the listing projection of a stored run.
type RunSummary struct {
	ID           core.RunID
	CreatedAt    core.Timestamp
	Status       RunStatus
	Algorithm    run.Algorithm
	Permutations int
	Hypotheses   int
	// MinFWEP is the smallest corrected p-value in the stored result.
	// NaN until the run completes.
	MinFWEP float64
}

// RunStatus tracks a run through its lifecycle.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)
