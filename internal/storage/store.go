package storage

import (
	"context"

	"coalsim/internal/model"
)

// Store persists run summaries and their graphs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs ordered by start time, then id. An empty
	// scenario lists every run.
	ListRuns(ctx context.Context, scenario string) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveGraph(ctx context.Context, graph model.GraphRecord) error
	GetGraph(ctx context.Context, runID string) (model.GraphRecord, bool, error)
}
