package primary

import (
	"context"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/pipeline"
)

// PipelineService defines the primary port for running stages.
type PipelineService interface {
	// RunStage runs one stage. A stage with nothing to do returns its report
	// and an error wrapping asset.ErrNoCandidates.
	RunStage(ctx context.Context, req RunRequest, stage pipeline.Name) (*pipeline.Report, error)

	// RunPipeline consolidates the station stores, then runs every stage in
	// canonical order.
	RunPipeline(ctx context.Context, req RunRequest) ([]*pipeline.Report, error)
}

// RunRequest scopes a run.
type RunRequest struct {
	Scope    asset.Scope
	Override bool
}
