package primary

import (
	"context"

	"github.com/example/sfg/internal/core/asset"
)

// IngestService defines the primary port for bringing files into the catalog.
type IngestService interface {
	// Init builds the campaign directory tree.
	Init(ctx context.Context, scope asset.Scope) (string, error)

	// Ingest classifies local files and directories and catalogs them.
	Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error)

	// Pull downloads remote files into the campaign's raw directory and
	// catalogs them.
	Pull(ctx context.Context, req PullRequest) (*PullReport, error)
}

// IngestRequest names local paths to catalog under a scope.
type IngestRequest struct {
	Scope asset.Scope
	Paths []string
}

// IngestReport tallies an ingest.
type IngestReport struct {
	Discovered int
	AddReport
}

// PullRequest names remote URIs to fetch under a scope.
type PullRequest struct {
	Scope asset.Scope
	URIs  []string
}

// PullReport tallies a pull.
type PullReport struct {
	Requested  int
	Ignored    int // not a downloadable type
	Present    int // already local
	Downloaded int
	Failed     int
}
