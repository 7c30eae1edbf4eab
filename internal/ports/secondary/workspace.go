package secondary

import (
	"context"
	"time"

	"github.com/example/sfg/internal/core/asset"
)

// CampaignPaths are the directories of one campaign and its station.
type CampaignPaths struct {
	Campaign     string
	Raw          string
	Intermediate string
	Processed    string
	Logs         string
	QC           string
	Metadata     string
	Arrays       string
	Pride        string
}

// DiscoveredFile is a classified file found on disk.
type DiscoveredFile struct {
	Path  string
	Type  asset.Type
	Size  int64
	Start *time.Time
	End   *time.Time
}

// Workspace defines the secondary port for the on-disk data layout.
type Workspace interface {
	// Build creates the campaign directories idempotently.
	Build(ctx context.Context, s asset.Scope) (*CampaignPaths, error)

	// Scan classifies the files under dir.
	Scan(ctx context.Context, dir string) ([]DiscoveredFile, error)

	// Exists reports whether a local file exists.
	Exists(path string) bool

	// CatalogPath returns the catalog database path.
	CatalogPath() string
}
