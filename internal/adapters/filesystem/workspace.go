package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/discovery"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

// SpanReader reads the data time span from a file's header.
type SpanReader func(path string) (start, end *time.Time, err error)

// WorkspaceAdapter implements secondary.Workspace over a Layout.
type WorkspaceAdapter struct {
	layout Layout
	spans  map[asset.Type]SpanReader
	log    *zap.Logger
}

// NewWorkspaceAdapter creates a new filesystem workspace adapter. spans maps
// asset types to header readers used when scanning.
func NewWorkspaceAdapter(root string, spans map[asset.Type]SpanReader, log *zap.Logger) (*WorkspaceAdapter, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: data directory is empty", asset.ErrConfig)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkspaceAdapter{
		layout: Layout{Root: abs},
		spans:  spans,
		log:    log,
	}, nil
}

// Layout returns the resolved layout.
func (a *WorkspaceAdapter) Layout() Layout { return a.layout }

// Build creates the campaign and station directories. It is idempotent.
func (a *WorkspaceAdapter) Build(ctx context.Context, s asset.Scope) (*secondary.CampaignPaths, error) {
	if !s.Complete() {
		return nil, fmt.Errorf("%w: scope %s is incomplete", asset.ErrConfig, s)
	}

	camp := a.layout.Campaign(s.Network, s.Station, s.Campaign)
	station := a.layout.Station(s.Network, s.Station)

	dirs := camp.all()
	dirs = append(dirs, a.layout.PrideDir())
	for _, k := range rows.Kinds() {
		dirs = append(dirs, station.ArrayPath(k))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return &secondary.CampaignPaths{
		Campaign:     camp.Path,
		Raw:          camp.Raw,
		Intermediate: camp.Intermediate,
		Processed:    camp.Processed,
		Logs:         camp.Logs,
		QC:           camp.QC,
		Metadata:     camp.Metadata,
		Arrays:       station.Arrays,
		Pride:        a.layout.PrideDir(),
	}, nil
}

// Scan walks dir and classifies every non-empty file by name. Unknown files
// are skipped.
func (a *WorkspaceAdapter) Scan(ctx context.Context, dir string) ([]secondary.DiscoveredFile, error) {
	var found []secondary.DiscoveredFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		typ, ok := discovery.Classify(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			a.log.Debug("skipping empty file", zap.String("path", path))
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		f := secondary.DiscoveredFile{Path: abs, Type: typ, Size: info.Size()}
		if read, ok := a.spans[typ]; ok {
			start, end, err := read(abs)
			if err != nil {
				a.log.Warn("failed to read time span", zap.String("path", abs), zap.Error(err))
			} else {
				f.Start, f.End = start, end
			}
		}
		found = append(found, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

// Exists reports whether a local file exists.
func (a *WorkspaceAdapter) Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// CatalogPath returns the catalog database path.
func (a *WorkspaceAdapter) CatalogPath() string {
	return a.layout.CatalogPath()
}

// Ensure WorkspaceAdapter implements the interface
var _ secondary.Workspace = (*WorkspaceAdapter)(nil)
