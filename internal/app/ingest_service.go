package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/discovery"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/ports/secondary"
)

// IngestServiceImpl implements the IngestService interface.
type IngestServiceImpl struct {
	catalog     primary.CatalogService
	assets      secondary.AssetRepository
	workspace   secondary.Workspace
	fetcher     secondary.ArchiveFetcher
	pullTypes   []asset.Type
	concurrency int
	log         *zap.Logger
}

var _ primary.IngestService = (*IngestServiceImpl)(nil)

// NewIngestService creates a new IngestService with injected dependencies.
// Only pullTypes are downloaded by Pull.
func NewIngestService(
	catalog primary.CatalogService,
	assets secondary.AssetRepository,
	workspace secondary.Workspace,
	fetcher secondary.ArchiveFetcher,
	pullTypes []asset.Type,
	concurrency int,
	log *zap.Logger,
) *IngestServiceImpl {
	if concurrency < 1 {
		concurrency = 1
	}
	return &IngestServiceImpl{
		catalog:     catalog,
		assets:      assets,
		workspace:   workspace,
		fetcher:     fetcher,
		pullTypes:   pullTypes,
		concurrency: concurrency,
		log:         log,
	}
}

// Init builds the campaign directory tree.
func (s *IngestServiceImpl) Init(ctx context.Context, scope asset.Scope) (string, error) {
	paths, err := s.workspace.Build(ctx, scope)
	if err != nil {
		return "", err
	}
	return paths.Campaign, nil
}

// Ingest scans each path and catalogs every classified file.
func (s *IngestServiceImpl) Ingest(ctx context.Context, req primary.IngestRequest) (*primary.IngestReport, error) {
	if _, err := s.workspace.Build(ctx, req.Scope); err != nil {
		return nil, err
	}

	var recs []*asset.Record
	for _, p := range req.Paths {
		found, err := s.workspace.Scan(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		for _, f := range found {
			abs, err := filepath.Abs(f.Path)
			if err != nil {
				abs = f.Path
			}
			recs = append(recs, &asset.Record{
				Type:      f.Type,
				LocalPath: abs,
				Network:   req.Scope.Network,
				Station:   req.Scope.Station,
				Campaign:  req.Scope.Campaign,
				TimeStart: f.Start,
				TimeEnd:   f.End,
			})
		}
	}

	rep := &primary.IngestReport{Discovered: len(recs)}
	rep.AddReport = s.catalog.AddEntries(ctx, recs)
	s.log.Info("ingested files",
		zap.Int("discovered", rep.Discovered),
		zap.Int("added", rep.Added),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("failed", rep.Failed))
	return rep, nil
}

func (s *IngestServiceImpl) pullable(t asset.Type) bool {
	for _, p := range s.pullTypes {
		if p == t {
			return true
		}
	}
	return false
}

// Pull registers each remote URI, downloads it into the campaign's raw
// directory and records the local path. Failed downloads stay remote-only
// and are retried by the next pull.
func (s *IngestServiceImpl) Pull(ctx context.Context, req primary.PullRequest) (*primary.PullReport, error) {
	paths, err := s.workspace.Build(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	rep := &primary.PullReport{Requested: len(req.URIs)}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, uri := range req.URIs {
		log := s.log.With(zap.String("uri", uri))
		name := path.Base(strings.SplitN(uri, "?", 2)[0])
		typ, ok := discovery.Classify(name)
		if !ok || !s.pullable(typ) {
			log.Debug("not a downloadable type")
			rep.Ignored++
			continue
		}
		rt, err := asset.RemoteTypeForURI(uri)
		if err != nil {
			log.Warn("bad remote uri", zap.Error(err))
			rep.Failed++
			continue
		}

		if err := s.register(ctx, req.Scope, typ, uri, rt); err != nil {
			log.Warn("failed to register remote file", zap.Error(err))
			rep.Failed++
			continue
		}

		local := filepath.Join(paths.Raw, name)
		if s.workspace.Exists(local) {
			if err := s.link(ctx, uri, local); err != nil {
				log.Warn("failed to record local path", zap.Error(err))
				rep.Failed++
				continue
			}
			rep.Present++
			continue
		}

		g.Go(func() error {
			got, err := s.fetcher.Fetch(ctx, uri, paths.Raw)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				err = s.link(ctx, uri, got)
			}
			if err != nil {
				log.Warn("download failed", zap.Error(err))
				rep.Failed++
				return nil
			}
			rep.Downloaded++
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (s *IngestServiceImpl) register(ctx context.Context, scope asset.Scope, typ asset.Type, uri string, rt asset.RemoteType) error {
	exists, err := s.assets.RemoteExists(ctx, uri)
	if err != nil || exists {
		return err
	}
	_, err = s.catalog.AddEntry(ctx, &asset.Record{
		Type:       typ,
		RemotePath: uri,
		RemoteType: rt,
		Network:    scope.Network,
		Station:    scope.Station,
		Campaign:   scope.Campaign,
	})
	return err
}

// link records the local copy of a remote file. A local path already owned by
// another record counts as present.
func (s *IngestServiceImpl) link(ctx context.Context, uri, local string) error {
	err := s.assets.UpdateLocalPath(ctx, uri, local)
	if errors.Is(err, asset.ErrDuplicate) {
		return nil
	}
	return err
}
