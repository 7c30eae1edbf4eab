package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/ports/secondary"
)

// CatalogServiceImpl implements the CatalogService interface.
type CatalogServiceImpl struct {
	assets    secondary.AssetRepository
	workspace secondary.Workspace
	log       *zap.Logger
}

var _ primary.CatalogService = (*CatalogServiceImpl)(nil)

// NewCatalogService creates a new CatalogService with injected dependencies.
func NewCatalogService(assets secondary.AssetRepository, workspace secondary.Workspace, log *zap.Logger) *CatalogServiceImpl {
	return &CatalogServiceImpl{assets: assets, workspace: workspace, log: log}
}

// AddEntry validates and registers one record.
func (s *CatalogServiceImpl) AddEntry(ctx context.Context, rec *asset.Record) (bool, error) {
	if g := asset.Validate(rec); !g.Allowed {
		return false, fmt.Errorf("%w: %s", asset.ErrValidation, g.Reason)
	}
	added, err := s.assets.Add(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("failed to add asset: %w", err)
	}
	return added, nil
}

// AddEntries registers records one at a time. A failed record is logged and
// left absent so the next pass retries it.
func (s *CatalogServiceImpl) AddEntries(ctx context.Context, recs []*asset.Record) primary.AddReport {
	var rep primary.AddReport
	for _, rec := range recs {
		added, err := s.AddEntry(ctx, rec)
		switch {
		case err != nil:
			rep.Failed++
			s.log.Warn("failed to catalog file",
				zap.String("path", rec.StorageRef()),
				zap.String("type", rec.Type.String()),
				zap.Error(err))
		case added:
			rep.Added++
		default:
			rep.Duplicates++
		}
	}
	return rep
}

// GetAssets lists records matching the query.
func (s *CatalogServiceImpl) GetAssets(ctx context.Context, q primary.AssetQuery) ([]*asset.Record, error) {
	filter := secondary.AssetFilter{
		Network:  q.Scope.Network,
		Station:  q.Scope.Station,
		Campaign: q.Scope.Campaign,
		Types:    q.Types,
	}
	switch {
	case q.OnlyPending && q.OnlyProcessed:
		return nil, fmt.Errorf("%w: pending and processed are exclusive", asset.ErrConfig)
	case q.OnlyPending:
		f := false
		filter.Processed = &f
	case q.OnlyProcessed:
		t := true
		filter.Processed = &t
	}
	return s.assets.GetAssets(ctx, filter)
}

// GetUnprocessed lists parents of parentType lacking a childType child.
func (s *CatalogServiceImpl) GetUnprocessed(ctx context.Context, scope asset.Scope, parentType, childType asset.Type, override bool) ([]*asset.Record, error) {
	return s.assets.GetUnprocessed(ctx, scope, parentType, childType, override)
}

// Upsert updates a record in place.
func (s *CatalogServiceImpl) Upsert(ctx context.Context, rec *asset.Record) error {
	if rec.Processed {
		if g := asset.CanMarkProcessed(rec); !g.Allowed {
			return g.Error()
		}
	}
	return s.assets.Upsert(ctx, rec)
}

// Counts returns the number of records per type in scope.
func (s *CatalogServiceImpl) Counts(ctx context.Context, scope asset.Scope) (map[asset.Type]int, error) {
	return s.assets.Counts(ctx, scope)
}

// GarbageCollect removes records that only point at a local file which no
// longer exists. Remote-backed records are kept since they can be pulled
// again. A vanished record that a surviving record names as parent is held
// and reported rather than removed.
func (s *CatalogServiceImpl) GarbageCollect(ctx context.Context) (*primary.GCReport, error) {
	all, err := s.assets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	rep := &primary.GCReport{Checked: len(all)}
	gone := make(map[int64]*asset.Record)
	children := make(map[int64][]int64)
	for _, rec := range all {
		if rec.HasParent() {
			children[*rec.ParentID] = append(children[*rec.ParentID], rec.ID)
		}
		if rec.LocalPath == "" || rec.RemotePath != "" {
			continue
		}
		if s.workspace.Exists(rec.LocalPath) {
			continue
		}
		gone[rec.ID] = rec
	}

	// Holding one record can keep its own parent alive, so repeat until
	// nothing changes.
	held := make(map[int64][]int64)
	for changed := true; changed; {
		changed = false
		for id := range gone {
			var live []int64
			for _, c := range children[id] {
				if gone[c] == nil {
					live = append(live, c)
				}
			}
			if len(live) > 0 {
				held[id] = live
				delete(gone, id)
				changed = true
			}
		}
	}

	var ids []int64
	for _, rec := range all {
		if gone[rec.ID] != nil {
			rep.Removed = append(rep.Removed, rec)
			ids = append(ids, rec.ID)
		} else if kids, ok := held[rec.ID]; ok {
			sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
			rep.Held = append(rep.Held, primary.GCHold{Record: rec, Children: kids})
		}
	}
	if len(rep.Held) > 0 {
		s.log.Warn("vanished assets still referenced by children",
			zap.Int("count", len(rep.Held)))
	}
	if len(ids) == 0 {
		return rep, nil
	}
	if err := s.assets.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete vanished assets: %w", err)
	}
	s.log.Info("removed vanished assets", zap.Int("count", len(ids)))
	return rep, nil
}

// CheckLineage reports records whose parent id does not resolve or whose
// parent is not one of the types the record may derive from.
func (s *CatalogServiceImpl) CheckLineage(ctx context.Context) ([]primary.LineageIssue, error) {
	all, err := s.assets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	known := make(map[int64]asset.Type, len(all))
	for _, rec := range all {
		known[rec.ID] = rec.Type
	}

	var issues []primary.LineageIssue
	for _, rec := range all {
		if !rec.HasParent() {
			continue
		}
		pt, ok := known[*rec.ParentID]
		switch {
		case !ok:
			issues = append(issues, primary.LineageIssue{Record: rec, ParentID: *rec.ParentID})
		case !rec.Type.AcceptsParent(pt):
			issues = append(issues, primary.LineageIssue{Record: rec, ParentID: *rec.ParentID, ParentType: pt})
		}
	}
	return issues, nil
}

// isDuplicate reports whether err is a catalog integrity error.
func isDuplicate(err error) bool {
	return errors.Is(err, asset.ErrDuplicate)
}
