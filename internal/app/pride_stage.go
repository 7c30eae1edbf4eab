package app

import (
	"context"
	"fmt"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/ledger"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/ports/secondary"
)

type prideStage struct {
	deps StageDeps
}

// NewPrideStage solves each unprocessed RINEX file with the PPP solver.
func NewPrideStage(deps StageDeps) Stage {
	return &prideStage{deps: deps}
}

func (s *prideStage) Name() pipeline.Name { return pipeline.StagePride }

// Plan returns RINEX files that no kin file references yet.
func (s *prideStage) Plan(ctx context.Context, scope asset.Scope, override bool) ([]pipeline.Candidate, ledger.Key, error) {
	recs, err := s.deps.Assets.GetUnprocessed(ctx, scope, asset.TypeRinex, asset.TypeKin, override)
	if err != nil {
		return nil, ledger.Key{}, fmt.Errorf("failed to query rinex candidates: %w", err)
	}
	return assetCandidates(scope, recs), ledger.NewKey(asset.TypeRinex, asset.TypeKin, asset.IDs(recs)), nil
}

// Process fetches the day's products, runs the solver and registers its
// outputs as children of the RINEX file.
func (s *prideStage) Process(ctx context.Context, c pipeline.Candidate) (pipeline.Result, error) {
	rec := c.Asset
	if rec.TimeStart == nil {
		return pipeline.Result{}, fmt.Errorf("%w: rinex %d has no start time", asset.ErrParse, rec.ID)
	}
	paths, err := s.deps.Workspace.Build(ctx, c.Scope)
	if err != nil {
		return pipeline.Result{}, err
	}

	products, err := s.deps.Products.Fetch(ctx, *rec.TimeStart)
	if err != nil {
		return pipeline.Result{}, err
	}
	res, err := s.deps.Solver.Solve(ctx, secondary.SolveRequest{
		RinexPath: rec.LocalPath,
		Site:      c.Scope.Station,
		Day:       *rec.TimeStart,
		OutputDir: paths.Intermediate,
		Products:  products,
	})
	if err != nil {
		return pipeline.Result{}, err
	}

	child := func(t asset.Type, path string) effects.Effect {
		parent := rec.ID
		return effects.AddAssetEffect{Record: &asset.Record{
			Type:      t,
			LocalPath: path,
			Network:   rec.Network,
			Station:   rec.Station,
			Campaign:  rec.Campaign,
			TimeStart: rec.TimeStart,
			TimeEnd:   rec.TimeEnd,
			ParentID:  &parent,
		}}
	}
	effs := []effects.Effect{child(asset.TypeKin, res.KinPath)}
	if res.ResPath != "" {
		effs = append(effs, child(asset.TypeKinResiduals, res.ResPath))
	}
	effs = append(effs, effects.MarkProcessedEffect{AssetID: rec.ID})
	return pipeline.Result{Effects: effs}, nil
}
