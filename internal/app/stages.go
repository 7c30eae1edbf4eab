package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/fusion"
	"github.com/example/sfg/internal/core/ledger"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/ports/secondary"
)

// Stage is one step of the pipeline. Plan queries the catalog fresh and
// returns the candidates with the ledger key covering them. Process runs
// concurrently and must not write; its effects are committed serially.
type Stage interface {
	Name() pipeline.Name
	Plan(ctx context.Context, scope asset.Scope, override bool) ([]pipeline.Candidate, ledger.Key, error)
	Process(ctx context.Context, c pipeline.Candidate) (pipeline.Result, error)
}

// StageDeps are the collaborators shared by the stages.
type StageDeps struct {
	Assets    secondary.AssetRepository
	Stores    secondary.ArrayStores
	Parsers   secondary.ParserRegistry
	Workspace secondary.Workspace
	Rinex     secondary.RinexWriter
	Products  secondary.ProductFetcher
	Solver    secondary.PPPSolver
	Log       *zap.Logger
}

// StageSettings carries the per-stage configuration the shell needs.
type StageSettings struct {
	Workers       map[pipeline.Name]int
	Override      map[pipeline.Name]bool
	RinexInterval time.Duration
	RinexYear     int // 0 derives the year from the campaign name
	Fusion        fusion.Config
}

// NewStages builds every stage in canonical order.
func NewStages(deps StageDeps, settings StageSettings) []Stage {
	return []Stage{
		NewNovatelStage(deps),
		NewRinexStage(deps, settings.RinexInterval, settings.RinexYear),
		NewPrideStage(deps),
		NewKinStage(deps),
		NewAcousticStage(deps),
		NewFusionStage(deps, settings.Fusion),
	}
}

// assetCandidates turns catalog records into per-asset candidates.
func assetCandidates(scope asset.Scope, recs []*asset.Record) []pipeline.Candidate {
	out := make([]pipeline.Candidate, len(recs))
	for i, r := range recs {
		out[i] = pipeline.Candidate{Scope: scope, Asset: r}
	}
	return out
}

// fileStage parses cataloged raw files into array-store rows.
type fileStage struct {
	name      pipeline.Name
	types     []asset.Type
	keyParent asset.Type
	keyChild  asset.Type
	rows      func(scope asset.Scope, p *secondary.Parsed) []effects.Effect
	deps      StageDeps
}

func (s *fileStage) Name() pipeline.Name { return s.name }

// Plan returns every unprocessed file of the stage's types.
func (s *fileStage) Plan(ctx context.Context, scope asset.Scope, override bool) ([]pipeline.Candidate, ledger.Key, error) {
	var recs []*asset.Record
	for _, t := range s.types {
		found, err := s.deps.Assets.GetUnprocessed(ctx, scope, t, "", override)
		if err != nil {
			return nil, ledger.Key{}, fmt.Errorf("failed to query %s candidates: %w", t, err)
		}
		recs = append(recs, found...)
	}
	return assetCandidates(scope, recs), ledger.NewKey(s.keyParent, s.keyChild, asset.IDs(recs)), nil
}

// Process parses one file. Types without a registered parser and files with
// nothing usable are skipped and stay unprocessed.
func (s *fileStage) Process(ctx context.Context, c pipeline.Candidate) (pipeline.Result, error) {
	rec := c.Asset
	parse, ok := s.deps.Parsers.Lookup(rec.Type)
	if !ok {
		return pipeline.Result{
			Skipped: true,
			Pending: true,
			Reason:  fmt.Sprintf("%s: no parser registered for %s", asset.ErrParse, rec.Type),
		}, nil
	}

	parsed, err := parse(ctx, rec)
	if err != nil {
		return pipeline.Result{}, err
	}
	if parsed.Empty() {
		return pipeline.Result{Skipped: true, Pending: true, Reason: "no rows decoded"}, nil
	}

	effs := append(s.rows(c.Scope, parsed), effects.MarkProcessedEffect{AssetID: rec.ID})
	return pipeline.Result{Effects: effs}, nil
}
