package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/discovery"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/ledger"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/ports/secondary"
)

type rinexStage struct {
	deps     StageDeps
	interval time.Duration
	year     int
}

// NewRinexStage writes one RINEX file per observed day of the processing
// year. A zero year is taken from the campaign name.
func NewRinexStage(deps StageDeps, interval time.Duration, year int) Stage {
	return &rinexStage{deps: deps, interval: interval, year: year}
}

func (s *rinexStage) Name() pipeline.Name { return pipeline.StageRinex }

// Plan returns one candidate per stored observable day in the campaign year.
// The ledger key is the store signature plus the day set, so new days make
// a new job.
func (s *rinexStage) Plan(ctx context.Context, scope asset.Scope, override bool) ([]pipeline.Candidate, ledger.Key, error) {
	year := s.year
	if year == 0 {
		var err error
		if year, err = discovery.CampaignYear(scope.Campaign); err != nil {
			return nil, ledger.Key{}, err
		}
	}
	store := s.deps.Stores.Observables(scope, false)
	dates, err := store.UniqueDates(ctx)
	if err != nil {
		return nil, ledger.Key{}, fmt.Errorf("failed to list observable dates: %w", err)
	}
	days := pipeline.DaysInYear(dates, year)
	if len(days) < len(dates) {
		s.deps.Log.Debug("ignoring observable days outside campaign year",
			zap.Int("year", year), zap.Int("ignored", len(dates)-len(days)))
	}

	cands := make([]pipeline.Candidate, len(days))
	for i, d := range days {
		cands[i] = pipeline.Candidate{Scope: scope, Day: d}
	}
	sigs := append([]string{pipeline.RinexSignature(scope, store.Path(), year)}, pipeline.DateSignature(days)...)
	if len(days) == 0 {
		sigs = nil
	}
	return cands, ledger.SignatureKey(asset.TypeGNSSObsTDB, asset.TypeRinex, sigs...), nil
}

// Process writes the day's RINEX file and registers it.
func (s *rinexStage) Process(ctx context.Context, c pipeline.Candidate) (pipeline.Result, error) {
	paths, err := s.deps.Workspace.Build(ctx, c.Scope)
	if err != nil {
		return pipeline.Result{}, err
	}
	obs, err := s.deps.Stores.Observables(c.Scope, false).ReadRange(ctx, c.Day, c.Day)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to read observables: %w", err)
	}

	file, err := s.deps.Rinex.WriteDay(ctx, obs, secondary.RinexRequest{
		Site:      c.Scope.Station,
		Day:       c.Day,
		OutputDir: paths.Intermediate,
		Interval:  s.interval,
	})
	if errors.Is(err, asset.ErrNoCandidates) {
		return pipeline.Result{Skipped: true, Reason: err.Error()}, nil
	}
	if err != nil {
		return pipeline.Result{}, err
	}

	start, end := file.Start, file.End
	rec := &asset.Record{
		Type:      asset.TypeRinex,
		LocalPath: file.Path,
		Network:   c.Scope.Network,
		Station:   c.Scope.Station,
		Campaign:  c.Scope.Campaign,
		TimeStart: &start,
		TimeEnd:   &end,
	}
	return pipeline.Result{Effects: []effects.Effect{effects.AddAssetEffect{Record: rec}}}, nil
}
