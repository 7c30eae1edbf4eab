package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/fusion"
	"github.com/example/sfg/internal/core/ledger"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/metrics"
)

type fusionStage struct {
	deps StageDeps
	cfg  fusion.Config
}

// NewFusionStage refines pre-fusion shots against the position stores, one
// calendar day at a time.
func NewFusionStage(deps StageDeps, cfg fusion.Config) Stage {
	return &fusionStage{deps: deps, cfg: cfg}
}

func (s *fusionStage) Name() pipeline.Name { return pipeline.StageFusion }

// Plan returns one candidate per day of pre-fusion shot data. The key covers
// the shot, kinematic and IMU day sets.
func (s *fusionStage) Plan(ctx context.Context, scope asset.Scope, override bool) ([]pipeline.Candidate, ledger.Key, error) {
	shotDays, err := s.deps.Stores.ShotsPre(scope).UniqueDates(ctx)
	if err != nil {
		return nil, ledger.Key{}, fmt.Errorf("failed to list shot dates: %w", err)
	}
	if len(shotDays) == 0 {
		return nil, ledger.Key{}, nil
	}
	kinDays, err := s.deps.Stores.Positions(scope).UniqueDates(ctx)
	if err != nil {
		return nil, ledger.Key{}, fmt.Errorf("failed to list position dates: %w", err)
	}
	imuDays, err := s.deps.Stores.IMU(scope).UniqueDates(ctx)
	if err != nil {
		return nil, ledger.Key{}, fmt.Errorf("failed to list imu dates: %w", err)
	}

	var sigs []string
	for _, set := range []struct {
		prefix string
		days   []string
	}{
		{"SHOT-", pipeline.DateSignature(shotDays)},
		{"KIN-", pipeline.DateSignature(kinDays)},
		{"IMU-", pipeline.DateSignature(imuDays)},
	} {
		for _, d := range set.days {
			sigs = append(sigs, set.prefix+d)
		}
	}

	cands := make([]pipeline.Candidate, len(shotDays))
	for i, d := range shotDays {
		cands[i] = pipeline.Candidate{Scope: scope, Day: d}
	}
	return cands, ledger.SignatureKey(asset.TypeShotData, asset.TypeShotData, sigs...), nil
}

// Process refines one day and replaces that day of final shot data.
func (s *fusionStage) Process(ctx context.Context, c pipeline.Candidate) (pipeline.Result, error) {
	day := rows.Day(c.Day)
	pre, err := s.deps.Stores.ShotsPre(c.Scope).ReadRange(ctx, day, day)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to read shots: %w", err)
	}
	var shots []*rows.Shot
	for _, sh := range pre {
		if rows.Day(sh.Time()).Equal(day) {
			shots = append(shots, sh)
		}
	}
	if len(shots) == 0 {
		return pipeline.Result{Skipped: true, Reason: "no shots on day"}, nil
	}

	imu, err := s.deps.Stores.IMU(c.Scope).ReadRange(ctx, day, day)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to read imu positions: %w", err)
	}
	kin, err := s.deps.Stores.Positions(c.Scope).ReadRange(ctx, day, day)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to read kin positions: %w", err)
	}

	res, err := fusion.RefineDay(shots, imu, kin, s.cfg)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to refine %s: %w", c, err)
	}
	d := res.Diagnostics
	metrics.FusionUnfilledTotal.Add(float64(d.Unfilled()))
	if d.Unfilled() > 0 {
		s.deps.Log.Warn("fusion left poses unset",
			zap.Time("day", day),
			zap.Int("unfilled_ping", d.UnfilledPing),
			zap.Int("unfilled_return", d.UnfilledReturn))
	}

	return pipeline.Result{Effects: []effects.Effect{
		effects.ReplaceRangeEffect{Scope: c.Scope, Kind: rows.KindShot, Start: day, End: day, Rows: res.Shots},
		effects.LogEffect{
			Level:   "info",
			Message: "fused shot day",
			Fields: map[string]any{
				"day":              day.Format("2006-01-02"),
				"input":            d.Input,
				"updated":          d.Updated,
				"outliers_dropped": d.OutliersDropped,
				"filter_states":    d.FilterStates,
			},
		},
	}}, nil
}
