package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/ledger"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/ctxutil"
	"github.com/example/sfg/internal/logging"
	"github.com/example/sfg/internal/metrics"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/ports/secondary"
)

// PipelineServiceImpl implements the PipelineService interface.
type PipelineServiceImpl struct {
	stages    map[pipeline.Name]Stage
	ledger    secondary.MergeJobRepository
	stores    secondary.ArrayStores
	workspace secondary.Workspace
	executor  EffectExecutor
	settings  StageSettings
	logs      *logging.Context

	commitMu sync.Mutex
}

var _ primary.PipelineService = (*PipelineServiceImpl)(nil)

// NewPipelineService creates a new PipelineService with injected dependencies.
func NewPipelineService(
	stages []Stage,
	ledgerRepo secondary.MergeJobRepository,
	stores secondary.ArrayStores,
	workspace secondary.Workspace,
	executor EffectExecutor,
	settings StageSettings,
	logs *logging.Context,
) *PipelineServiceImpl {
	byName := make(map[pipeline.Name]Stage, len(stages))
	for _, st := range stages {
		byName[st.Name()] = st
	}
	return &PipelineServiceImpl{
		stages:    byName,
		ledger:    ledgerRepo,
		stores:    stores,
		workspace: workspace,
		executor:  executor,
		settings:  settings,
		logs:      logs,
	}
}

// RunStage runs a single stage with the campaign log attached.
func (s *PipelineServiceImpl) RunStage(ctx context.Context, req primary.RunRequest, name pipeline.Name) (*pipeline.Report, error) {
	ctx, log, done, err := s.session(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.runStage(ctx, log, req, name)
}

// RunPipeline consolidates the station stores, then runs the stages in
// canonical order. A stage with no candidates is not a failure.
func (s *PipelineServiceImpl) RunPipeline(ctx context.Context, req primary.RunRequest) ([]*pipeline.Report, error) {
	ctx, log, done, err := s.session(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	defer done()

	log.Info("consolidating array stores")
	if err := s.stores.ConsolidateAll(ctx, req.Scope); err != nil {
		return nil, fmt.Errorf("failed to consolidate stores: %w", err)
	}

	var reports []*pipeline.Report
	for _, name := range pipeline.Order() {
		if _, ok := s.stages[name]; !ok {
			continue
		}
		rep, err := s.runStage(ctx, log, req, name)
		if rep != nil {
			reports = append(reports, rep)
		}
		if errors.Is(err, asset.ErrNoCandidates) {
			continue
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// session tags the context with a run id and attaches the campaign log.
func (s *PipelineServiceImpl) session(ctx context.Context, scope asset.Scope) (context.Context, *zap.Logger, func(), error) {
	paths, err := s.workspace.Build(ctx, scope)
	if err != nil {
		return nil, nil, nil, err
	}
	attached, err := s.logs.Attach(paths.Logs)
	if err != nil {
		return nil, nil, nil, err
	}

	runID := uuid.NewString()
	ctx = ctxutil.WithRunID(ctx, runID)
	log := attached.Logger().With(
		zap.String("run_id", runID),
		zap.String("network", scope.Network),
		zap.String("station", scope.Station),
		zap.String("campaign", scope.Campaign),
	)
	return ctx, log, func() { _ = attached.Detach() }, nil
}

func (s *PipelineServiceImpl) workers(name pipeline.Name) int {
	if n := s.settings.Workers[name]; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (s *PipelineServiceImpl) runStage(ctx context.Context, log *zap.Logger, req primary.RunRequest, name pipeline.Name) (*pipeline.Report, error) {
	stage, ok := s.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: stage %q is not configured", asset.ErrConfig, name)
	}
	log = log.With(zap.String("stage", string(name)))
	override := req.Override || s.settings.Override[name]
	start := time.Now()

	cands, key, err := stage.Plan(ctx, req.Scope, override)
	if err != nil {
		return nil, fmt.Errorf("failed to plan %s: %w", name, err)
	}
	rep := &pipeline.Report{Stage: name, Candidates: len(cands)}
	if len(cands) == 0 {
		log.Info("no candidates")
		return rep, fmt.Errorf("%s: %w", name, asset.ErrNoCandidates)
	}

	complete, err := s.ledger.IsComplete(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}
	if g := ledger.CanProceed(ledger.ProceedContext{Key: key, Complete: complete, Override: override}); !g.Allowed {
		if key.Empty() {
			return rep, fmt.Errorf("%s: %w", name, asset.ErrNoCandidates)
		}
		rep.LedgerSkipped = true
		rep.Duration = time.Since(start)
		log.Info("skipping stage", zap.String("reason", g.Reason))
		return rep, nil
	}

	log.Info("running stage", zap.Int("candidates", len(cands)), zap.Bool("override", override))
	var g errgroup.Group
	g.SetLimit(s.workers(name))
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s.handle(ctx, log, stage, c, rep)
			return nil
		})
	}
	_ = g.Wait()
	rep.Duration = time.Since(start)
	metrics.ObserveStage(string(name), rep.Processed, rep.Skipped, rep.Failed, rep.Duration)

	if err := ctx.Err(); err != nil {
		log.Warn("stage interrupted", zap.String("summary", rep.Summary()))
		return rep, err
	}
	if rep.Failed == 0 && rep.Pending == 0 {
		if err := s.recordLedger(ctx, key, override); err != nil {
			return rep, err
		}
	}
	log.Info(rep.Summary(), zap.Int("rows_written", rep.RowsWritten))
	return rep, nil
}

// handle processes one candidate and commits its effects under the commit
// lock. Candidate failures are logged and counted, never returned. A parse
// error counts as a skip; the candidate stays unprocessed.
func (s *PipelineServiceImpl) handle(ctx context.Context, log *zap.Logger, stage Stage, c pipeline.Candidate, rep *pipeline.Report) {
	clog := log.With(zap.String("candidate", c.String()))
	if c.Asset != nil {
		clog = clog.With(zap.Int64("asset_id", c.Asset.ID), zap.String("path", c.Asset.StorageRef()))
	}

	res, err := stage.Process(ctx, c)
	outcome := pipeline.OutcomeProcessed
	pending := false
	switch {
	case errors.Is(err, asset.ErrParse):
		outcome, pending = pipeline.OutcomeSkipped, true
		clog.Warn("candidate unparseable", zap.Error(err))
	case err != nil:
		outcome = pipeline.OutcomeFailed
		clog.Warn("candidate failed", zap.Error(err), zap.Bool("recoverable", asset.IsRecoverable(err)))
	case res.Skipped:
		outcome, pending = pipeline.OutcomeSkipped, res.Pending
		clog.Info("candidate skipped", zap.String("reason", res.Reason))
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if pending {
		rep.Pending++
	}
	if err == nil && len(res.Effects) > 0 {
		if cerr := s.executor.Execute(ctx, res.Effects); cerr != nil {
			outcome = pipeline.OutcomeFailed
			clog.Warn("commit failed", zap.Error(cerr))
		} else {
			rep.RowsWritten += effects.CountRows(res.Effects)
		}
	}
	rep.Add(outcome)
}

// recordLedger records the completed job; under override it refreshes it.
func (s *PipelineServiceImpl) recordLedger(ctx context.Context, key ledger.Key, override bool) error {
	if override {
		if err := s.ledger.Upsert(ctx, key); err != nil {
			return fmt.Errorf("failed to upsert merge job: %w", err)
		}
		return nil
	}
	err := s.ledger.Record(ctx, key)
	if err != nil && !isDuplicate(err) {
		return fmt.Errorf("failed to record merge job: %w", err)
	}
	return nil
}
