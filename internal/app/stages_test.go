package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/fusion"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/logging"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/ports/secondary"
)

type mockRinexWriter struct {
	days []time.Time
}

func (m *mockRinexWriter) WriteDay(ctx context.Context, obs []*rows.Observable, req secondary.RinexRequest) (*secondary.RinexFile, error) {
	if len(obs) == 0 {
		return nil, asset.ErrNoCandidates
	}
	m.days = append(m.days, req.Day)
	return &secondary.RinexFile{
		Path:   filepath.Join(req.OutputDir, fmt.Sprintf("%s%03d0.%02do", req.Site, req.Day.YearDay(), req.Day.Year()%100)),
		Start:  obs[0].Time(),
		End:    obs[len(obs)-1].Time(),
		Epochs: len(obs),
	}, nil
}

type mockSolver struct {
	err error
}

func (m *mockSolver) Solve(ctx context.Context, req secondary.SolveRequest) (*secondary.SolveResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &secondary.SolveResult{KinPath: req.RinexPath + ".kin", ResPath: req.RinexPath + ".res"}, nil
}

type stageFixture struct {
	assets  *mockAssetRepository
	stores  *memStores
	rinex   *mockRinexWriter
	solver  *mockSolver
	service *PipelineServiceImpl
}

func newStageFixture(t *testing.T) *stageFixture {
	t.Helper()
	f := &stageFixture{
		assets: newMockAssetRepository(),
		stores: newMemStores(),
		rinex:  &mockRinexWriter{},
		solver: &mockSolver{},
	}
	ws := newMockWorkspace(t.TempDir())
	deps := StageDeps{
		Assets:    f.assets,
		Stores:    f.stores,
		Parsers:   mockParsers{},
		Workspace: ws,
		Rinex:     f.rinex,
		Products:  &mockProductFetcher{},
		Solver:    f.solver,
		Log:       zap.NewNop(),
	}
	settings := StageSettings{RinexInterval: 15 * time.Second, Fusion: fusion.DefaultConfig()}
	f.service = NewPipelineService(
		NewStages(deps, settings),
		newMockMergeJobRepository(), f.stores, ws,
		NewEffectExecutor(f.assets, f.stores, zap.NewNop()),
		settings, logging.Nop(),
	)
	return f
}

func TestRinexStage_OneFilePerCampaignDay(t *testing.T) {
	f := newStageFixture(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.stores.obs.WriteRows(ctx, []*rows.Observable{
		{TimeMS: day.Add(time.Hour).UnixMilli(), Sys: "G", Sat: 1, Obs: "1C"},
		{TimeMS: day.AddDate(0, 0, 1).Add(time.Hour).UnixMilli(), Sys: "G", Sat: 1, Obs: "1C"},
		{TimeMS: time.Date(2023, 12, 31, 1, 0, 0, 0, time.UTC).UnixMilli(), Sys: "G", Sat: 1, Obs: "1C"},
	})
	require.NoError(t, err)

	rep, err := f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StageRinex)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Candidates)
	assert.Equal(t, 2, rep.Processed)

	recs, _ := f.assets.GetAssets(ctx, secondary.AssetFilter{Types: []asset.Type{asset.TypeRinex}})
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].TimeStart)

	rep, err = f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StageRinex)
	require.NoError(t, err)
	assert.True(t, rep.LedgerSkipped)
	assert.Len(t, f.rinex.days, 2)
}

func TestPrideStage_RegistersChildren(t *testing.T) {
	f := newStageFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(23 * time.Hour)
	rnx := scoped(asset.TypeRinex, "/int/NCC11530.24o")
	rnx.TimeStart, rnx.TimeEnd = &start, &end
	_, err := f.assets.Add(ctx, rnx)
	require.NoError(t, err)

	rep, err := f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StagePride)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)

	kids, _ := f.assets.GetAssets(ctx, secondary.AssetFilter{ParentID: &rnx.ID})
	require.Len(t, kids, 2)
	assert.Equal(t, asset.TypeKin, kids[0].Type)
	assert.Equal(t, asset.TypeKinResiduals, kids[1].Type)

	// The kin child hides the rinex file from the next plan.
	_, err = f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StagePride)
	assert.ErrorIs(t, err, asset.ErrNoCandidates)
}

func TestPrideStage_SolverFailureIsCounted(t *testing.T) {
	f := newStageFixture(t)
	ctx := context.Background()
	f.solver.err = fmt.Errorf("%w: pdp3 exited 1", asset.ErrExternalTool)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rnx := scoped(asset.TypeRinex, "/int/NCC11530.24o")
	rnx.TimeStart = &start
	_, err := f.assets.Add(ctx, rnx)
	require.NoError(t, err)

	rep, err := f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StagePride)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	all, _ := f.assets.ListAll(ctx)
	assert.Len(t, all, 1)
}

func TestFusionStage_ReplacesDay(t *testing.T) {
	f := newStageFixture(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	_, err := f.stores.shotsPre.WriteRows(ctx, []*rows.Shot{shotAt(day, "A"), shotAt(day.Add(time.Second), "B")})
	require.NoError(t, err)
	_, err = f.stores.shots.WriteRows(ctx, []*rows.Shot{shotAt(day.Add(time.Hour), "stale")})
	require.NoError(t, err)

	rep, err := f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StageFusion)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 2, f.stores.shots.count())
	assert.Equal(t, 1, f.stores.shots.replaces)

	rep, err = f.service.RunStage(ctx, primary.RunRequest{Scope: testScope}, pipeline.StageFusion)
	require.NoError(t, err)
	assert.True(t, rep.LedgerSkipped)
}
