package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/adapters/arraystore"
	"github.com/example/sfg/internal/adapters/filesystem"
	"github.com/example/sfg/internal/adapters/parsers"
	"github.com/example/sfg/internal/adapters/sqlite"
	"github.com/example/sfg/internal/app"
	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/fusion"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/logging"
	"github.com/example/sfg/internal/ports/primary"
)

// Integration tests run the catalog, ledger and stages against a real
// catalog database and on-disk array stores.

const acousticLog = `{"event":"interrogation","time":{"common":1717200000.0},"observations":{"NOV_INS":{"time":{"common":1717200000.0},"latitude":45.0,"longitude":-125.0,"hae":-30.0,"r":1.0,"p":2.0,"h":90.0}}}
{"event":"range","time":{"common":1717200002.5},"range":{"cn":"IR5209","range":2.6,"tat":200,"diag":{"xc":[60],"dbv":[-20],"snr":[12]}},"observations":{"NOV_INS":{"time":{"common":1717200002.5},"latitude":45.0,"longitude":-125.0,"hae":-30.0,"r":1.0,"p":2.0,"h":91.0}}}
`

type integration struct {
	ingest   *app.IngestServiceImpl
	pipeline *app.PipelineServiceImpl
	ledger   *sqlite.MergeJobRepository
	stores   *arraystore.Set
	incoming string
}

func setupIntegration(t *testing.T) *integration {
	t.Helper()
	database := setupTestDB(t)
	log := zap.NewNop()

	ws, err := filesystem.NewWorkspaceAdapter(t.TempDir(), nil, log)
	require.NoError(t, err)
	assets := sqlite.NewAssetRepository(database)
	mergeJobs := sqlite.NewMergeJobRepository(database)
	stores := arraystore.NewSet(ws.Layout().ArraysDir, log)

	deps := app.StageDeps{
		Assets:    assets,
		Stores:    stores,
		Parsers:   parsers.NewRegistry(parsers.Timing{TriggerDelay: 0.13, TATUnitsPerSecond: 1000}, log),
		Workspace: ws,
		Log:       log,
	}
	settings := app.StageSettings{Fusion: fusion.DefaultConfig()}
	catalog := app.NewCatalogService(assets, ws, log)

	incoming := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(incoming, "bcnvm_20240601_DFOP00.raw"), []byte(acousticLog), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(incoming, "notes.txt"), []byte("ignored"), 0o644))

	return &integration{
		ingest:   app.NewIngestService(catalog, assets, ws, nil, asset.DownloadTypes, 1, log),
		pipeline: app.NewPipelineService(app.NewStages(deps, settings), mergeJobs, stores, ws, app.NewEffectExecutor(assets, stores, log), settings, logging.Nop()),
		ledger:   mergeJobs,
		stores:   stores,
		incoming: incoming,
	}
}

func TestIntegration_IngestRunAndRerun(t *testing.T) {
	it := setupIntegration(t)
	ctx := context.Background()

	rep, err := it.ingest.Ingest(ctx, primary.IngestRequest{Scope: testScope, Paths: []string{it.incoming}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Added)

	reports, err := it.pipeline.RunPipeline(ctx, primary.RunRequest{Scope: testScope})
	require.NoError(t, err)
	byStage := make(map[pipeline.Name]*pipeline.Report)
	for _, r := range reports {
		byStage[r.Stage] = r
	}
	require.Contains(t, byStage, pipeline.StageAcoustic)
	require.Contains(t, byStage, pipeline.StageFusion)
	assert.Equal(t, 1, byStage[pipeline.StageAcoustic].Processed)
	assert.Equal(t, 1, byStage[pipeline.StageFusion].Processed)

	shotDays, err := it.stores.Shots(testScope).UniqueDates(ctx)
	require.NoError(t, err)
	require.Len(t, shotDays, 1)
	assert.Equal(t, "2024-06-01", shotDays[0].Format("2006-01-02"))

	entries, err := it.ledger.List(ctx)
	require.NoError(t, err)
	recorded := len(entries)
	assert.GreaterOrEqual(t, recorded, 2)

	// Nothing new: the acoustic file is processed and fusion's inputs are
	// unchanged, so the second run writes nothing.
	reports, err = it.pipeline.RunPipeline(ctx, primary.RunRequest{Scope: testScope})
	require.NoError(t, err)
	for _, r := range reports {
		assert.Zero(t, r.RowsWritten, r.Stage)
		if r.Stage == pipeline.StageFusion {
			assert.True(t, r.LedgerSkipped)
		}
	}
	entries, err = it.ledger.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, recorded)
}

func TestIntegration_OverrideRefreshesLedger(t *testing.T) {
	it := setupIntegration(t)
	ctx := context.Background()

	_, err := it.ingest.Ingest(ctx, primary.IngestRequest{Scope: testScope, Paths: []string{it.incoming}})
	require.NoError(t, err)
	_, err = it.pipeline.RunPipeline(ctx, primary.RunRequest{Scope: testScope})
	require.NoError(t, err)
	before, err := it.ledger.List(ctx)
	require.NoError(t, err)

	rep, err := it.pipeline.RunStage(ctx, primary.RunRequest{Scope: testScope, Override: true}, pipeline.StageFusion)
	require.NoError(t, err)
	assert.False(t, rep.LedgerSkipped)
	assert.Equal(t, 1, rep.Processed)

	after, err := it.ledger.List(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	shots, err := it.stores.Shots(testScope).ReadRange(ctx, day, day)
	require.NoError(t, err)
	assert.Len(t, shots, 1, "the refined day is replaced, not appended")
}
