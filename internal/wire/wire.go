// Package wire provides dependency injection for the sfg application.
// It builds the services once, lazily, from the resolved configuration.
package wire

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/example/sfg/internal/adapters/archive"
	"github.com/example/sfg/internal/adapters/arraystore"
	cliadapter "github.com/example/sfg/internal/adapters/cli"
	"github.com/example/sfg/internal/adapters/filesystem"
	"github.com/example/sfg/internal/adapters/parsers"
	"github.com/example/sfg/internal/adapters/pride"
	"github.com/example/sfg/internal/adapters/products"
	"github.com/example/sfg/internal/adapters/rinex"
	"github.com/example/sfg/internal/adapters/sqlite"
	"github.com/example/sfg/internal/app"
	"github.com/example/sfg/internal/config"
	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/db"
	"github.com/example/sfg/internal/logging"
	"github.com/example/sfg/internal/ports/primary"
)

// Options are the global command-line settings. They must be set with
// Configure before the first service is requested.
type Options struct {
	ConfigFile     string // primary config; defaults to <data dir>/sfg.json
	ConfigOverride string // secondary config layered on top
	DataDir        string // overrides the configured data directory
	Override       bool   // force every stage
}

var (
	opts Options

	cfg      *config.PipelineConfig
	logs     *logging.Context
	database *sql.DB

	catalogService  primary.CatalogService
	ingestService   primary.IngestService
	pipelineService primary.PipelineService
	storeService    primary.StoreService

	once    sync.Once
	initErr error
)

// Configure records the global options.
func Configure(o Options) {
	opts = o
}

// Config returns the resolved configuration.
func Config() (*config.PipelineConfig, error) {
	once.Do(initServices)
	return cfg, initErr
}

// Logger returns the root logging context.
func Logger() (*logging.Context, error) {
	once.Do(initServices)
	return logs, initErr
}

// LoadConfig resolves the configuration without building any service.
func LoadConfig() (*config.PipelineConfig, error) {
	primaryFile := opts.ConfigFile
	if primaryFile == "" {
		dir := opts.DataDir
		if dir == "" {
			dir = os.Getenv(config.EnvDataDir)
		}
		if dir == "" {
			dir = "."
		}
		primaryFile = config.ResolvePrimary(dir)
	}
	c, err := config.Load(primaryFile, opts.ConfigOverride)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		c.Global.DataDir = opts.DataDir
	}
	if opts.Override {
		c.SetOverride(true)
	}
	return c, nil
}

// initServices builds every adapter and service. Called once via sync.Once.
func initServices() {
	var err error
	if cfg, err = LoadConfig(); err != nil {
		initErr = err
		return
	}
	if logs, err = logging.New(cfg.Global.LogLevel, cfg.Global.LogPretty); err != nil {
		initErr = fmt.Errorf("%w: %v", asset.ErrConfig, err)
		return
	}
	log := logs.Logger()

	hw, err := cfg.Hardware()
	if err != nil {
		initErr = err
		return
	}

	// Secondary adapters
	workspace, err := filesystem.NewWorkspaceAdapter(cfg.Global.DataDir,
		map[asset.Type]filesystem.SpanReader{asset.TypeRinex: rinex.ReadSpan},
		log.Named("workspace"))
	if err != nil {
		initErr = err
		return
	}
	layout := workspace.Layout()

	if database, err = db.Open(layout.CatalogPath(), log.Named("db")); err != nil {
		initErr = err
		return
	}
	assets := sqlite.NewAssetRepository(database)
	mergeJobs := sqlite.NewMergeJobRepository(database)
	stores := arraystore.NewSet(layout.ArraysDir, log.Named("arraystore"))

	productFetcher, err := products.NewFetcher(layout.PrideDir(), cfg.Products.Mirrors, cfg.Products.Timeout(), log.Named("products"))
	if err != nil {
		initErr = err
		return
	}
	solver := pride.NewSolver(layout.PrideDir(), pride.Options{
		Binary:          cfg.Pride.Binary,
		Interval:        cfg.Pride.IntervalSeconds,
		System:          cfg.Pride.System,
		CutoffElevation: cfg.Pride.CutoffElevation,
		LooseEdit:       cfg.Pride.LooseEdit,
		Timeout:         cfg.Pride.Timeout(),
	}, log.Named("pride"))
	registry := parsers.NewRegistry(parsers.Timing{
		TriggerDelay:      hw.TriggerDelay,
		TATUnitsPerSecond: hw.TATUnitsPerSecond,
	}, log.Named("parsers"))
	fetcher := archive.NewFetcher(cfg.Archive.Timeout(), log.Named("archive"))

	// Application layer
	executor := app.NewEffectExecutor(assets, stores, log.Named("effects"))
	deps := app.StageDeps{
		Assets:    assets,
		Stores:    stores,
		Parsers:   registry,
		Workspace: workspace,
		Rinex:     rinex.NewWriter(log.Named("rinex")),
		Products:  productFetcher,
		Solver:    solver,
		Log:       log.Named("stages"),
	}
	settings := stageSettings(cfg)

	catalogService = app.NewCatalogService(assets, workspace, log.Named("catalog"))
	ingestService = app.NewIngestService(catalogService, assets, workspace, fetcher,
		cfg.Archive.DownloadTypes(), cfg.Archive.Concurrency, log.Named("ingest"))
	pipelineService = app.NewPipelineService(app.NewStages(deps, settings),
		mergeJobs, stores, workspace, executor, settings, logs)
	storeService = app.NewStoreService(stores, productFetcher)
}

func stageSettings(c *config.PipelineConfig) app.StageSettings {
	stages := map[pipeline.Name]config.StageConfig{
		pipeline.StageNovatel:  c.Novatel,
		pipeline.StageRinex:    c.Rinex.StageConfig,
		pipeline.StagePride:    c.Pride.StageConfig,
		pipeline.StageKin:      c.Kin,
		pipeline.StageAcoustic: c.Acoustic,
		pipeline.StageFusion:   c.Fusion.StageConfig,
	}
	s := app.StageSettings{
		Workers:       make(map[pipeline.Name]int, len(stages)),
		Override:      make(map[pipeline.Name]bool, len(stages)),
		RinexInterval: time.Duration(c.Rinex.IntervalSeconds * float64(time.Second)),
		RinexYear:     c.Rinex.Year,
		Fusion:        c.Fusion.Engine(),
	}
	for name, sc := range stages {
		s.Workers[name] = c.WorkersFor(sc)
		s.Override[name] = sc.Override
	}
	return s
}

// Close releases the catalog connection and flushes the logger.
func Close() error {
	var errs []error
	if database != nil {
		errs = append(errs, database.Close())
	}
	if logs != nil {
		_ = logs.Logger().Sync()
	}
	return errors.Join(errs...)
}

// CatalogAdapter returns a new CatalogAdapter writing to out.
// Each call creates a new adapter (adapters are stateless translators).
func CatalogAdapter(out io.Writer) (*cliadapter.CatalogAdapter, error) {
	once.Do(initServices)
	if initErr != nil {
		return nil, initErr
	}
	return cliadapter.NewCatalogAdapter(catalogService, out), nil
}

// PipelineAdapter returns a new PipelineAdapter writing to out.
func PipelineAdapter(out io.Writer) (*cliadapter.PipelineAdapter, error) {
	once.Do(initServices)
	if initErr != nil {
		return nil, initErr
	}
	return cliadapter.NewPipelineAdapter(pipelineService, ingestService, storeService, out), nil
}
