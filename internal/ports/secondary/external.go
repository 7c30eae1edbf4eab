package secondary

import (
	"context"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

// Parsed is the output of decoding one raw file. Kinds a parser does not
// produce stay nil.
type Parsed struct {
	Observables          []*rows.Observable
	SecondaryObservables []*rows.Observable
	IMU                  []*rows.IMUPosition
	Positions            []*rows.Position
	Shots                []*rows.Shot
	Acoustic             []*rows.Acoustic
}

// Empty reports whether nothing was decoded.
func (p *Parsed) Empty() bool {
	return p == nil || len(p.Observables)+len(p.SecondaryObservables)+len(p.IMU)+len(p.Positions)+len(p.Shots)+len(p.Acoustic) == 0
}

// Parser decodes one cataloged file. A nil result with a nil error means the
// file carries nothing usable.
type Parser func(ctx context.Context, rec *asset.Record) (*Parsed, error)

// ParserRegistry is the dispatch table from asset type to parser.
type ParserRegistry interface {
	Lookup(t asset.Type) (Parser, bool)
}

// SolveRequest describes one PPP solve of a daily RINEX file.
type SolveRequest struct {
	RinexPath string
	Site      string
	Day       time.Time
	OutputDir string
	Products  *ProductSet
}

// SolveResult locates the solver outputs after they were moved to OutputDir.
type SolveResult struct {
	KinPath string
	ResPath string
}

// PPPSolver runs the external kinematic PPP solver.
type PPPSolver interface {
	Solve(ctx context.Context, req SolveRequest) (*SolveResult, error)
}

// ProductSet locates the GNSS orbit/clock products for one day.
type ProductSet struct {
	Day        time.Time
	Files      map[string]string // product kind -> local path
	ConfigFile string
}

// ProductFetcher resolves daily GNSS products, downloading when missing.
type ProductFetcher interface {
	Fetch(ctx context.Context, day time.Time) (*ProductSet, error)
}

// RinexRequest describes one daily RINEX observation file.
type RinexRequest struct {
	Site      string
	Day       time.Time
	OutputDir string
	Interval  time.Duration
}

// RinexFile is a written RINEX file and the span it covers.
type RinexFile struct {
	Path   string
	Start  time.Time
	End    time.Time
	Epochs int
}

// RinexWriter writes observables as RINEX.
type RinexWriter interface {
	WriteDay(ctx context.Context, obs []*rows.Observable, req RinexRequest) (*RinexFile, error)
}

// ArchiveFetcher downloads remote files.
type ArchiveFetcher interface {
	// Fetch downloads uri into destDir and returns the local path.
	Fetch(ctx context.Context, uri string, destDir string) (string, error)
}
