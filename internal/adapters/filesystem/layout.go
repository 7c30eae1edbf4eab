// Package filesystem contains filesystem-based adapter implementations.
package filesystem

import (
	"path/filepath"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

// CatalogFile is the catalog database name under the data root.
const CatalogFile = "catalog.sqlite"

// Layout resolves paths under one top-level data directory:
//
//	<root>/catalog.sqlite
//	<root>/Pride/<year>/<doy>/
//	<root>/<network>/<station>/arrays/<kind>/
//	<root>/<network>/<station>/<campaign>/{raw,intermediate,processed,logs,qc,metadata}
type Layout struct {
	Root string
}

// StationDir holds the per-station array stores.
type StationDir struct {
	Path   string
	Arrays string
}

// ArrayPath returns the directory of one store kind.
func (d StationDir) ArrayPath(k rows.Kind) string {
	return filepath.Join(d.Arrays, string(k))
}

// CampaignDir holds one campaign's file tree.
type CampaignDir struct {
	Path         string
	Raw          string
	Intermediate string
	Processed    string
	Logs         string
	QC           string
	Metadata     string
}

func (l Layout) CatalogPath() string { return filepath.Join(l.Root, CatalogFile) }

func (l Layout) PrideDir() string { return filepath.Join(l.Root, "Pride") }

func (l Layout) Network(n string) string { return filepath.Join(l.Root, n) }

func (l Layout) Station(n, s string) StationDir {
	p := filepath.Join(l.Network(n), s)
	return StationDir{Path: p, Arrays: filepath.Join(p, "arrays")}
}

func (l Layout) Campaign(n, s, c string) CampaignDir {
	p := filepath.Join(l.Station(n, s).Path, c)
	return CampaignDir{
		Path:         p,
		Raw:          filepath.Join(p, "raw"),
		Intermediate: filepath.Join(p, "intermediate"),
		Processed:    filepath.Join(p, "processed"),
		Logs:         filepath.Join(p, "logs"),
		QC:           filepath.Join(p, "qc"),
		Metadata:     filepath.Join(p, "metadata"),
	}
}

// ArraysDir returns the station arrays directory of a scope.
func (l Layout) ArraysDir(s asset.Scope) string {
	return l.Station(s.Network, s.Station).Arrays
}

func (d CampaignDir) all() []string {
	return []string{d.Raw, d.Intermediate, d.Processed, d.Logs, d.QC, d.Metadata}
}
