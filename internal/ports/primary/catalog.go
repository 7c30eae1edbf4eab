// Package primary defines the primary ports (driving adapters) of the
// application: the services the CLI calls.
package primary

import (
	"context"

	"github.com/example/sfg/internal/core/asset"
)

// CatalogService defines the primary port for the asset catalog.
type CatalogService interface {
	// AddEntry registers one record. A duplicate storage reference returns
	// false with no error.
	AddEntry(ctx context.Context, rec *asset.Record) (bool, error)

	// AddEntries registers records one by one. Per-record failures are
	// logged and counted, never returned.
	AddEntries(ctx context.Context, recs []*asset.Record) AddReport

	// GetAssets lists records matching the query.
	GetAssets(ctx context.Context, q AssetQuery) ([]*asset.Record, error)

	// GetUnprocessed lists parents of parentType lacking a childType child.
	GetUnprocessed(ctx context.Context, scope asset.Scope, parentType, childType asset.Type, override bool) ([]*asset.Record, error)

	// Upsert updates a record in place.
	Upsert(ctx context.Context, rec *asset.Record) error

	// Counts returns the number of records per type in scope.
	Counts(ctx context.Context, scope asset.Scope) (map[asset.Type]int, error)

	// GarbageCollect removes local-only records whose file vanished.
	GarbageCollect(ctx context.Context) (*GCReport, error)

	// CheckLineage reports records whose parent does not resolve or is not
	// of an expected parent type.
	CheckLineage(ctx context.Context) ([]LineageIssue, error)
}

// AssetQuery filters catalog listings. Empty fields match everything.
type AssetQuery struct {
	Scope         asset.Scope
	Types         []asset.Type
	OnlyPending   bool
	OnlyProcessed bool
}

// AddReport tallies a batch registration.
type AddReport struct {
	Added      int
	Duplicates int
	Failed     int
}

// GCReport tallies a garbage collection pass.
type GCReport struct {
	Checked int
	Removed []*asset.Record
	// Held are vanished records kept because derived records still name
	// them as parent.
	Held []GCHold
}

// GCHold is a vanished record and the children that keep it in the catalog.
type GCHold struct {
	Record   *asset.Record
	Children []int64
}

// LineageIssue is one record whose parent is missing or of the wrong type.
// ParentType is empty when the parent does not resolve.
type LineageIssue struct {
	Record     *asset.Record
	ParentID   int64
	ParentType asset.Type
}

// Missing reports whether the parent does not resolve.
func (i LineageIssue) Missing() bool { return i.ParentType == "" }
