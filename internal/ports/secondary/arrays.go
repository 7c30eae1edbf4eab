package secondary

import (
	"context"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

// RowStore is one station's time-partitioned store of a single row kind.
type RowStore[R rows.Row] interface {
	// WriteRows validates and appends a batch, returning the rows written.
	// An invalid batch writes nothing and returns a *rows.ValidationError.
	WriteRows(ctx context.Context, batch []R) (int, error)

	// ReadRange returns rows from start through the day after end's day,
	// sorted by time, then key.
	ReadRange(ctx context.Context, start, end time.Time) ([]R, error)

	// UniqueDates returns the sorted days holding data.
	UniqueDates(ctx context.Context) ([]time.Time, error)

	// Consolidate merges each day's fragments into one.
	Consolidate(ctx context.Context) error

	// DeleteRange removes the days in [start, end].
	DeleteRange(ctx context.Context, start, end time.Time) error

	// ReplaceRange swaps the days in [start, end] for batch. Old data is
	// removed only once the new rows are stored.
	ReplaceRange(ctx context.Context, start, end time.Time, batch []R) (int, error)

	// Path returns the store's root directory.
	Path() string
}

// ArrayStores resolves a station's stores.
type ArrayStores interface {
	Acoustic(s asset.Scope) RowStore[*rows.Acoustic]
	Positions(s asset.Scope) RowStore[*rows.Position]
	IMU(s asset.Scope) RowStore[*rows.IMUPosition]
	ShotsPre(s asset.Scope) RowStore[*rows.Shot]
	Shots(s asset.Scope) RowStore[*rows.Shot]
	Observables(s asset.Scope, secondary bool) RowStore[*rows.Observable]

	// ConsolidateAll consolidates every store of the station, serially.
	ConsolidateAll(ctx context.Context, s asset.Scope) error
}
