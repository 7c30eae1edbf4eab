package primary

import (
	"context"
	"io"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

// StoreService defines the primary port for array-store maintenance.
type StoreService interface {
	// Dates returns the days holding data in one store.
	Dates(ctx context.Context, scope asset.Scope, kind rows.Kind) ([]time.Time, error)

	// DeleteRange removes one store's days in [start, end].
	DeleteRange(ctx context.Context, scope asset.Scope, kind rows.Kind, start, end time.Time) error

	// Consolidate merges fragments in every store of the station.
	Consolidate(ctx context.Context, scope asset.Scope) error

	// ExportShots writes final shot data in [start, end] as CSV.
	ExportShots(ctx context.Context, scope asset.Scope, start, end time.Time, w io.Writer) (int, error)

	// FetchProducts resolves GNSS products for a day.
	FetchProducts(ctx context.Context, day time.Time) (*secondary.ProductSet, error)
}
