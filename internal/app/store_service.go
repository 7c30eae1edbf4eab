package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/primary"
	"github.com/example/sfg/internal/ports/secondary"
)

// ShotColumns is the CSV header of exported shot data.
var ShotColumns = []string{
	"MT", "TT", "ST",
	"ant_e0", "ant_n0", "ant_u0", "head0", "pitch0", "roll0",
	"RT",
	"ant_e1", "ant_n1", "ant_u1", "head1", "pitch1", "roll1",
	"dbv", "xc", "snr", "tat", "isUpdated",
}

// StoreServiceImpl implements the StoreService interface.
type StoreServiceImpl struct {
	stores   secondary.ArrayStores
	products secondary.ProductFetcher
}

var _ primary.StoreService = (*StoreServiceImpl)(nil)

// NewStoreService creates a new StoreService with injected dependencies.
func NewStoreService(stores secondary.ArrayStores, products secondary.ProductFetcher) *StoreServiceImpl {
	return &StoreServiceImpl{stores: stores, products: products}
}

// Dates returns the days holding data in one store.
func (s *StoreServiceImpl) Dates(ctx context.Context, scope asset.Scope, kind rows.Kind) ([]time.Time, error) {
	switch kind {
	case rows.KindAcoustic:
		return s.stores.Acoustic(scope).UniqueDates(ctx)
	case rows.KindPosition:
		return s.stores.Positions(scope).UniqueDates(ctx)
	case rows.KindIMUPosition:
		return s.stores.IMU(scope).UniqueDates(ctx)
	case rows.KindShotPre:
		return s.stores.ShotsPre(scope).UniqueDates(ctx)
	case rows.KindShot:
		return s.stores.Shots(scope).UniqueDates(ctx)
	case rows.KindObservable, rows.KindObservableSecondary:
		return s.stores.Observables(scope, kind == rows.KindObservableSecondary).UniqueDates(ctx)
	}
	return nil, fmt.Errorf("%w: unknown store kind %q", asset.ErrConfig, kind)
}

// DeleteRange removes one store's days in [start, end].
func (s *StoreServiceImpl) DeleteRange(ctx context.Context, scope asset.Scope, kind rows.Kind, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", asset.ErrConfig, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	switch kind {
	case rows.KindAcoustic:
		return s.stores.Acoustic(scope).DeleteRange(ctx, start, end)
	case rows.KindPosition:
		return s.stores.Positions(scope).DeleteRange(ctx, start, end)
	case rows.KindIMUPosition:
		return s.stores.IMU(scope).DeleteRange(ctx, start, end)
	case rows.KindShotPre:
		return s.stores.ShotsPre(scope).DeleteRange(ctx, start, end)
	case rows.KindShot:
		return s.stores.Shots(scope).DeleteRange(ctx, start, end)
	case rows.KindObservable, rows.KindObservableSecondary:
		return s.stores.Observables(scope, kind == rows.KindObservableSecondary).DeleteRange(ctx, start, end)
	}
	return fmt.Errorf("%w: unknown store kind %q", asset.ErrConfig, kind)
}

// Consolidate merges fragments in every store of the station.
func (s *StoreServiceImpl) Consolidate(ctx context.Context, scope asset.Scope) error {
	return s.stores.ConsolidateAll(ctx, scope)
}

// ExportShots writes the final shots pinged on days start..end as CSV.
func (s *StoreServiceImpl) ExportShots(ctx context.Context, scope asset.Scope, start, end time.Time, w io.Writer) (int, error) {
	first, last := rows.Day(start), rows.Day(end)
	if last.Before(first) {
		return 0, fmt.Errorf("%w: end %s before start %s", asset.ErrConfig, last.Format(time.DateOnly), first.Format(time.DateOnly))
	}
	shots, err := s.stores.Shots(scope).ReadRange(ctx, first, last)
	if err != nil {
		return 0, fmt.Errorf("failed to read shots: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ShotColumns); err != nil {
		return 0, err
	}
	limit := last.AddDate(0, 0, 1)
	n := 0
	for _, sh := range shots {
		if sh.Time().Before(first) || !sh.Time().Before(limit) {
			continue
		}
		if err := cw.Write(shotRecord(sh)); err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	return n, cw.Error()
}

func shotRecord(s *rows.Shot) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		s.TransponderID, f(s.TT), f(s.PingTime),
		f(s.East0), f(s.North0), f(s.Up0), f(s.Head0), f(s.Pitch0), f(s.Roll0),
		f(s.ReturnTime),
		f(s.East1), f(s.North1), f(s.Up1), f(s.Head1), f(s.Pitch1), f(s.Roll1),
		f(s.DBV), f(s.XC), f(rows.Value(s.SNR)), f(rows.Value(s.TAT)), strconv.FormatBool(s.IsUpdated),
	}
}

// FetchProducts resolves GNSS products for a day.
func (s *StoreServiceImpl) FetchProducts(ctx context.Context, day time.Time) (*secondary.ProductSet, error) {
	return s.products.Fetch(ctx, rows.Day(day))
}
