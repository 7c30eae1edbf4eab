package arraystore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

// Set resolves the stores of each station. Stores are cached so that every
// caller of one station shares the same lock.
type Set struct {
	arraysDir func(asset.Scope) string
	log       *zap.Logger

	mu     sync.Mutex
	stores map[string]any
}

// NewSet creates a store set. arraysDir maps a scope to its station's arrays
// directory.
func NewSet(arraysDir func(asset.Scope) string, log *zap.Logger) *Set {
	if log == nil {
		log = zap.NewNop()
	}
	return &Set{
		arraysDir: arraysDir,
		log:       log,
		stores:    make(map[string]any),
	}
}

func lookup[R rows.Row](set *Set, s asset.Scope, kind rows.Kind, newRow func() R) *Store[R] {
	root := filepath.Join(set.arraysDir(s), string(kind))

	set.mu.Lock()
	defer set.mu.Unlock()
	if st, ok := set.stores[root]; ok {
		return st.(*Store[R])
	}
	st := New(root, kind, newRow, set.log.With(zap.String("station", s.Station)))
	set.stores[root] = st
	return st
}

func (set *Set) Acoustic(s asset.Scope) secondary.RowStore[*rows.Acoustic] {
	return lookup(set, s, rows.KindAcoustic, func() *rows.Acoustic { return &rows.Acoustic{} })
}

func (set *Set) Positions(s asset.Scope) secondary.RowStore[*rows.Position] {
	return lookup(set, s, rows.KindPosition, func() *rows.Position { return &rows.Position{} })
}

func (set *Set) IMU(s asset.Scope) secondary.RowStore[*rows.IMUPosition] {
	return lookup(set, s, rows.KindIMUPosition, func() *rows.IMUPosition { return &rows.IMUPosition{} })
}

func (set *Set) ShotsPre(s asset.Scope) secondary.RowStore[*rows.Shot] {
	return lookup(set, s, rows.KindShotPre, func() *rows.Shot { return &rows.Shot{} })
}

func (set *Set) Shots(s asset.Scope) secondary.RowStore[*rows.Shot] {
	return lookup(set, s, rows.KindShot, func() *rows.Shot { return &rows.Shot{} })
}

func (set *Set) Observables(s asset.Scope, secondaryAntenna bool) secondary.RowStore[*rows.Observable] {
	kind := rows.KindObservable
	if secondaryAntenna {
		kind = rows.KindObservableSecondary
	}
	return lookup(set, s, kind, func() *rows.Observable { return &rows.Observable{} })
}

// ConsolidateAll consolidates every store of the station, one after another.
func (set *Set) ConsolidateAll(ctx context.Context, s asset.Scope) error {
	consolidators := []interface {
		Consolidate(context.Context) error
		Path() string
	}{
		set.Acoustic(s), set.Positions(s), set.IMU(s),
		set.ShotsPre(s), set.Shots(s),
		set.Observables(s, false), set.Observables(s, true),
	}
	for _, c := range consolidators {
		if err := c.Consolidate(ctx); err != nil {
			return fmt.Errorf("failed to consolidate %s: %w", c.Path(), err)
		}
	}
	return nil
}

var _ secondary.ArrayStores = (*Set)(nil)
