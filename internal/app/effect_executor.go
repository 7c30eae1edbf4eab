// Package app contains the application layer - service implementations and effect execution.
package app

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

// EffectExecutor interprets and executes effects.
// This is the "Imperative Shell" - the only place stage writes happen.
type EffectExecutor interface {
	Execute(ctx context.Context, effs []effects.Effect) error
}

// DefaultEffectExecutor applies effects to the catalog and array stores.
type DefaultEffectExecutor struct {
	assets secondary.AssetRepository
	stores secondary.ArrayStores
	log    *zap.Logger
}

// NewEffectExecutor creates a new DefaultEffectExecutor.
func NewEffectExecutor(assets secondary.AssetRepository, stores secondary.ArrayStores, log *zap.Logger) *DefaultEffectExecutor {
	return &DefaultEffectExecutor{assets: assets, stores: stores, log: log}
}

// Execute processes a slice of effects, executing each in sequence. Every row
// batch is validated before anything is applied, so an invalid batch leaves
// the stores and catalog untouched. Execution stops at the first failure.
func (e *DefaultEffectExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	if err := validateEffects(effs); err != nil {
		return err
	}
	return e.apply(ctx, effs)
}

func (e *DefaultEffectExecutor) apply(ctx context.Context, effs []effects.Effect) error {
	for _, eff := range effs {
		if err := e.executeOne(ctx, eff); err != nil {
			return fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err)
		}
	}
	return nil
}

func (e *DefaultEffectExecutor) executeOne(ctx context.Context, eff effects.Effect) error {
	switch typed := eff.(type) {
	case effects.WriteRowsEffect:
		return e.writeRows(ctx, typed)
	case effects.ReplaceRangeEffect:
		return e.replaceRange(ctx, typed)
	case effects.AddAssetEffect:
		_, err := e.assets.AddOrUpdate(ctx, typed.Record)
		return err
	case effects.MarkProcessedEffect:
		return e.markProcessed(ctx, typed)
	case effects.CompositeEffect:
		return e.apply(ctx, typed.Effects)
	case effects.NoEffect:
		return nil
	case effects.LogEffect:
		e.log.Info(typed.Message, logFields(typed.Fields)...)
		return nil
	default:
		return fmt.Errorf("unknown effect type: %T", eff)
	}
}

func (e *DefaultEffectExecutor) writeRows(ctx context.Context, eff effects.WriteRowsEffect) error {
	var err error
	switch batch := eff.Rows.(type) {
	case []*rows.Acoustic:
		_, err = e.stores.Acoustic(eff.Scope).WriteRows(ctx, batch)
	case []*rows.Position:
		_, err = e.stores.Positions(eff.Scope).WriteRows(ctx, batch)
	case []*rows.IMUPosition:
		_, err = e.stores.IMU(eff.Scope).WriteRows(ctx, batch)
	case []*rows.Shot:
		switch eff.Kind {
		case rows.KindShotPre:
			_, err = e.stores.ShotsPre(eff.Scope).WriteRows(ctx, batch)
		case rows.KindShot:
			_, err = e.stores.Shots(eff.Scope).WriteRows(ctx, batch)
		default:
			return fmt.Errorf("shot rows cannot go to %s", eff.Kind)
		}
	case []*rows.Observable:
		_, err = e.stores.Observables(eff.Scope, eff.Kind == rows.KindObservableSecondary).WriteRows(ctx, batch)
	default:
		return fmt.Errorf("unsupported row batch %T for %s", eff.Rows, eff.Kind)
	}
	return err
}

func (e *DefaultEffectExecutor) replaceRange(ctx context.Context, eff effects.ReplaceRangeEffect) error {
	var err error
	switch batch := eff.Rows.(type) {
	case []*rows.Acoustic:
		_, err = e.stores.Acoustic(eff.Scope).ReplaceRange(ctx, eff.Start, eff.End, batch)
	case []*rows.Position:
		_, err = e.stores.Positions(eff.Scope).ReplaceRange(ctx, eff.Start, eff.End, batch)
	case []*rows.IMUPosition:
		_, err = e.stores.IMU(eff.Scope).ReplaceRange(ctx, eff.Start, eff.End, batch)
	case []*rows.Shot:
		switch eff.Kind {
		case rows.KindShotPre:
			_, err = e.stores.ShotsPre(eff.Scope).ReplaceRange(ctx, eff.Start, eff.End, batch)
		case rows.KindShot:
			_, err = e.stores.Shots(eff.Scope).ReplaceRange(ctx, eff.Start, eff.End, batch)
		default:
			return fmt.Errorf("shot rows cannot go to %s", eff.Kind)
		}
	case []*rows.Observable:
		_, err = e.stores.Observables(eff.Scope, eff.Kind == rows.KindObservableSecondary).ReplaceRange(ctx, eff.Start, eff.End, batch)
	default:
		return fmt.Errorf("unsupported row batch %T for %s", eff.Rows, eff.Kind)
	}
	return err
}

func (e *DefaultEffectExecutor) markProcessed(ctx context.Context, eff effects.MarkProcessedEffect) error {
	rec, err := e.assets.GetByID(ctx, eff.AssetID)
	if err != nil {
		return err
	}
	if g := asset.CanMarkProcessed(rec); !g.Allowed {
		return g.Error()
	}
	if rec.Processed {
		return nil
	}
	rec.Processed = true
	return e.assets.Upsert(ctx, rec)
}

// validateEffects checks every row batch in effs up front.
func validateEffects(effs []effects.Effect) error {
	for _, eff := range effs {
		var err error
		switch typed := eff.(type) {
		case effects.WriteRowsEffect:
			err = validateRows(typed.Kind, typed.Rows)
		case effects.ReplaceRangeEffect:
			err = validateRows(typed.Kind, typed.Rows)
		case effects.CompositeEffect:
			err = validateEffects(typed.Effects)
		}
		if err != nil {
			return fmt.Errorf("failed to execute %s effect: %w", eff.EffectType(), err)
		}
	}
	return nil
}

func validateRows(kind rows.Kind, batch any) error {
	switch b := batch.(type) {
	case []*rows.Acoustic:
		return rows.ValidateBatch(kind, b)
	case []*rows.Position:
		return rows.ValidateBatch(kind, b)
	case []*rows.IMUPosition:
		return rows.ValidateBatch(kind, b)
	case []*rows.Shot:
		return rows.ValidateBatch(kind, b)
	case []*rows.Observable:
		return rows.ValidateBatch(kind, b)
	}
	return fmt.Errorf("unsupported row batch %T for %s", batch, kind)
}

func logFields(m map[string]any) []zap.Field {
	keys := sortedKeys(m)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, m[k]))
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
