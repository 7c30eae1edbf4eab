// Package effects defines the writes a pipeline stage wants applied, as data.
// Stages compute effects concurrently; the shell applies them serially.
package effects

import (
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

// Effect is the base interface for all effects.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// WriteRowsEffect appends a validated batch to a station's array store.
// Rows holds a typed slice matching Kind (for example []*rows.Shot).
type WriteRowsEffect struct {
	Scope asset.Scope
	Kind  rows.Kind
	Rows  any
}

func (e WriteRowsEffect) EffectType() string { return "write_rows" }

// ReplaceRangeEffect swaps a station store's days in [Start, End] for Rows.
// The old days survive a failed write.
type ReplaceRangeEffect struct {
	Scope asset.Scope
	Kind  rows.Kind
	Start time.Time
	End   time.Time
	Rows  any
}

func (e ReplaceRangeEffect) EffectType() string { return "replace_range" }

// AddAssetEffect registers a derived asset. A duplicate storage reference
// is not an error.
type AddAssetEffect struct {
	Record *asset.Record
}

func (e AddAssetEffect) EffectType() string { return "add_asset" }

// MarkProcessedEffect flips an asset's processed flag.
type MarkProcessedEffect struct {
	AssetID int64
}

func (e MarkProcessedEffect) EffectType() string { return "mark_processed" }

// LogEffect represents a logging operation.
type LogEffect struct {
	Level   string
	Message string
	Fields  map[string]any
}

func (e LogEffect) EffectType() string { return "log" }

// CompositeEffect holds multiple effects to be executed in sequence.
type CompositeEffect struct {
	Effects []Effect
}

func (e CompositeEffect) EffectType() string { return "composite" }

// NoEffect represents an operation that produces no side effects.
type NoEffect struct{}

func (e NoEffect) EffectType() string { return "none" }

// CountRows returns how many rows the write and replace effects in effs carry.
func CountRows(effs []Effect) int {
	n := 0
	for _, e := range effs {
		switch t := e.(type) {
		case WriteRowsEffect:
			n += rowLen(t.Rows)
		case ReplaceRangeEffect:
			n += rowLen(t.Rows)
		case CompositeEffect:
			n += CountRows(t.Effects)
		}
	}
	return n
}

func rowLen(v any) int {
	switch r := v.(type) {
	case []*rows.Acoustic:
		return len(r)
	case []*rows.Position:
		return len(r)
	case []*rows.IMUPosition:
		return len(r)
	case []*rows.Shot:
		return len(r)
	case []*rows.Observable:
		return len(r)
	}
	return 0
}
