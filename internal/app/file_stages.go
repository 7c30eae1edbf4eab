package app

import (
	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

// NewNovatelStage decodes GNSS receiver logs into the observable and IMU
// stores.
func NewNovatelStage(deps StageDeps) Stage {
	return &fileStage{
		name:      pipeline.StageNovatel,
		types:     []asset.Type{asset.TypeNovatel770, asset.TypeNovatel000, asset.TypeNovatel},
		keyParent: asset.TypeNovatel,
		keyChild:  asset.TypeGNSSObsTDB,
		deps:      deps,
		rows: func(scope asset.Scope, p *secondary.Parsed) []effects.Effect {
			var out []effects.Effect
			if len(p.Observables) > 0 {
				out = append(out, effects.WriteRowsEffect{Scope: scope, Kind: rows.KindObservable, Rows: p.Observables})
			}
			if len(p.SecondaryObservables) > 0 {
				out = append(out, effects.WriteRowsEffect{Scope: scope, Kind: rows.KindObservableSecondary, Rows: p.SecondaryObservables})
			}
			if len(p.IMU) > 0 {
				out = append(out, effects.WriteRowsEffect{Scope: scope, Kind: rows.KindIMUPosition, Rows: p.IMU})
			}
			return out
		},
	}
}

// NewKinStage loads solver kin files into the position store.
func NewKinStage(deps StageDeps) Stage {
	return &fileStage{
		name:      pipeline.StageKin,
		types:     []asset.Type{asset.TypeKin},
		keyParent: asset.TypeKin,
		keyChild:  asset.TypeKinPosition,
		deps:      deps,
		rows: func(scope asset.Scope, p *secondary.Parsed) []effects.Effect {
			if len(p.Positions) == 0 {
				return nil
			}
			return []effects.Effect{effects.WriteRowsEffect{Scope: scope, Kind: rows.KindPosition, Rows: p.Positions}}
		},
	}
}

// NewAcousticStage decodes acoustic logs into pre-fusion shot data and the
// acoustic store.
func NewAcousticStage(deps StageDeps) Stage {
	return &fileStage{
		name:      pipeline.StageAcoustic,
		types:     []asset.Type{asset.TypeDFOP00, asset.TypeQCPin},
		keyParent: asset.TypeDFOP00,
		keyChild:  asset.TypeShotData,
		deps:      deps,
		rows: func(scope asset.Scope, p *secondary.Parsed) []effects.Effect {
			var out []effects.Effect
			if len(p.Shots) > 0 {
				out = append(out, effects.WriteRowsEffect{Scope: scope, Kind: rows.KindShotPre, Rows: p.Shots})
			}
			if len(p.Acoustic) > 0 {
				out = append(out, effects.WriteRowsEffect{Scope: scope, Kind: rows.KindAcoustic, Rows: p.Acoustic})
			}
			return out
		},
	}
}
