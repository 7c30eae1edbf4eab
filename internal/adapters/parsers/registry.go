// Package parsers decodes raw and solver files into array-store rows.
package parsers

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

// Timing holds the acoustic timing constants of one hardware generation.
type Timing struct {
	TriggerDelay      float64
	TATUnitsPerSecond float64
}

// Registry implements secondary.ParserRegistry.
type Registry struct {
	timing  Timing
	log     *zap.Logger
	parsers map[asset.Type]secondary.Parser
}

var _ secondary.ParserRegistry = (*Registry)(nil)

// NewRegistry creates the dispatch table. Binary novatel logs have no entry.
func NewRegistry(timing Timing, log *zap.Logger) *Registry {
	r := &Registry{timing: timing, log: log}
	r.parsers = map[asset.Type]secondary.Parser{
		asset.TypeDFOP00:  r.acoustic(ParseDFOP00),
		asset.TypeQCPin:   r.acoustic(ParseQCPin),
		asset.TypeKin:     r.kin,
		asset.TypeNovatel: r.novatel,
	}
	return r
}

// Lookup returns the parser registered for t.
func (r *Registry) Lookup(t asset.Type) (secondary.Parser, bool) {
	p, ok := r.parsers[t]
	return p, ok
}

// Types returns the registered asset types, sorted.
func (r *Registry) Types() []asset.Type {
	out := make([]asset.Type, 0, len(r.parsers))
	for t := range r.parsers {
		out = append(out, t)
	}
	asset.SortTypes(out)
	return out
}

type acousticFunc func(ctx context.Context, path string, profile Timing) ([]*rows.Shot, []*rows.Acoustic, error)

func (r *Registry) acoustic(fn acousticFunc) secondary.Parser {
	return func(ctx context.Context, rec *asset.Record) (*secondary.Parsed, error) {
		shots, acoustic, err := fn(ctx, rec.LocalPath, r.timing)
		if err != nil {
			return nil, err
		}
		out := &secondary.Parsed{Shots: shots, Acoustic: acoustic}
		if out.Empty() {
			return nil, nil
		}
		return out, nil
	}
}

func (r *Registry) kin(ctx context.Context, rec *asset.Record) (*secondary.Parsed, error) {
	positions, err := ParseKin(ctx, rec.LocalPath)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}

	res := ResidualPath(rec.LocalPath)
	if wrms, err := ReadWRMS(res); err == nil {
		n := AttachWRMS(positions, wrms)
		r.log.Debug("attached wrms", zap.String("path", res), zap.Int("epochs", n))
	} else {
		r.log.Debug("no residuals for kin file", zap.String("path", res), zap.Error(err))
	}
	return &secondary.Parsed{Positions: positions}, nil
}

func (r *Registry) novatel(ctx context.Context, rec *asset.Record) (*secondary.Parsed, error) {
	obs, imu, err := ParseNovatelASCII(ctx, rec.LocalPath)
	if err != nil {
		return nil, err
	}
	out := &secondary.Parsed{Observables: obs, IMU: imu}
	if out.Empty() {
		return nil, nil
	}
	return out, nil
}

// ResidualPath returns the res file written beside a kin file.
func ResidualPath(kinPath string) string {
	return strings.TrimSuffix(kinPath, filepath.Ext(kinPath)) + ".res"
}
