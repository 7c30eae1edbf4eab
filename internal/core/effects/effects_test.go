package effects

import (
	"testing"

	"github.com/example/sfg/internal/core/rows"
)

func TestCountRows(t *testing.T) {
	effs := []Effect{
		WriteRowsEffect{Kind: rows.KindShot, Rows: []*rows.Shot{{}, {}}},
		MarkProcessedEffect{AssetID: 1},
		CompositeEffect{Effects: []Effect{
			WriteRowsEffect{Kind: rows.KindPosition, Rows: []*rows.Position{{}}},
			NoEffect{},
		}},
		ReplaceRangeEffect{Kind: rows.KindShot, Rows: []*rows.Shot{{}}},
	}
	if got := CountRows(effs); got != 4 {
		t.Errorf("CountRows() = %d, want 4", got)
	}
}

func TestEffectTypes(t *testing.T) {
	tests := []struct {
		eff  Effect
		want string
	}{
		{WriteRowsEffect{}, "write_rows"},
		{ReplaceRangeEffect{}, "replace_range"},
		{AddAssetEffect{}, "add_asset"},
		{MarkProcessedEffect{}, "mark_processed"},
		{LogEffect{}, "log"},
		{CompositeEffect{}, "composite"},
		{NoEffect{}, "none"},
	}
	for _, tt := range tests {
		if got := tt.eff.EffectType(); got != tt.want {
			t.Errorf("%T.EffectType() = %q, want %q", tt.eff, got, tt.want)
		}
	}
}
