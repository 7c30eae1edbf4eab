package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sfg/internal/core/asset"
)

func TestClassify(t *testing.T) {
	tests := map[string]asset.Type{
		"/raw/NCC10010.24O":                  asset.TypeRinex,
		"/raw/NCC1_2024_153.DFOP00.raw":      asset.TypeDFOP00,
		"/raw/329653_002_20240601_NOV000.bin": asset.TypeNovatel000,
		"/raw/329653_002_20240601_NOV770.raw": asset.TypeNovatel770,
		"/raw/bcnovatel_20240601.txt":        asset.TypeNovatel,
		"/raw/INSPVAA_log.txt":               asset.TypeNovatel,
		"/raw/bcsonardyne_20240601.txt":      asset.TypeSonardyne,
		"/intermediate/NCC1_2024153.kin":     asset.TypeKin,
		"/intermediate/NCC1_2024153.res":     asset.TypeKinResiduals,
		"/meta/lever_arms":                   asset.TypeLeverArm,
		"/meta/NCC1.master":                  asset.TypeMaster,
		"/raw/2024_A_1126.pin":               asset.TypeQCPin,
		"/raw/novatel_2024.pin":              asset.TypeNovatelPin,
		"/raw/CTD_cast1.cnv":                 asset.TypeCTD,
		"/raw/svpavg_01.txt":                 asset.TypeSeabird,
	}
	for path, want := range tests {
		got, ok := Classify(path)
		if assert.True(t, ok, path) {
			assert.Equal(t, want, got, path)
		}
	}

	_, ok := Classify("/raw/notes.md")
	assert.False(t, ok)
}

func TestCampaignYear(t *testing.T) {
	y, err := CampaignYear("2024_A_1126")
	require.NoError(t, err)
	assert.Equal(t, 2024, y)

	_, err = CampaignYear("A_2024")
	assert.ErrorIs(t, err, asset.ErrConfig)
}

func TestRinexName(t *testing.T) {
	assert.Equal(t, "NCC101530.24O", RinexName("ncc1", 2024, 153))
	assert.Equal(t, "NTH100050.25O", RinexName("NTH1", 2025, 5))
}
