package parsers

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

var sv3 = Timing{TriggerDelay: 0.13, TATUnitsPerSecond: 1000}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const insBlock = `{"time":{"common":1717200000.0},"latitude":45.0,"longitude":-125.0,"hae":-30.0,"r":1.0,"p":2.0,"h":90.0}`

const dfop00Log = `{"event":"interrogation","time":{"common":1717200000.0},"observations":{"NOV_INS":` + insBlock + `}}
{"event":"range","time":{"common":1717200002.5},"range":{"cn":"IR5209","range":2.6,"tat":200,"diag":{"xc":[60],"dbv":[-20],"snr":[12]}},"observations":{"NOV_INS":` + insBlock + `}}
{"event":"range","time":{"common":1717200003.0},"range":{"cn":"IR5210","range":0,"tat":200,"diag":{}},"observations":{"NOV_INS":` + insBlock + `}}
{"event":"range","time":{"common":1717200003.5},"range":{"cn":"IR5211","range":3.1,"tat":100,"diag":{"xc":[55]}},"observations":{"GNSS":"ERR3"}}
`

func TestParseDFOP00(t *testing.T) {
	path := writeFile(t, "bcnvm_DFOP00.raw", dfop00Log)

	shots, acoustic, err := ParseDFOP00(context.Background(), path, sv3)
	require.NoError(t, err)
	require.Len(t, shots, 1, "zero range and unresolved pose are dropped")
	require.Len(t, acoustic, 1)

	s := shots[0]
	assert.Equal(t, "5209", s.TransponderID)
	assert.InDelta(t, 2.6-0.2-0.13, s.TT, 1e-9)
	assert.InDelta(t, 0.2, *s.TAT, 1e-9)
	assert.Equal(t, 90.0, s.Head0)
	assert.Equal(t, 60.0, s.XC)
	assert.Greater(t, s.ReturnTime, s.PingTime)
	assert.NoError(t, rows.ValidateBatch(rows.KindShot, shots))

	a := acoustic[0]
	assert.Equal(t, "5209", a.TransponderID)
	assert.InDelta(t, 0, a.PingTime, 1e-6)
	assert.InDelta(t, 2.5, a.ReturnTime, 1e-6)
	assert.NoError(t, rows.ValidateBatch(rows.KindAcoustic, acoustic))
}

func TestParseDFOP00_Malformed(t *testing.T) {
	path := writeFile(t, "bad_DFOP00.raw", "{not json\n")

	_, _, err := ParseDFOP00(context.Background(), path, sv3)
	assert.ErrorIs(t, err, asset.ErrParse)
}

func TestParseQCPin(t *testing.T) {
	pin := `{
 "interrogation": {"event":"interrogation","time":{"common":1717200000.0},"observations":{"NOV_INS":` + insBlock + `}},
 "5209": {"event":"range","time":{"common":1717200002.5},"range":{"cn":"IR5209","range":2.6,"tat":200,"diag":{"xc":[60]}},"observations":{"NOV_INS":` + insBlock + `}},
 "5210": {"event":"range","time":{"common":1717200002.8},"range":{"cn":"IR5210","range":2.9,"tat":200,"diag":{"xc":[61]}},"observations":{"NOV_INS":` + insBlock + `}}
}`
	path := writeFile(t, "site.pin", pin)

	shots, acoustic, err := ParseQCPin(context.Background(), path, sv3)
	require.NoError(t, err)
	require.Len(t, shots, 2)
	assert.Len(t, acoustic, 2)
	assert.Equal(t, "5209", shots[0].TransponderID)
	assert.Equal(t, "5210", shots[1].TransponderID)
}

const kinFile = `PRIDE PPPAR kinematic
 END OF HEADER
 Mjd      Sod    X Y Z Lat Lon H Nsat PDOP
60462   0.000  -2458000.100 -3500000.200 4490000.300  45.000000000 -125.000000000  -30.100  12  1.50
60462   1.000 * -2458000.200 -3500000.300 4490000.400  45.000000010 -125.000000010  -30.200  11  1.60
garbage line
`

func TestParseKin(t *testing.T) {
	path := writeFile(t, "NCC11530.kin", kinFile)

	got, err := ParseKin(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Add(-18 * time.Second)
	assert.True(t, got[0].Timestamp.Equal(want), "got %s", got[0].Timestamp)
	assert.Equal(t, -2458000.100, got[0].East)
	assert.Equal(t, 12, got[0].NumberOfSatellites)
	assert.Equal(t, 1.5, got[0].PDOP)
	assert.Equal(t, -30.2, got[1].Height)
}

func TestParseKin_NoHeader(t *testing.T) {
	path := writeFile(t, "empty.kin", "no header here\n")

	_, err := ParseKin(context.Background(), path)
	assert.ErrorIs(t, err, asset.ErrParse)
}

func TestReadWRMS(t *testing.T) {
	res := `TIM 2024  6  1  0  0  0.0000000
G01  0.002  0.5  1.0D+00
G02 -0.002  0.5  1.0D+00
TIM 2024  6  1  0  0  1.0000000
G01  0.003  0.5  4.0D+00
`
	path := writeFile(t, "NCC11530.res", res)

	wrms, err := ReadWRMS(path)
	require.NoError(t, err)
	require.Len(t, wrms, 2)

	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Add(-18 * time.Second)
	assert.InDelta(t, 2.0, wrms[t0.UnixMilli()], 1e-9)
	assert.InDelta(t, 3.0, wrms[t0.Add(time.Second).UnixMilli()], 1e-9)
}

func TestAttachWRMS(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pos := []*rows.Position{{Timestamp: t0}, {Timestamp: t0.Add(time.Second)}}

	n := AttachWRMS(pos, map[int64]float64{t0.UnixMilli(): 4.5, t0.Add(time.Hour).UnixMilli(): 1})
	assert.Equal(t, 1, n)
	assert.Equal(t, 4.5, pos[0].WRMS)
	assert.Zero(t, pos[1].WRMS)
}

const novatelLog = `#INSPVAA,COM1,0,73.5,FINESTEERING,2316,518418.000,02000020,18bc,16809;2316,518418.000000000,45.000000000,-125.000000000,-30.5,0.1,0.2,0.0,1.5,-2.0,270.0,INS_SOLUTION_GOOD*1a2b3c4d
#INSSTDEVA,COM1,0,73.5,FINESTEERING,2316,518418.000,02000020,18bc,16809;0.02,0.03,0.05,0.01,0.01,0.01,0.1,0.1,0.2,3,0,0,0*abcdef01
#RANGEA,COM1,0,73.5,FINESTEERING,2316,518418.000,02000020,5103,16809;2,5,0,23000000.100,0.05,-120000000.500,0.01,-1000.5,45.0,1200.0,08109c04,5,0,23000001.100,0.05,-93000000.500,0.01,-800.5,38.0,1000.0,01309c0b*deadbeef
garbage
`

func TestParseNovatelASCII(t *testing.T) {
	path := writeFile(t, "novatel_log.txt", novatelLog)

	obs, imu, err := ParseNovatelASCII(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, imu, 1)
	want := time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC).Add(2316*7*24*time.Hour + (518418-18)*time.Second)
	assert.True(t, imu[0].Timestamp.Equal(want))
	assert.Equal(t, 270.0, imu[0].Azimuth)
	require.NotNil(t, imu[0].LatitudeStd, "std attached to the matching epoch")
	assert.Equal(t, 0.02, *imu[0].LatitudeStd)
	assert.NoError(t, rows.ValidateBatch(rows.KindIMUPosition, imu))

	require.Len(t, obs, 2)
	assert.Equal(t, "G", obs[0].Sys)
	assert.Equal(t, 5, obs[0].Sat)
	assert.Equal(t, "1C", obs[0].Obs)
	assert.Equal(t, 120000000.5, obs[0].Phase)
	assert.Equal(t, "2W", obs[1].Obs)
	assert.Equal(t, want.UnixMilli(), obs[0].TimeMS)
	assert.NoError(t, rows.ValidateBatch(rows.KindObservable, obs))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(sv3, zap.NewNop())

	for _, typ := range []asset.Type{asset.TypeDFOP00, asset.TypeQCPin, asset.TypeKin, asset.TypeNovatel} {
		_, ok := reg.Lookup(typ)
		assert.True(t, ok, typ)
	}
	_, ok := reg.Lookup(asset.TypeNovatel770)
	assert.False(t, ok, "binary logs have no parser")

	dir := t.TempDir()
	kin := filepath.Join(dir, "NCC11530.kin")
	require.NoError(t, os.WriteFile(kin, []byte(kinFile), 0o644))
	require.NoError(t, os.WriteFile(ResidualPath(kin), []byte("TIM 2024  6  1  0  0  0.0\nG01 0.001 0.5 1.0D+00\n"), 0o644))

	p, _ := reg.Lookup(asset.TypeKin)
	parsed, err := p(context.Background(), &asset.Record{Type: asset.TypeKin, LocalPath: kin})
	require.NoError(t, err)
	require.Len(t, parsed.Positions, 2)
	assert.InDelta(t, 1.0, parsed.Positions[0].WRMS, 1e-9)
	assert.False(t, math.IsNaN(parsed.Positions[1].WRMS))
}
