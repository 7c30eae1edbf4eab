package rinex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func obsAt(t time.Time, sys string, sat int, code string) *rows.Observable {
	return &rows.Observable{
		TimeMS: t.UnixMilli(), Sys: sys, Sat: sat, Obs: code,
		Range: 2.3e7, Phase: 1.2e8, Doppler: -1000, SNR: 45,
	}
}

func TestWriteDay(t *testing.T) {
	dir := t.TempDir()
	obs := []*rows.Observable{
		obsAt(day.Add(30*time.Second), "G", 5, "1C"),
		obsAt(day.Add(30*time.Second), "G", 5, "2W"),
		obsAt(day.Add(30*time.Second), "E", 11, "1C"),
		obsAt(day.Add(30500*time.Millisecond), "G", 5, "1C"), // decimated away
		obsAt(day.Add(60*time.Second), "G", 7, "1C"),
		obsAt(day.Add(25*time.Hour), "G", 5, "1C"), // next day
	}

	w := NewWriter(zap.NewNop())
	got, err := w.WriteDay(context.Background(), obs, secondary.RinexRequest{
		Site: "ncc1", Day: day, OutputDir: dir, Interval: time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "NCC101530.24O"), got.Path)
	assert.Equal(t, 2, got.Epochs)
	assert.True(t, got.Start.Equal(day.Add(30*time.Second)))
	assert.True(t, got.End.Equal(day.Add(60*time.Second)))

	data, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "G    8 C1C L1C D1C S1C C2W L2W D2W S2W")
	assert.Contains(t, text, "E    4 C1C L1C D1C S1C")
	assert.Contains(t, text, "> 2024 06 01 00 00 48.0000000  0  2")
	assert.Equal(t, 2, strings.Count(text, "\n> "))

	start, end, err := ReadSpan(got.Path)
	require.NoError(t, err)
	assert.True(t, start.Equal(got.Start), "start %s", start)
	assert.True(t, end.Equal(got.End), "end %s", end)
}

func TestWriteDay_NoEpochs(t *testing.T) {
	w := NewWriter(zap.NewNop())
	_, err := w.WriteDay(context.Background(), nil, secondary.RinexRequest{Site: "NCC1", Day: day, OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, asset.ErrNoCandidates)
}

func header(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	return b.String()
}

func pad(content, label string) string {
	return content + strings.Repeat(" ", 60-len(content)) + label
}

func TestReadSpan_Fallbacks(t *testing.T) {
	first := pad("  2024     6     1     0     0   18.0000000     GPS", "TIME OF FIRST OBS")

	t.Run("last epoch line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.24O")
		require.NoError(t, os.WriteFile(path, []byte(header(first, pad("", "END OF HEADER"),
			"> 2024 06 01 00 00 18.0000000  0  1", "G05  23000000.000",
			"> 2024 06 01 01 00 18.0000000  0  1", "G05  23000000.000")), 0o644))

		start, end, err := ReadSpan(path)
		require.NoError(t, err)
		assert.True(t, start.Equal(day))
		assert.True(t, end.Equal(day.Add(time.Hour)))
	})

	t.Run("end of day", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "b.24O")
		require.NoError(t, os.WriteFile(path, []byte(header(first, pad("", "END OF HEADER"))), 0o644))

		_, end, err := ReadSpan(path)
		require.NoError(t, err)
		assert.True(t, end.Equal(day.Add(24*time.Hour-time.Second)))
	})

	t.Run("no header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.24O")
		require.NoError(t, os.WriteFile(path, []byte("junk\n"), 0o644))

		_, _, err := ReadSpan(path)
		assert.ErrorIs(t, err, asset.ErrParse)
	})
}
