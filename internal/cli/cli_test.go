package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
)

func TestParseDay(t *testing.T) {
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	got, err := parseDay("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = parseDay("2024-153")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = parseDay("June 1")
	assert.True(t, errors.Is(err, asset.ErrConfig))
}

func TestParseKind(t *testing.T) {
	k, err := parseKind("shotdata_pre")
	require.NoError(t, err)
	assert.Equal(t, rows.KindShotPre, k)

	_, err = parseKind("shots")
	assert.True(t, errors.Is(err, asset.ErrConfig))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := RootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_Tree(t *testing.T) {
	root := RootCmd()
	for _, path := range [][]string{
		{"init"}, {"ingest"}, {"pull"}, {"run"}, {"version"},
		{"catalog", "list"}, {"catalog", "counts"}, {"catalog", "gc"}, {"catalog", "lineage"},
		{"store", "dates"}, {"store", "consolidate"}, {"store", "delete"}, {"store", "export"},
		{"products", "fetch"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRunCmd_RejectsUnknownStage(t *testing.T) {
	_, err := execute(t, "run", "-n", "cascadia", "-s", "NCC1", "-c", "2024_A_1126", "--stage", "bogus")
	assert.True(t, errors.Is(err, asset.ErrConfig))
}

func TestRunCmd_RequiresScope(t *testing.T) {
	_, err := execute(t, "run", "-n", "cascadia")
	assert.Error(t, err)
}

func TestStoreExport_RejectsBadDate(t *testing.T) {
	_, err := execute(t, "store", "export", "-n", "cascadia", "-s", "NCC1", "-c", "2024_A_1126", "--start", "yesterday")
	assert.True(t, errors.Is(err, asset.ErrConfig))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sfg dev")
}
