package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("loud", false)
	assert.Error(t, err)
}

func TestAttachDetach(t *testing.T) {
	base, err := New("info", false)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "logs")
	attached, err := base.Attach(dir)
	require.NoError(t, err)

	attached.With(zap.String("stage", "kin")).Logger().Info("stage started")
	attached.Logger().Debug("below level")

	require.NoError(t, attached.Detach())
	require.NoError(t, attached.Detach())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `"stage":"kin"`))
	assert.False(t, strings.Contains(out, "below level"))
}

func TestNop(t *testing.T) {
	c := Nop()
	c.Logger().Info("discarded")
	assert.NoError(t, c.Detach())
}
