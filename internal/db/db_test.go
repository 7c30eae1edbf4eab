package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpen_MigratesAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.sqlite")

	conn, err := Open(path, zap.NewNop())
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM assets").Scan(&n))
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM merge_jobs").Scan(&n))
	require.NoError(t, conn.Close())

	conn, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()
	assert.NoError(t, Migrate(conn, nil))
}

func TestGetSchemaSQL(t *testing.T) {
	s := GetSchemaSQL()
	assert.True(t, strings.Index(s, "CREATE TABLE IF NOT EXISTS assets") < strings.Index(s, "CREATE TABLE IF NOT EXISTS merge_jobs"))
}
