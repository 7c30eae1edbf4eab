package products

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/secondary"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// archive serves directory listings and gzip files under /<year>/<dir>/.
func archive(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			var b strings.Builder
			b.WriteString(`<html><a href="../">../</a>`)
			for p := range files {
				if strings.HasPrefix(p, r.URL.Path) {
					name := strings.TrimPrefix(p, r.URL.Path)
					fmt.Fprintf(&b, `<a href="%s">%s</a>`, name, name)
				}
			}
			w.Write([]byte(b.String()))
			return
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(gz(t, body))
	}))
}

var fullArchive = map[string]string{
	"/2024/orbit/WUM0MGXRAP_20241530000_01D_05M_ORB.SP3.gz": "rapid orbit",
	"/2024/orbit/WUM0MGXFIN_20241530000_01D_05M_ORB.SP3.gz": "final orbit",
	"/2024/orbit/WUM0MGXFIN_20241530000_01D_30S_ATT.OBX.gz": "attitude",
	"/2024/orbit/WUM0MGXFIN_20241530000_01D_01D_ERP.ERP.gz": "erp",
	"/2024/clock/WUM0MGXFIN_20241530000_01D_30S_CLK.CLK.gz": "clock",
	"/2024/bias/WUM0MGXFIN_20241530000_01D_01D_OSB.BIA.gz":  "bias",
	"/2024/orbit/WUM0MGXFIN_20241520000_01D_05M_ORB.SP3.gz": "wrong day",
}

func TestFetch_DownloadsAndCaches(t *testing.T) {
	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()
	srv := archive(t, fullArchive)

	root := t.TempDir()
	f, err := NewFetcher(root, []string{bad.URL + "/{year}/{dir}/", srv.URL + "/{year}/{dir}/"}, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	set, err := f.Fetch(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, set.Files, 5)

	sp3 := set.Files[string(KindSP3)]
	assert.Equal(t, filepath.Join(root, "2024", "153", "WUM0MGXFIN_20241530000_01D_05M_ORB.SP3"), sp3)
	data, err := os.ReadFile(sp3)
	require.NoError(t, err)
	assert.Equal(t, "final orbit", string(data))

	cfg, err := os.ReadFile(set.ConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "Satellite orbit   = WUM0MGXFIN_20241530000_01D_05M_ORB.SP3")

	srv.Close()
	again, err := f.Fetch(context.Background(), day)
	require.NoError(t, err, "second fetch is served from cache")
	assert.Equal(t, set.Files, again.Files)
}

func TestFetch_MissingRequired(t *testing.T) {
	files := map[string]string{
		"/2024/orbit/WUM0MGXFIN_20241530000_01D_05M_ORB.SP3.gz": "final orbit",
	}
	srv := archive(t, files)
	defer srv.Close()

	f, err := NewFetcher(t.TempDir(), []string{srv.URL + "/{year}/{dir}/"}, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), day)
	assert.ErrorIs(t, err, asset.ErrExternalTool)
}

func TestNewFetcher_NoMirrors(t *testing.T) {
	_, err := NewFetcher(t.TempDir(), nil, time.Second, zap.NewNop())
	assert.ErrorIs(t, err, asset.ErrConfig)
}

func TestBest(t *testing.T) {
	re := Pattern(KindSP3, day)
	names := []string{
		"GFZ0MGXRTS_20241530000_01D_05M_ORB.SP3.gz",
		"WUM0MGXRAP_20241530000_01D_05M_ORB.SP3.gz",
		"COD0MGXFIN_20241530000_01D_05M_ORB.SP3.gz",
		"COD0MGXFIN_20241530000_01D_30S_CLK.CLK.gz",
	}
	got, ok := Best(names, re)
	require.True(t, ok)
	assert.Equal(t, "COD0MGXFIN_20241530000_01D_05M_ORB.SP3.gz", got)

	_, ok = Best(names[3:], re)
	assert.False(t, ok)
}

func TestListing(t *testing.T) {
	html := `<a href="?C=N;O=D">Name</a><a href="/pub/">Parent</a><a href="a.SP3.gz">a</a><a href="b.CLK.gz">b</a>`
	assert.Equal(t, []string{"a.SP3.gz", "b.CLK.gz"}, Listing(html))
}

func TestExpand(t *testing.T) {
	got := expand("https://host/{week}/{year}/{doy}/{dir}/", "clock", day)
	assert.Equal(t, "https://host/2316/2024/153/clock/", got)
}

func TestWriteConfig_ReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("stale config that is much longer than the new one\n"+strings.Repeat("x", 4096)), 0o644))

	set := &secondary.ProductSet{
		Day:        day,
		Files:      map[string]string{string(KindSP3): filepath.Join(dir, "orbit.SP3")},
		ConfigFile: path,
	}
	require.NoError(t, writeConfig(set, dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Satellite orbit   = orbit.SP3")
	assert.Contains(t, string(data), "Satellite clock   = Default")
	assert.NotContains(t, string(data), "stale")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file is renamed into place")
	assert.Equal(t, ConfigFileName, entries[0].Name())
}
