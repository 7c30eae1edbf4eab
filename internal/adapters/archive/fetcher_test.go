package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
)

func TestResolveURL(t *testing.T) {
	f := NewFetcher(time.Second, zap.NewNop())

	tests := []struct {
		uri     string
		want    string
		wantErr error
	}{
		{uri: "https://host/a/b_DFOP00.raw", want: "https://host/a/b_DFOP00.raw"},
		{uri: "s3://seafloor-raw/cascadia/NCC1/x.NOV770", want: "https://seafloor-raw.s3.amazonaws.com/cascadia/NCC1/x.NOV770"},
		{uri: "s3://bucket-only", wantErr: asset.ErrConfig},
		{uri: "ftp://host/file", wantErr: asset.ErrConfig},
		{uri: "no-scheme", wantErr: asset.ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := f.ResolveURL(tt.uri)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bucket/raw/site_DFOP00.raw":
			w.Write([]byte("payload"))
		case "/slow.raw":
			time.Sleep(200 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(50*time.Millisecond, zap.NewNop()).WithS3Endpoint(srv.URL + "/%s")
	dest := t.TempDir()

	path, err := f.Fetch(context.Background(), "s3://bucket/raw/site_DFOP00.raw", dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "site_DFOP00.raw"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.raw", dest)
	assert.ErrorIs(t, err, asset.ErrExternalTool)

	_, err = f.Fetch(context.Background(), srv.URL+"/slow.raw", dest)
	assert.ErrorIs(t, err, asset.ErrExternalTool)
	assert.NoFileExists(t, filepath.Join(dest, "slow.raw"))
}
