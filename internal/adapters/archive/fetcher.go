// Package archive downloads raw files from remote archives over HTTP(S),
// including public S3 buckets through their virtual-hosted endpoints.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/secondary"
)

// DefaultS3Endpoint is the virtual-hosted bucket URL template.
const DefaultS3Endpoint = "https://%s.s3.amazonaws.com"

// Fetcher implements secondary.ArchiveFetcher.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	s3Endpoint string
	log        *zap.Logger
}

var _ secondary.ArchiveFetcher = (*Fetcher)(nil)

// NewFetcher creates an archive fetcher with a per-download timeout.
func NewFetcher(timeout time.Duration, log *zap.Logger) *Fetcher {
	return &Fetcher{
		client:     &http.Client{},
		timeout:    timeout,
		s3Endpoint: DefaultS3Endpoint,
		log:        log,
	}
}

// WithS3Endpoint overrides the bucket URL template (one %s for the bucket).
func (f *Fetcher) WithS3Endpoint(tmpl string) *Fetcher {
	f.s3Endpoint = tmpl
	return f
}

// ResolveURL maps a remote URI onto the HTTPS URL to fetch.
func (f *Fetcher) ResolveURL(uri string) (string, error) {
	rt, err := asset.RemoteTypeForURI(uri)
	if err != nil {
		return "", err
	}
	if rt == asset.RemoteHTTP {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: malformed s3 uri %q", asset.ErrConfig, uri)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("%w: s3 uri %q has no key", asset.ErrConfig, uri)
	}
	return fmt.Sprintf(f.s3Endpoint, u.Host) + "/" + key, nil
}

// Fetch downloads uri into destDir, keeping the remote base name. The file
// appears only once complete.
func (f *Fetcher) Fetch(ctx context.Context, uri, destDir string) (string, error) {
	target, err := f.ResolveURL(uri)
	if err != nil {
		return "", err
	}
	name := path.Base(strings.SplitN(target, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: cannot name download of %q", asset.ErrConfig, uri)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", asset.ErrConfig, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: download of %s timed out", asset.ErrExternalTool, uri)
		}
		return "", fmt.Errorf("%w: failed to download %s: %v", asset.ErrExternalTool, uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: download %s: status %d", asset.ErrExternalTool, uri, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(destDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to write %s: %v", asset.ErrExternalTool, uri, err)
	}

	dest := filepath.Join(destDir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	f.log.Info("downloaded", zap.String("uri", uri), zap.String("path", dest), zap.Int64("bytes", n))
	return dest, nil
}
