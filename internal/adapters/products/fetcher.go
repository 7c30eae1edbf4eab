// Package products resolves daily GNSS orbit, clock and bias products for the
// PPP solver, downloading them from mirrored archives when not cached.
package products

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/ports/secondary"
)

// Kind names one product type.
type Kind string

const (
	KindSP3  Kind = "sp3"
	KindCLK  Kind = "clk"
	KindBias Kind = "bias"
	KindOBX  Kind = "obx"
	KindERP  Kind = "erp"
)

// ConfigFileName is the solver configuration written beside the products.
const ConfigFileName = "config_file"

type source struct {
	kind     Kind
	dir      string // {dir} placeholder value
	suffix   string
	required bool
}

var sources = []source{
	{KindSP3, "orbit", "SP3", true},
	{KindCLK, "clock", "CLK", true},
	{KindBias, "bias", "BIA", true},
	{KindOBX, "orbit", "OBX", true},
	{KindERP, "orbit", "ERP", false},
}

// Quality tags in priority order.
var priority = []string{"FIN", "RAP", "RTS"}

var hrefRe = regexp.MustCompile(`href="([^"?/][^"]*)"`)

// Fetcher implements secondary.ProductFetcher.
type Fetcher struct {
	root    string // Pride directory
	mirrors []string
	client  *http.Client
	timeout time.Duration
	log     *zap.Logger
}

var _ secondary.ProductFetcher = (*Fetcher)(nil)

// NewFetcher creates a product fetcher caching under root.
func NewFetcher(root string, mirrors []string, timeout time.Duration, log *zap.Logger) (*Fetcher, error) {
	if len(mirrors) == 0 {
		return nil, fmt.Errorf("%w: no product mirrors configured", asset.ErrConfig)
	}
	return &Fetcher{
		root:    root,
		mirrors: mirrors,
		client:  &http.Client{},
		timeout: timeout,
		log:     log,
	}, nil
}

// DayDir returns Pride/<year>/<doy>.
func DayDir(root string, day time.Time) string {
	year, doy := geodesy.DayOfYear(day)
	return filepath.Join(root, strconv.Itoa(year), fmt.Sprintf("%03d", doy))
}

// Pattern returns the listing-name pattern for a product kind on day.
func Pattern(kind Kind, day time.Time) *regexp.Regexp {
	year, doy := geodesy.DayOfYear(day)
	for _, s := range sources {
		if s.kind == kind {
			return regexp.MustCompile(fmt.Sprintf(`(?i)^.*%d%03d.*%s.*`, year, doy, s.suffix))
		}
	}
	return nil
}

// Fetch resolves every product kind for day. Cached files are used as-is;
// missing ones are downloaded concurrently. A missing required product
// fails with asset.ErrExternalTool.
func (f *Fetcher) Fetch(ctx context.Context, day time.Time) (*secondary.ProductSet, error) {
	dir := DayDir(f.root, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create product dir: %w", err)
	}

	var (
		mu    sync.Mutex
		files = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(sources))
	for _, s := range sources {
		g.Go(func() error {
			path, err := f.resolve(gctx, s, day, dir)
			if err != nil {
				if s.required {
					return err
				}
				f.log.Warn("optional product unavailable", zap.String("kind", string(s.kind)), zap.Error(err))
				return nil
			}
			mu.Lock()
			files[string(s.kind)] = path
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &secondary.ProductSet{Day: day, Files: files, ConfigFile: filepath.Join(dir, ConfigFileName)}
	if err := writeConfig(set, dir); err != nil {
		return nil, err
	}
	return set, nil
}

func (f *Fetcher) resolve(ctx context.Context, s source, day time.Time, dir string) (string, error) {
	re := Pattern(s.kind, day)
	if cached, ok := cachedProduct(dir, re); ok {
		f.log.Debug("product cached", zap.String("kind", string(s.kind)), zap.String("path", cached))
		return cached, nil
	}

	var lastErr error
	for _, tmpl := range f.mirrors {
		base := expand(tmpl, s.dir, day)
		path, err := f.fromMirror(ctx, base, re, dir)
		if err == nil {
			f.log.Info("downloaded product",
				zap.String("kind", string(s.kind)),
				zap.String("mirror", base),
				zap.String("path", path))
			return path, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.log.Debug("mirror failed", zap.String("mirror", base), zap.Error(err))
		lastErr = err
	}
	return "", fmt.Errorf("%w: no %s product for %s: %v", asset.ErrExternalTool, s.kind, day.Format(time.DateOnly), lastErr)
}

func (f *Fetcher) fromMirror(ctx context.Context, base string, re *regexp.Regexp, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	listing, err := f.get(ctx, base)
	if err != nil {
		return "", err
	}
	defer listing.Close()
	body, err := io.ReadAll(listing)
	if err != nil {
		return "", fmt.Errorf("failed to read listing: %w", err)
	}

	name, ok := Best(Listing(string(body)), re)
	if !ok {
		return "", fmt.Errorf("no match for %s in %s", re, base)
	}

	rc, err := f.get(ctx, strings.TrimSuffix(base, "/")+"/"+name)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return store(rc, dir, name)
}

func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// store writes r to dir, decompressing .gz names, via temp file and rename.
func store(r io.Reader, dir, name string) (string, error) {
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
		name = name[:len(name)-3]
	}

	tmp, err := os.CreateTemp(dir, ".product-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return path, nil
}

// Listing extracts file names from an HTML directory index.
func Listing(html string) []string {
	var out []string
	for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
		out = append(out, filepath.Base(m[1]))
	}
	return out
}

// Best picks the highest-priority name matching re: FIN over RAP over RTS
// over anything else, ties broken by name.
func Best(names []string, re *regexp.Regexp) (string, bool) {
	var matched []string
	for _, n := range names {
		if re.MatchString(n) {
			matched = append(matched, n)
		}
	}
	if len(matched) == 0 {
		return "", false
	}
	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := rank(matched[i]), rank(matched[j])
		if ri != rj {
			return ri < rj
		}
		return matched[i] < matched[j]
	})
	return matched[0], true
}

func rank(name string) int {
	up := strings.ToUpper(name)
	for i, tag := range priority {
		if strings.Contains(up, tag) {
			return i
		}
	}
	return len(priority)
}

func cachedProduct(dir string, re *regexp.Regexp) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || strings.HasSuffix(strings.ToLower(n), ".gz") {
			continue
		}
		names = append(names, n)
	}
	name, ok := Best(names, re)
	if !ok {
		return "", false
	}
	return filepath.Join(dir, name), true
}

func expand(tmpl, dir string, day time.Time) string {
	year, doy := geodesy.DayOfYear(day)
	week, _ := geodesy.GPSWeek(day)
	return strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{doy}", fmt.Sprintf("%03d", doy),
		"{week}", strconv.Itoa(week),
		"{dir}", dir,
	).Replace(tmpl)
}

// writeConfig replaces the solver config in one rename so a concurrent
// reader never sees a partial file.
func writeConfig(set *secondary.ProductSet, dir string) error {
	name := func(k Kind) string {
		if p, ok := set.Files[string(k)]; ok {
			return filepath.Base(p)
		}
		return "Default"
	}
	var b strings.Builder
	b.WriteString("## Session configuration\n")
	fmt.Fprintf(&b, "Session time      = %s\n", set.Day.Format("2006 01 02"))
	b.WriteString("## Satellite product\n")
	fmt.Fprintf(&b, "Product directory = %s\n", dir)
	fmt.Fprintf(&b, "Satellite orbit   = %s\n", name(KindSP3))
	fmt.Fprintf(&b, "Satellite clock   = %s\n", name(KindCLK))
	fmt.Fprintf(&b, "ERP               = %s\n", name(KindERP))
	fmt.Fprintf(&b, "Quaternions       = %s\n", name(KindOBX))
	fmt.Fprintf(&b, "Code/phase bias   = %s\n", name(KindBias))

	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write product config: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write product config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write product config: %w", err)
	}
	if err := os.Rename(tmp.Name(), set.ConfigFile); err != nil {
		return fmt.Errorf("failed to move product config into place: %w", err)
	}
	return nil
}
