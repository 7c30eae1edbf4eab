package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/ledger"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

var testScope = asset.Scope{Network: "cascadia", Station: "NCC1", Campaign: "2024_A_1126"}

// ============================================================================
// Catalog
// ============================================================================

var _ secondary.AssetRepository = (*mockAssetRepository)(nil)

// mockAssetRepository implements secondary.AssetRepository in memory.
type mockAssetRepository struct {
	mu      sync.Mutex
	records map[int64]*asset.Record
	nextID  int64
	addErr  error
}

func newMockAssetRepository() *mockAssetRepository {
	return &mockAssetRepository{records: make(map[int64]*asset.Record)}
}

func (m *mockAssetRepository) find(local, remote string) *asset.Record {
	for _, r := range m.records {
		if local != "" && r.LocalPath == local {
			return r
		}
		if remote != "" && r.RemotePath == remote {
			return r
		}
	}
	return nil
}

func (m *mockAssetRepository) Add(ctx context.Context, rec *asset.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return false, m.addErr
	}
	if m.find(rec.LocalPath, rec.RemotePath) != nil {
		return false, nil
	}
	m.nextID++
	rec.ID = m.nextID
	c := *rec
	m.records[rec.ID] = &c
	return true, nil
}

func (m *mockAssetRepository) AddOrUpdate(ctx context.Context, rec *asset.Record) (bool, error) {
	m.mu.Lock()
	if existing := m.find(rec.LocalPath, ""); existing != nil {
		rec.ID = existing.ID
		c := *rec
		m.records[rec.ID] = &c
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()
	return m.Add(ctx, rec)
}

func (m *mockAssetRepository) Upsert(ctx context.Context, rec *asset.Record) error {
	if rec.ID == 0 {
		_, err := m.AddOrUpdate(ctx, rec)
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return asset.ErrNotFound
	}
	c := *rec
	m.records[rec.ID] = &c
	return nil
}

func (m *mockAssetRepository) GetByID(ctx context.Context, id int64) (*asset.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, asset.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *mockAssetRepository) sorted() []*asset.Record {
	out := make([]*asset.Record, 0, len(m.records))
	for _, r := range m.records {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func inScope(r *asset.Record, s asset.Scope) bool {
	return (s.Network == "" || r.Network == s.Network) &&
		(s.Station == "" || r.Station == s.Station) &&
		(s.Campaign == "" || r.Campaign == s.Campaign)
}

func (m *mockAssetRepository) GetAssets(ctx context.Context, f secondary.AssetFilter) ([]*asset.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*asset.Record
	for _, r := range m.sorted() {
		if !inScope(r, asset.Scope{Network: f.Network, Station: f.Station, Campaign: f.Campaign}) {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, r.Type) {
			continue
		}
		if f.Processed != nil && r.Processed != *f.Processed {
			continue
		}
		if f.ParentID != nil && (r.ParentID == nil || *r.ParentID != *f.ParentID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func containsType(ts []asset.Type, t asset.Type) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func (m *mockAssetRepository) GetUnprocessed(ctx context.Context, scope asset.Scope, parentType, childType asset.Type, override bool) ([]*asset.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	var out []*asset.Record
	for _, r := range all {
		if r.Type != parentType || !inScope(r, scope) {
			continue
		}
		if override {
			out = append(out, r)
			continue
		}
		if childType == "" {
			if !r.Processed {
				out = append(out, r)
			}
			continue
		}
		hasChild := false
		for _, c := range all {
			if c.Type == childType && c.ParentID != nil && *c.ParentID == r.ID {
				hasChild = true
			}
		}
		if !hasChild {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockAssetRepository) Counts(ctx context.Context, scope asset.Scope) (map[asset.Type]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[asset.Type]int)
	for _, r := range m.records {
		if inScope(r, scope) {
			out[r.Type]++
		}
	}
	return out, nil
}

func (m *mockAssetRepository) RemoteExists(ctx context.Context, remotePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find("", remotePath) != nil, nil
}

func (m *mockAssetRepository) UpdateLocalPath(ctx context.Context, remotePath, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find("", remotePath)
	if r == nil {
		return asset.ErrNotFound
	}
	if other := m.find(localPath, ""); other != nil && other.ID != r.ID {
		return asset.ErrDuplicate
	}
	r.LocalPath = localPath
	return nil
}

func (m *mockAssetRepository) Delete(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gone := make(map[int64]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	for _, r := range m.records {
		if r.HasParent() && gone[*r.ParentID] && !gone[r.ID] {
			return asset.ErrInUse
		}
	}
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *mockAssetRepository) ListAll(ctx context.Context) ([]*asset.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

// ============================================================================
// Ledger
// ============================================================================

var _ secondary.MergeJobRepository = (*mockMergeJobRepository)(nil)

type mockMergeJobRepository struct {
	mu      sync.Mutex
	entries map[string]*ledger.Entry
	upserts int
}

func newMockMergeJobRepository() *mockMergeJobRepository {
	return &mockMergeJobRepository{entries: make(map[string]*ledger.Entry)}
}

func ledgerID(k ledger.Key) string { return k.ParentType + "/" + k.ChildType + "/" + k.Canonical() }

func (m *mockMergeJobRepository) Record(ctx context.Context, key ledger.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[ledgerID(key)]; ok {
		return asset.ErrDuplicate
	}
	m.entries[ledgerID(key)] = &ledger.Entry{ID: int64(len(m.entries) + 1), Key: key, CompletedAt: time.Now().UTC()}
	return nil
}

func (m *mockMergeJobRepository) Upsert(ctx context.Context, key ledger.Key) error {
	m.mu.Lock()
	m.upserts++
	if e, ok := m.entries[ledgerID(key)]; ok {
		e.CompletedAt = time.Now().UTC()
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.Record(ctx, key)
}

func (m *mockMergeJobRepository) IsComplete(ctx context.Context, key ledger.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[ledgerID(key)]
	return ok, nil
}

func (m *mockMergeJobRepository) List(ctx context.Context) ([]*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockMergeJobRepository) Delete(ctx context.Context, key ledger.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[ledgerID(key)]; !ok {
		return asset.ErrNotFound
	}
	delete(m.entries, ledgerID(key))
	return nil
}

// ============================================================================
// Array stores
// ============================================================================

// memStore implements secondary.RowStore without partitioning.
type memStore[R rows.Row] struct {
	mu      sync.Mutex
	rows    []R
	writes   int
	deletes  int
	replaces int
	writeErr error
}

func (s *memStore[R]) WriteRows(ctx context.Context, batch []R) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes++
	s.rows = append(s.rows, batch...)
	return len(batch), nil
}

func (s *memStore[R]) ReadRange(ctx context.Context, start, end time.Time) ([]R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := rows.Day(start), rows.Day(end).AddDate(0, 0, 2)
	var out []R
	for _, r := range s.rows {
		if !r.Time().Before(lo) && r.Time().Before(hi) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time().Before(out[j].Time()) })
	return out, nil
}

func (s *memStore[R]) UniqueDates(ctx context.Context) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, r := range s.rows {
		d := rows.Day(r.Time())
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *memStore[R]) Consolidate(ctx context.Context) error { return nil }

func (s *memStore[R]) DeleteRange(ctx context.Context, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	lo, hi := rows.Day(start), rows.Day(end).AddDate(0, 0, 1)
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.Time().Before(lo) || !r.Time().Before(hi) {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *memStore[R]) ReplaceRange(ctx context.Context, start, end time.Time, batch []R) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.replaces++
	lo, hi := rows.Day(start), rows.Day(end).AddDate(0, 0, 1)
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.Time().Before(lo) || !r.Time().Before(hi) {
			kept = append(kept, r)
		}
	}
	s.rows = append(kept, batch...)
	return len(batch), nil
}

func (s *memStore[R]) Path() string { return "/mem" }

func (s *memStore[R]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

var _ secondary.ArrayStores = (*memStores)(nil)

// memStores holds one station's stores; the scope argument is ignored.
type memStores struct {
	acoustic     memStore[*rows.Acoustic]
	positions    memStore[*rows.Position]
	imu          memStore[*rows.IMUPosition]
	shotsPre     memStore[*rows.Shot]
	shots        memStore[*rows.Shot]
	obs          memStore[*rows.Observable]
	obsSecondary memStore[*rows.Observable]
	consolidated int
}

func newMemStores() *memStores { return &memStores{} }

func (m *memStores) Acoustic(asset.Scope) secondary.RowStore[*rows.Acoustic]     { return &m.acoustic }
func (m *memStores) Positions(asset.Scope) secondary.RowStore[*rows.Position]    { return &m.positions }
func (m *memStores) IMU(asset.Scope) secondary.RowStore[*rows.IMUPosition]       { return &m.imu }
func (m *memStores) ShotsPre(asset.Scope) secondary.RowStore[*rows.Shot]         { return &m.shotsPre }
func (m *memStores) Shots(asset.Scope) secondary.RowStore[*rows.Shot]            { return &m.shots }
func (m *memStores) Observables(_ asset.Scope, sec bool) secondary.RowStore[*rows.Observable] {
	if sec {
		return &m.obsSecondary
	}
	return &m.obs
}

func (m *memStores) ConsolidateAll(ctx context.Context, s asset.Scope) error {
	m.consolidated++
	return nil
}

func (m *memStores) totalWrites() int {
	return m.acoustic.writes + m.positions.writes + m.imu.writes + m.shotsPre.writes +
		m.shots.writes + m.obs.writes + m.obsSecondary.writes
}

// ============================================================================
// Workspace, parsers, fetchers
// ============================================================================

var _ secondary.Workspace = (*mockWorkspace)(nil)

type mockWorkspace struct {
	root    string
	scanned map[string][]secondary.DiscoveredFile
}

func newMockWorkspace(root string) *mockWorkspace {
	return &mockWorkspace{root: root, scanned: make(map[string][]secondary.DiscoveredFile)}
}

func (w *mockWorkspace) Build(ctx context.Context, s asset.Scope) (*secondary.CampaignPaths, error) {
	base := filepath.Join(w.root, s.Network, s.Station, s.Campaign)
	p := &secondary.CampaignPaths{
		Campaign:     base,
		Raw:          filepath.Join(base, "raw"),
		Intermediate: filepath.Join(base, "intermediate"),
		Processed:    filepath.Join(base, "processed"),
		Logs:         filepath.Join(base, "logs"),
		Pride:        filepath.Join(w.root, "Pride"),
	}
	for _, d := range []string{p.Raw, p.Intermediate, p.Processed, p.Logs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (w *mockWorkspace) Scan(ctx context.Context, dir string) ([]secondary.DiscoveredFile, error) {
	return w.scanned[dir], nil
}

func (w *mockWorkspace) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (w *mockWorkspace) CatalogPath() string { return filepath.Join(w.root, "catalog.sqlite") }

var _ secondary.ParserRegistry = mockParsers(nil)

type mockParsers map[asset.Type]secondary.Parser

func (m mockParsers) Lookup(t asset.Type) (secondary.Parser, bool) {
	p, ok := m[t]
	return p, ok
}

var _ secondary.ArchiveFetcher = (*mockArchiveFetcher)(nil)

type mockArchiveFetcher struct {
	mu      sync.Mutex
	fetched []string
	failFor map[string]error
}

func (m *mockArchiveFetcher) Fetch(ctx context.Context, uri, destDir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[uri]; err != nil {
		return "", err
	}
	m.fetched = append(m.fetched, uri)
	dest := filepath.Join(destDir, filepath.Base(uri))
	if err := os.WriteFile(dest, []byte("data"), 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

var _ secondary.ProductFetcher = (*mockProductFetcher)(nil)

type mockProductFetcher struct {
	err error
}

func (m *mockProductFetcher) Fetch(ctx context.Context, day time.Time) (*secondary.ProductSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &secondary.ProductSet{Day: day, Files: map[string]string{"sp3": "/products/x.sp3"}, ConfigFile: "/products/config_file"}, nil
}
