// Package arraystore keeps time-series rows on disk, partitioned by UTC day.
//
// Each store is a directory of day partitions, and each partition holds one or
// more zstd-compressed JSON-lines fragments:
//
//	<arrays>/<kind>/<YYYY-MM-DD>/<uuid>.jsonl.zst
//
// Writers only ever add fragments. Consolidate folds a day's fragments back
// into one.
package arraystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ctxutil"
	"github.com/example/sfg/internal/metrics"
)

const (
	fragmentExt = ".jsonl.zst"
	dayLayout   = "2006-01-02"
)

// Store is one station's store of a single row kind.
type Store[R rows.Row] struct {
	kind   rows.Kind
	root   string
	newRow func() R
	log    *zap.Logger

	mu sync.RWMutex
}

// New creates a store rooted at root. newRow allocates an empty row for
// decoding.
func New[R rows.Row](root string, kind rows.Kind, newRow func() R, log *zap.Logger) *Store[R] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store[R]{
		kind:   kind,
		root:   root,
		newRow: newRow,
		log:    log.With(zap.String("kind", string(kind))),
	}
}

// Path returns the store's root directory.
func (s *Store[R]) Path() string { return s.root }

// WriteRows validates the whole batch and appends one fragment per day.
func (s *Store[R]) WriteRows(ctx context.Context, batch []R) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if err := rows.ValidateBatch(s.kind, batch); err != nil {
		return 0, err
	}

	byDay, days := groupByDay(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if _, err := s.writeFragment(filepath.Join(s.root, d), byDay[d]); err != nil {
			return written, err
		}
		written += len(byDay[d])
	}

	metrics.RowsWrittenTotal.WithLabelValues(string(s.kind)).Add(float64(written))
	s.log.Debug("rows written",
		zap.String("run_id", ctxutil.RunIDFromContext(ctx)),
		zap.Int("rows", written),
		zap.Int("days", len(days)))
	return written, nil
}

// ReadRange returns rows from start through the whole day after end's day,
// sorted by time then secondary key, one row per (time, secondary key). A
// store with no data returns an empty slice.
func (s *Store[R]) ReadRange(ctx context.Context, start, end time.Time) ([]R, error) {
	start, end = start.UTC(), end.UTC()
	limit := rows.Day(end).AddDate(0, 0, 2)

	s.mu.RLock()
	defer s.mu.RUnlock()

	days, err := s.partitions()
	if err != nil {
		return nil, err
	}

	first := rows.Day(start)
	last := rows.Day(end).AddDate(0, 0, 1)

	var out []R
	for _, d := range days {
		if d.Before(first) || d.After(last) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := s.readPartition(d)
		if err != nil {
			return nil, err
		}
		for _, r := range got {
			t := r.Time()
			if t.Before(start) || !t.Before(limit) {
				continue
			}
			out = append(out, r)
		}
	}
	sortRows(out)
	return out, nil
}

// UniqueDates returns the sorted days holding at least one fragment.
func (s *Store[R]) UniqueDates(ctx context.Context) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days, err := s.partitions()
	if err != nil {
		return nil, err
	}
	out := days[:0]
	for _, d := range days {
		frags, err := s.fragments(d)
		if err != nil {
			return nil, err
		}
		if len(frags) > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// Consolidate merges every multi-fragment day into a single fragment,
// deduplicating by (time, secondary key) with the newest fragment winning.
// Empty partitions are removed.
func (s *Store[R]) Consolidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.partitions()
	if err != nil {
		return err
	}

	merged := 0
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := s.partitionDir(d)
		frags, err := s.fragments(d)
		if err != nil {
			return err
		}
		switch {
		case len(frags) == 0:
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to remove empty partition %s: %w", dir, err)
			}
			continue
		case len(frags) == 1:
			continue
		}

		kept, err := s.merge(frags)
		if err != nil {
			return err
		}
		sortRows(kept)

		if _, err := s.writeFragment(dir, kept); err != nil {
			return err
		}
		for _, f := range frags {
			if err := os.Remove(f); err != nil {
				return fmt.Errorf("failed to remove fragment %s: %w", f, err)
			}
		}
		merged++
	}

	if merged > 0 {
		s.log.Info("store consolidated", zap.Int("partitions", merged))
	}
	return nil
}

// DeleteRange removes the partitions whose day lies in [start, end].
func (s *Store[R]) DeleteRange(ctx context.Context, start, end time.Time) error {
	first, last := rows.Day(start.UTC()), rows.Day(end.UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	days, err := s.partitions()
	if err != nil {
		return err
	}
	for _, d := range days {
		if d.Before(first) || d.After(last) {
			continue
		}
		if err := os.RemoveAll(s.partitionDir(d)); err != nil {
			return fmt.Errorf("failed to delete partition %s: %w", d.Format(dayLayout), err)
		}
	}
	return nil
}

// ReplaceRange swaps the days in [start, end] for batch. The new fragments
// are written before any old one is removed, so a failed write leaves the
// previous data in place. Every row must fall inside the range.
func (s *Store[R]) ReplaceRange(ctx context.Context, start, end time.Time, batch []R) (int, error) {
	first, last := rows.Day(start.UTC()), rows.Day(end.UTC())
	if err := rows.ValidateBatch(s.kind, batch); err != nil {
		return 0, err
	}
	for _, r := range batch {
		if d := rows.Day(r.Time()); d.Before(first) || d.After(last) {
			return 0, fmt.Errorf("%w: %s row at %s outside replaced range", asset.ErrValidation, s.kind, r.Time().Format(time.RFC3339))
		}
	}
	byDay, days := groupByDay(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.partitions()
	if err != nil {
		return 0, err
	}
	var old []string
	var stale []time.Time
	for _, d := range existing {
		if d.Before(first) || d.After(last) {
			continue
		}
		frags, err := s.fragments(d)
		if err != nil {
			return 0, err
		}
		old = append(old, frags...)
		if _, ok := byDay[d.Format(dayLayout)]; !ok {
			stale = append(stale, d)
		}
	}

	var fresh []string
	for _, d := range days {
		if err := ctx.Err(); err != nil {
			removeAll(fresh)
			return 0, err
		}
		path, err := s.writeFragment(filepath.Join(s.root, d), byDay[d])
		if err != nil {
			removeAll(fresh)
			return 0, err
		}
		fresh = append(fresh, path)
	}

	for _, f := range old {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return len(batch), fmt.Errorf("failed to remove replaced fragment %s: %w", f, err)
		}
	}
	for _, d := range stale {
		if err := os.RemoveAll(s.partitionDir(d)); err != nil {
			return len(batch), fmt.Errorf("failed to delete partition %s: %w", d.Format(dayLayout), err)
		}
	}

	metrics.RowsWrittenTotal.WithLabelValues(string(s.kind)).Add(float64(len(batch)))
	s.log.Debug("range replaced",
		zap.String("run_id", ctxutil.RunIDFromContext(ctx)),
		zap.Int("rows", len(batch)),
		zap.Int("replaced_fragments", len(old)))
	return len(batch), nil
}

func (s *Store[R]) partitionDir(d time.Time) string {
	return filepath.Join(s.root, d.Format(dayLayout))
}

// partitions lists the day directories in order. A missing root is empty.
func (s *Store[R]) partitions() ([]time.Time, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list store %s: %w", s.root, err)
	}
	var days []time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, err := time.Parse(dayLayout, e.Name())
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// fragments lists a partition's fragments oldest first (modtime, then name).
func (s *Store[R]) fragments(d time.Time) ([]string, error) {
	dir := s.partitionDir(d)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition %s: %w", dir, err)
	}

	type frag struct {
		path string
		name string
		mod  time.Time
	}
	var frags []frag
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fragmentExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat fragment %s: %w", e.Name(), err)
		}
		frags = append(frags, frag{path: filepath.Join(dir, e.Name()), name: e.Name(), mod: info.ModTime()})
	}
	sort.SliceStable(frags, func(i, j int) bool {
		if !frags[i].mod.Equal(frags[j].mod) {
			return frags[i].mod.Before(frags[j].mod)
		}
		return frags[i].name < frags[j].name
	})

	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.path
	}
	return out, nil
}

// readPartition returns a day's rows with duplicates folded the same way
// Consolidate folds them.
func (s *Store[R]) readPartition(d time.Time) ([]R, error) {
	frags, err := s.fragments(d)
	if err != nil {
		return nil, err
	}
	return s.merge(frags)
}

// merge reads fragments oldest first. A row whose (time, secondary key) was
// already seen replaces the earlier one.
func (s *Store[R]) merge(frags []string) ([]R, error) {
	index := make(map[string]int)
	var kept []R
	for _, f := range frags {
		got, err := s.readFragment(f)
		if err != nil {
			return nil, err
		}
		for _, r := range got {
			k := rowKey(r)
			if i, ok := index[k]; ok {
				kept[i] = r
				continue
			}
			index[k] = len(kept)
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (s *Store[R]) readFragment(path string) ([]R, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fragment: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
	}
	defer zr.Close()

	var out []R
	dec := json.NewDecoder(zr)
	for {
		r := s.newRow()
		err := dec.Decode(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode fragment %s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// writeFragment writes batch to a new fragment in dir via temp file and
// rename, returning the fragment's path.
func (s *Store[R]) writeFragment(dir string, batch []R) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition %s: %w", dir, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to name fragment: %w", err)
	}
	final := filepath.Join(dir, id.String()+fragmentExt)
	tmp, err := os.CreateTemp(dir, ".fragment-*")
	if err != nil {
		return "", fmt.Errorf("failed to create fragment: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to open zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	for _, r := range batch {
		if err := enc.Encode(r); err != nil {
			zw.Close()
			tmp.Close()
			return "", fmt.Errorf("failed to encode row: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to flush fragment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close fragment: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to commit fragment: %w", err)
	}
	return final, nil
}

func groupByDay[R rows.Row](batch []R) (map[string][]R, []string) {
	byDay := make(map[string][]R)
	var days []string
	for _, r := range batch {
		d := r.Time().UTC().Format(dayLayout)
		if _, ok := byDay[d]; !ok {
			days = append(days, d)
		}
		byDay[d] = append(byDay[d], r)
	}
	sort.Strings(days)
	return byDay, days
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

func rowKey(r rows.Row) string {
	return fmt.Sprintf("%d|%s", r.Time().UnixNano(), r.SecondaryKey())
}

func sortRows[R rows.Row](rs []R) {
	sort.SliceStable(rs, func(i, j int) bool {
		ti, tj := rs[i].Time(), rs[j].Time()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return rs[i].SecondaryKey() < rs[j].SecondaryKey()
	})
}
