// Package cli holds the thin output adapters between cobra commands and the
// primary ports. They format results for a terminal and nothing else.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/primary"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// CatalogAdapter translates catalog commands to CatalogService calls.
type CatalogAdapter struct {
	service primary.CatalogService
	out     io.Writer
}

// NewCatalogAdapter creates a new CatalogAdapter.
func NewCatalogAdapter(service primary.CatalogService, out io.Writer) *CatalogAdapter {
	return &CatalogAdapter{service: service, out: out}
}

// List prints the records matching q.
func (a *CatalogAdapter) List(ctx context.Context, q primary.AssetQuery) ([]*asset.Record, error) {
	recs, err := a.service.GetAssets(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No assets found.")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Catalog some files first:")
		fmt.Fprintln(a.out, "  sfg ingest -n cascadia -s NCC1 -c 2024_A_1126 ./raw")
		return recs, nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTART\tEND\tDONE\tPARENT\tPATH")
	fmt.Fprintln(w, "--\t----\t-----\t---\t----\t------\t----")
	for _, r := range recs {
		parent := "-"
		if r.HasParent() {
			parent = fmt.Sprint(*r.ParentID)
		}
		done := ""
		if r.Processed {
			done = okMark
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Type, stamp(r.TimeStart), stamp(r.TimeEnd), done, parent, r.StorageRef())
	}
	w.Flush()
	return recs, nil
}

// Counts prints the number of records per type.
func (a *CatalogAdapter) Counts(ctx context.Context, scope asset.Scope) (map[asset.Type]int, error) {
	counts, err := a.service.Counts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	types := make([]asset.Type, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	asset.SortTypes(types)

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TYPE\tCOUNT")
	total := 0
	for _, t := range types {
		fmt.Fprintf(w, "%s\t%d\n", t, counts[t])
		total += counts[t]
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	w.Flush()
	return counts, nil
}

// GarbageCollect removes vanished local files from the catalog.
func (a *CatalogAdapter) GarbageCollect(ctx context.Context) (*primary.GCReport, error) {
	rep, err := a.service.GarbageCollect(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rep.Removed {
		fmt.Fprintf(a.out, "  removed %d %s %s\n", r.ID, r.Type, r.LocalPath)
	}
	for _, h := range rep.Held {
		fmt.Fprintf(a.out, "%s kept %d %s %s: referenced by %v\n", warnMark, h.Record.ID, h.Record.Type, h.Record.LocalPath, h.Children)
	}
	fmt.Fprintf(a.out, "%s Checked %d assets, removed %d\n", okMark, rep.Checked, len(rep.Removed))
	return rep, nil
}

// Lineage prints records whose parent is missing or of the wrong type.
func (a *CatalogAdapter) Lineage(ctx context.Context) ([]primary.LineageIssue, error) {
	issues, err := a.service.CheckLineage(ctx)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		fmt.Fprintf(a.out, "%s Lineage intact\n", okMark)
		return nil, nil
	}
	for _, is := range issues {
		if is.Missing() {
			fmt.Fprintf(a.out, "%s asset %d (%s) references missing parent %d\n",
				warnMark, is.Record.ID, is.Record.StorageRef(), is.ParentID)
			continue
		}
		fmt.Fprintf(a.out, "%s asset %d (%s) has parent %d of type %s, want one of %v\n",
			warnMark, is.Record.ID, is.Record.Type, is.ParentID, is.ParentType, is.Record.Type.ParentTypes())
	}
	return issues, nil
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02T15:04:05")
}
