package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/pipeline"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/primary"
)

// PipelineAdapter translates run, ingest and store commands to service
// calls and prints their reports.
type PipelineAdapter struct {
	pipeline primary.PipelineService
	ingest   primary.IngestService
	store    primary.StoreService
	out      io.Writer
}

// NewPipelineAdapter creates a new PipelineAdapter.
func NewPipelineAdapter(p primary.PipelineService, i primary.IngestService, s primary.StoreService, out io.Writer) *PipelineAdapter {
	return &PipelineAdapter{pipeline: p, ingest: i, store: s, out: out}
}

// Run runs one stage, or the whole pipeline when stage is empty.
func (a *PipelineAdapter) Run(ctx context.Context, req primary.RunRequest, stage pipeline.Name) ([]*pipeline.Report, error) {
	var (
		reports []*pipeline.Report
		err     error
	)
	if stage == "" {
		reports, err = a.pipeline.RunPipeline(ctx, req)
	} else {
		var rep *pipeline.Report
		rep, err = a.pipeline.RunStage(ctx, req, stage)
		if rep != nil {
			reports = append(reports, rep)
		}
		if errors.Is(err, asset.ErrNoCandidates) {
			err = nil
		}
	}
	a.printReports(reports)
	return reports, err
}

func (a *PipelineAdapter) printReports(reports []*pipeline.Report) {
	if len(reports) == 0 {
		return
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STAGE\tCANDIDATES\tPROCESSED\tSKIPPED\tFAILED\tROWS\tTIME")
	for _, r := range reports {
		if r.LedgerSkipped {
			fmt.Fprintf(w, "%s\t%d\t%s\t\t\t\t\n", r.Stage, r.Candidates, color.New(color.FgBlue).Sprint("complete"))
			continue
		}
		failed := fmt.Sprint(r.Failed)
		if r.Failed > 0 {
			failed = color.New(color.FgRed).Sprint(failed)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%d\t%s\n",
			r.Stage, r.Candidates, r.Processed, r.Skipped, failed, r.RowsWritten, r.Duration.Round(time.Millisecond))
	}
	w.Flush()
}

// Init creates the campaign tree.
func (a *PipelineAdapter) Init(ctx context.Context, scope asset.Scope) error {
	dir, err := a.ingest.Init(ctx, scope)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Campaign %s ready\n", okMark, scope)
	fmt.Fprintf(a.out, "  %s\n", dir)
	return nil
}

// Ingest catalogs local files.
func (a *PipelineAdapter) Ingest(ctx context.Context, req primary.IngestRequest) (*primary.IngestReport, error) {
	rep, err := a.ingest.Ingest(ctx, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.out, "%s Discovered %d files: %d added, %d already cataloged\n",
		okMark, rep.Discovered, rep.Added, rep.Duplicates)
	if rep.Failed > 0 {
		fmt.Fprintf(a.out, "%s %d files could not be cataloged (see log)\n", warnMark, rep.Failed)
	}
	return rep, nil
}

// Pull downloads remote files.
func (a *PipelineAdapter) Pull(ctx context.Context, req primary.PullRequest) (*primary.PullReport, error) {
	rep, err := a.ingest.Pull(ctx, req)
	if rep != nil {
		fmt.Fprintf(a.out, "%s %d requested: %d downloaded, %d present, %d ignored\n",
			okMark, rep.Requested, rep.Downloaded, rep.Present, rep.Ignored)
		if rep.Failed > 0 {
			fmt.Fprintf(a.out, "%s %d downloads failed; pull again to retry\n", warnMark, rep.Failed)
		}
	}
	return rep, err
}

// Dates prints the days stored for one kind.
func (a *PipelineAdapter) Dates(ctx context.Context, scope asset.Scope, kind rows.Kind) ([]time.Time, error) {
	dates, err := a.store.Dates(ctx, scope, kind)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		fmt.Fprintf(a.out, "No %s data stored.\n", kind)
		return dates, nil
	}
	for _, d := range dates {
		fmt.Fprintln(a.out, d.Format(time.DateOnly))
	}
	return dates, nil
}

// Delete removes a store's days in [start, end].
func (a *PipelineAdapter) Delete(ctx context.Context, scope asset.Scope, kind rows.Kind, start, end time.Time) error {
	if err := a.store.DeleteRange(ctx, scope, kind, start, end); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Deleted %s %s through %s\n", okMark, kind, start.Format(time.DateOnly), end.Format(time.DateOnly))
	return nil
}

// Consolidate merges store fragments.
func (a *PipelineAdapter) Consolidate(ctx context.Context, scope asset.Scope) error {
	if err := a.store.Consolidate(ctx, scope); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Consolidated stores for %s\n", okMark, scope)
	return nil
}

// Export writes shots as CSV to w and reports the count on the adapter's
// output.
func (a *PipelineAdapter) Export(ctx context.Context, scope asset.Scope, start, end time.Time, w io.Writer) (int, error) {
	n, err := a.store.ExportShots(ctx, scope, start, end, w)
	if err != nil {
		return n, err
	}
	fmt.Fprintf(a.out, "%s Exported %d shots\n", okMark, n)
	return n, nil
}

// Products resolves GNSS products for a day.
func (a *PipelineAdapter) Products(ctx context.Context, day time.Time) error {
	set, err := a.store.FetchProducts(ctx, day)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Products for %s\n", okMark, set.Day.Format(time.DateOnly))
	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	for _, k := range sortedKinds(set.Files) {
		fmt.Fprintf(w, "  %s\t%s\n", k, set.Files[k])
	}
	fmt.Fprintf(w, "  config\t%s\n", set.ConfigFile)
	w.Flush()
	return nil
}

func sortedKinds(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
