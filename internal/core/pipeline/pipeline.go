// Package pipeline contains the pure planning logic of the stage orchestrator:
// stage names and order, candidate selection helpers, merge signatures and
// run reports.
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/effects"
	"github.com/example/sfg/internal/core/rows"
)

// Name identifies a stage.
type Name string

const (
	StageNovatel  Name = "novatel"
	StageRinex    Name = "rinex"
	StagePride    Name = "pride"
	StageKin      Name = "kin"
	StageAcoustic Name = "acoustic"
	StageFusion   Name = "fusion"
)

// Order returns the canonical stage order.
func Order() []Name {
	return []Name{StageNovatel, StageRinex, StagePride, StageKin, StageAcoustic, StageFusion}
}

// ParseName converts a string into a stage Name.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, o := range Order() {
		if o == n {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q", asset.ErrConfig, s)
}

// Candidate is one independent unit of stage work.
type Candidate struct {
	Scope   asset.Scope
	Asset *asset.Record // the parent being transformed, if any
	Day   time.Time     // day-keyed work (rinex, fusion)
	Label string
}

func (c Candidate) String() string {
	switch {
	case c.Label != "":
		return c.Label
	case c.Asset != nil:
		return fmt.Sprintf("asset %d (%s)", c.Asset.ID, c.Asset.StorageRef())
	case !c.Day.IsZero():
		return c.Day.Format(time.DateOnly)
	}
	return "candidate"
}

// Result is what processing one candidate wants committed. A pending skip
// leaves the candidate unprocessed so a later run picks it up again.
type Result struct {
	Effects []effects.Effect
	Skipped bool
	Pending bool
	Reason  string
}

// Outcome classifies a processed candidate.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Report summarizes one stage run.
type Report struct {
	Stage         Name
	Candidates    int
	Processed     int
	Skipped       int
	Failed        int
	Pending       int // skipped candidates left for a later run
	RowsWritten   int
	Duration      time.Duration
	LedgerSkipped bool
}

// Add tallies one candidate outcome.
func (r *Report) Add(o Outcome) {
	switch o {
	case OutcomeProcessed:
		r.Processed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// Summary renders the "N of M candidates processed" line.
func (r Report) Summary() string {
	if r.LedgerSkipped {
		return fmt.Sprintf("%s: already complete (ledger)", r.Stage)
	}
	return fmt.Sprintf("%s: %d of %d candidates processed (%d skipped, %d failed) in %s",
		r.Stage, r.Processed, r.Candidates, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))
}

// RinexSignature is the ledger signature for RINEX generation of one year.
func RinexSignature(s asset.Scope, storePath string, year int) string {
	return fmt.Sprintf("N-%s|ST-%s|SV-%s|TDB-%s|YEAR-%d", s.Network, s.Station, s.Campaign, storePath, year)
}

// DaysInYear filters dates to those in year, sorted and de-duplicated.
func DaysInYear(dates []time.Time, year int) []time.Time {
	var out []time.Time
	for _, d := range uniqueDays(dates) {
		if d.Year() == year {
			out = append(out, d)
		}
	}
	return out
}

// DateSignature renders dates as a ledger signature set.
func DateSignature(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, rows.Day(d).Format(time.DateOnly))
	}
	return out
}

func uniqueDays(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, d := range dates {
		d = rows.Day(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
