// Package rinex writes daily RINEX 3.04 observation files from stored
// observables and reads the time span back from their headers.
package rinex

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/discovery"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
	"github.com/example/sfg/internal/ports/secondary"
)

const (
	version   = 3.04
	maxTypes  = 13
	program   = "sfg"
	timeScale = "GPS"
)

// Writer implements secondary.RinexWriter.
type Writer struct {
	log *zap.Logger
	now func() time.Time
}

var _ secondary.RinexWriter = (*Writer)(nil)

// NewWriter creates a RINEX writer.
func NewWriter(log *zap.Logger) *Writer {
	return &Writer{log: log, now: func() time.Time { return time.Now().UTC() }}
}

type satObs map[string]*rows.Observable // signal code -> observation

type epoch struct {
	ms   int64
	sats map[string]satObs // "G05" -> signals
}

// WriteDay writes the observations of req.Day to OutputDir. Epoch times are
// written on the GPS scale. A day with no usable epochs returns
// asset.ErrNoCandidates.
func (w *Writer) WriteDay(ctx context.Context, obs []*rows.Observable, req secondary.RinexRequest) (*secondary.RinexFile, error) {
	day := rows.Day(req.Day)
	epochs, types := collect(obs, day, req.Interval)
	if len(epochs) == 0 {
		return nil, fmt.Errorf("rinex %s %s: %w", req.Site, day.Format(time.DateOnly), asset.ErrNoCandidates)
	}

	year, doy := geodesy.DayOfYear(day)
	name := discovery.RinexName(req.Site, year, doy)
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rinex dir: %w", err)
	}

	tmp, err := os.CreateTemp(req.OutputDir, ".rinex-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create rinex file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	first := time.UnixMilli(epochs[0].ms).UTC()
	last := time.UnixMilli(epochs[len(epochs)-1].ms).UTC()
	w.writeHeader(bw, req, types, first, last)
	for i, e := range epochs {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				tmp.Close()
				return nil, err
			}
		}
		writeEpoch(bw, e, types)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write rinex: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close rinex: %w", err)
	}

	path := filepath.Join(req.OutputDir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to move rinex into place: %w", err)
	}

	w.log.Info("wrote rinex",
		zap.String("path", path),
		zap.Int("epochs", len(epochs)),
		zap.Time("first", first),
		zap.Time("last", last))

	return &secondary.RinexFile{Path: path, Start: first, End: last, Epochs: len(epochs)}, nil
}

// collect groups the day's observations into epochs and derives the signal
// codes observed per system.
func collect(obs []*rows.Observable, day time.Time, interval time.Duration) ([]*epoch, map[string][]string) {
	start, end := day.UnixMilli(), day.AddDate(0, 0, 1).UnixMilli()
	step := interval.Milliseconds()

	byMS := make(map[int64]*epoch)
	codes := make(map[string]map[string]struct{})
	for _, o := range obs {
		if o.TimeMS < start || o.TimeMS >= end {
			continue
		}
		if step > 0 && o.TimeMS%step != 0 {
			continue
		}
		e, ok := byMS[o.TimeMS]
		if !ok {
			e = &epoch{ms: o.TimeMS, sats: make(map[string]satObs)}
			byMS[o.TimeMS] = e
		}
		sat := fmt.Sprintf("%s%02d", o.Sys, o.Sat%100)
		if e.sats[sat] == nil {
			e.sats[sat] = make(satObs)
		}
		e.sats[sat][o.Obs] = o
		if codes[o.Sys] == nil {
			codes[o.Sys] = make(map[string]struct{})
		}
		codes[o.Sys][o.Obs] = struct{}{}
	}

	epochs := make([]*epoch, 0, len(byMS))
	for _, e := range byMS {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i].ms < epochs[j].ms })

	types := make(map[string][]string, len(codes))
	for sys, set := range codes {
		var cs []string
		for c := range set {
			cs = append(cs, c)
		}
		sort.Strings(cs)
		for _, c := range cs {
			for _, kind := range []string{"C", "L", "D", "S"} {
				types[sys] = append(types[sys], kind+c)
			}
		}
	}
	return epochs, types
}

func headerLine(b *bufio.Writer, content, label string) {
	fmt.Fprintf(b, "%-60.60s%-20s\n", content, label)
}

func timeLine(t time.Time) string {
	t = t.Add(geodesy.LeapSeconds * time.Second)
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return fmt.Sprintf("%6d%6d%6d%6d%6d%13.7f%8s", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), sec, timeScale)
}

func sortedSystems(types map[string][]string) []string {
	out := make([]string, 0, len(types))
	for s := range types {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (w *Writer) writeHeader(b *bufio.Writer, req secondary.RinexRequest, types map[string][]string, first, last time.Time) {
	headerLine(b, fmt.Sprintf("%9.2f%11s%-20s%-20s", version, "", "OBSERVATION DATA", "M"), "RINEX VERSION / TYPE")
	headerLine(b, fmt.Sprintf("%-20s%-20s%-20s", program, "", w.now().Format("20060102 150405")+" UTC"), "PGM / RUN BY / DATE")
	headerLine(b, strings.ToUpper(req.Site), "MARKER NAME")
	headerLine(b, "GEODETIC", "MARKER TYPE")
	headerLine(b, "", "OBSERVER / AGENCY")
	headerLine(b, "", "REC # / TYPE / VERS")
	headerLine(b, "", "ANT # / TYPE")
	headerLine(b, fmt.Sprintf("%14.4f%14.4f%14.4f", 0.0, 0.0, 0.0), "APPROX POSITION XYZ")
	headerLine(b, fmt.Sprintf("%14.4f%14.4f%14.4f", 0.0, 0.0, 0.0), "ANTENNA: DELTA H/E/N")

	for _, sys := range sortedSystems(types) {
		ts := types[sys]
		for i := 0; i < len(ts); i += maxTypes {
			end := min(i+maxTypes, len(ts))
			var prefix string
			if i == 0 {
				prefix = fmt.Sprintf("%-1s  %3d", sys, len(ts))
			} else {
				prefix = strings.Repeat(" ", 6)
			}
			var sb strings.Builder
			sb.WriteString(prefix)
			for _, t := range ts[i:end] {
				sb.WriteString(" " + t)
			}
			headerLine(b, sb.String(), "SYS / # / OBS TYPES")
		}
	}

	if req.Interval > 0 {
		headerLine(b, fmt.Sprintf("%10.3f", req.Interval.Seconds()), "INTERVAL")
	}
	headerLine(b, timeLine(first), "TIME OF FIRST OBS")
	headerLine(b, timeLine(last), "TIME OF LAST OBS")
	headerLine(b, "", "END OF HEADER")
}

func writeEpoch(b *bufio.Writer, e *epoch, types map[string][]string) {
	t := time.UnixMilli(e.ms).UTC().Add(geodesy.LeapSeconds * time.Second)
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9

	sats := make([]string, 0, len(e.sats))
	for s := range e.sats {
		sats = append(sats, s)
	}
	sort.Strings(sats)

	fmt.Fprintf(b, "> %4d %02d %02d %02d %02d%11.7f  %1d%3d\n",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), sec, 0, len(sats))

	for _, sat := range sats {
		signals := e.sats[sat]
		b.WriteString(sat)
		for _, typ := range types[sat[:1]] {
			o, ok := signals[typ[1:]]
			if !ok {
				b.WriteString(strings.Repeat(" ", 16))
				continue
			}
			writeValue(b, typ[0], o)
		}
		b.WriteByte('\n')
	}
}

func writeValue(b *bufio.Writer, kind byte, o *rows.Observable) {
	var v float64
	lli := " "
	switch kind {
	case 'C':
		v = o.Range
	case 'L':
		v = o.Phase
		if o.Slip > 0 {
			lli = "1"
		}
	case 'D':
		v = o.Doppler
	case 'S':
		v = o.SNR
	}
	if v == 0 || math.IsNaN(v) || math.Abs(v) >= 1e10 {
		b.WriteString(strings.Repeat(" ", 16))
		return
	}
	fmt.Fprintf(b, "%14.3f%s%s", v, lli, ssi(o.SNR))
}

// ssi maps C/N0 in dB-Hz onto the RINEX 1-9 signal strength scale.
func ssi(snr float64) string {
	if snr <= 0 {
		return " "
	}
	n := int(snr / 6)
	return fmt.Sprintf("%d", max(1, min(9, n)))
}
