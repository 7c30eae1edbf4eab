package parsers

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
)

// ParseKin reads a PRIDE-PPP kinematic solution. Data starts two lines after
// END OF HEADER; each epoch line holds MJD, seconds of day, optional "*",
// ECEF X/Y/Z, latitude, longitude, height, satellite counts and PDOP last.
// Malformed epoch lines are skipped. A file without a header is unparseable.
func ParseKin(ctx context.Context, path string) ([]*rows.Position, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", asset.ErrParse, path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	inData, skip := false, 0
	var out []*rows.Position
	for sc.Scan() {
		line := sc.Text()
		if !inData {
			if strings.TrimSpace(line) == "END OF HEADER" {
				inData, skip = true, 1
			}
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p, ok := parseKinLine(line); ok {
			out = append(out, p)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", asset.ErrParse, path, err)
	}
	if !inData {
		return nil, fmt.Errorf("%w: %s has no END OF HEADER", asset.ErrParse, path)
	}
	return out, nil
}

func parseKinLine(line string) (*rows.Position, bool) {
	fields := strings.Fields(line)
	cols := fields[:0:0]
	for _, f := range fields {
		if f != "*" {
			cols = append(cols, f)
		}
	}
	if len(cols) < 9 {
		return nil, false
	}

	mjd, err := strconv.Atoi(cols[0])
	if err != nil {
		return nil, false
	}
	vals, ok := parseFloats(cols[1:8])
	if !ok {
		return nil, false
	}
	nsat, err := strconv.Atoi(cols[8])
	if err != nil {
		nsat = 1
	}
	pdop := 0.0
	if len(cols) > 9 {
		if v, err := strconv.ParseFloat(cols[len(cols)-1], 64); err == nil {
			pdop = v
		}
	}

	return &rows.Position{
		Timestamp:          geodesy.GPSToUTC(geodesy.FromMJD(mjd, vals[0])),
		East:               vals[1],
		North:              vals[2],
		Up:                 vals[3],
		Latitude:           vals[4],
		Longitude:          vals[5],
		Height:             vals[6],
		NumberOfSatellites: nsat,
		PDOP:               pdop,
	}, true
}

// ReadWRMS computes the per-epoch weighted RMS of phase residuals, in mm,
// from a PRIDE-PPP residual file. Epochs are keyed by UTC millisecond.
func ReadWRMS(path string) (map[int64]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", asset.ErrParse, path, err)
	}
	defer f.Close()

	out := make(map[int64]float64)
	var (
		epoch        time.Time
		have         bool
		sumSq, sumWt float64
	)
	flush := func() {
		if have && sumWt > 0 {
			out[epoch.UnixMilli()] = math.Sqrt(sumSq/sumWt) * 1000
		}
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "TIM" {
			flush()
			have, sumSq, sumWt = false, 0, 0
			t, ok := parseResEpoch(fields)
			if ok {
				epoch, have = t, true
			}
			continue
		}
		if !have || len(fields) < 4 {
			continue
		}
		res, err1 := strconv.ParseFloat(fields[1], 64)
		wt, err2 := strconv.ParseFloat(strings.Replace(fields[3], "D", "E", 1), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		sumSq += res * res * wt
		sumWt += wt
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", asset.ErrParse, path, err)
	}
	return out, nil
}

// parseResEpoch reads "TIM yyyy mm dd hh mm ss.sss".
func parseResEpoch(fields []string) (time.Time, bool) {
	if len(fields) < 7 {
		return time.Time{}, false
	}
	var ymdhm [5]int
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return time.Time{}, false
		}
		ymdhm[i] = v
	}
	sec, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return time.Time{}, false
	}
	t := time.Date(ymdhm[0], time.Month(ymdhm[1]), ymdhm[2], ymdhm[3], ymdhm[4], 0, 0, time.UTC).
		Add(time.Duration(sec * float64(time.Second)))
	return geodesy.GPSToUTC(t), true
}

// AttachWRMS sets WRMS on positions whose epoch appears in wrms. WRMS values
// above the schema maximum are clipped.
func AttachWRMS(positions []*rows.Position, wrms map[int64]float64) int {
	n := 0
	for _, p := range positions {
		if v, ok := wrms[p.Timestamp.Round(time.Millisecond).UnixMilli()]; ok {
			p.WRMS = math.Min(v, 1000)
			n++
		}
	}
	return n
}
