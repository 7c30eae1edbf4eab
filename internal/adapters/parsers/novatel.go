package parsers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
)

// Channel tracking status system ids.
var systemCodes = map[int]string{
	0: "G", 1: "R", 2: "S", 3: "E", 5: "C", 6: "J", 7: "I",
}

// signalCodes maps (system, signal type) to the RINEX 3 band+attribute.
var signalCodes = map[[2]int]string{
	{0, 0}: "1C", {0, 5}: "2P", {0, 9}: "2W", {0, 14}: "5Q", {0, 16}: "1L", {0, 17}: "2L",
	{1, 0}: "1C", {1, 1}: "2C", {1, 5}: "2P", {1, 6}: "3Q",
	{2, 0}: "1C", {2, 6}: "5I",
	{3, 2}: "1C", {3, 6}: "6C", {3, 12}: "5Q", {3, 17}: "7Q", {3, 20}: "8Q",
	{5, 0}: "2I", {5, 1}: "7I", {5, 2}: "6I", {5, 4}: "2I", {5, 5}: "7I", {5, 6}: "6I", {5, 7}: "1P", {5, 9}: "5P",
	{6, 0}: "1C", {6, 14}: "5Q", {6, 16}: "1L", {6, 17}: "2L",
	{7, 0}: "5A",
}

// ParseNovatelASCII decodes RANGEA observations and INSPVAA/INSSTDEVA
// navigation records from a NovAtel ASCII log. Unknown records are ignored.
func ParseNovatelASCII(ctx context.Context, path string) ([]*rows.Observable, []*rows.IMUPosition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open %s: %v", asset.ErrParse, path, err)
	}
	defer f.Close()

	p := &novatelParser{lock: make(map[string]float64)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		text := sc.Text()
		i := strings.IndexByte(text, '#')
		if i < 0 {
			continue
		}
		msg := text[i:]
		if j := strings.IndexByte(msg, '*'); j >= 0 {
			msg = msg[:j]
		}
		header, body, ok := strings.Cut(msg, ";")
		if !ok {
			continue
		}

		var perr error
		switch {
		case strings.HasPrefix(header, "#RANGEA,"):
			perr = p.rangea(header, body)
		case strings.HasPrefix(header, "#INSPVAA,"):
			perr = p.inspvaa(body)
		case strings.HasPrefix(header, "#INSSTDEVA,"):
			perr = p.insstdeva(header, body)
		}
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: %s line %d: %v", asset.ErrParse, path, line, perr)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read %s: %v", asset.ErrParse, path, err)
	}
	return p.obs, p.imu, nil
}

type novatelParser struct {
	obs  []*rows.Observable
	imu  []*rows.IMUPosition
	std  []float64
	lock map[string]float64
}

// headerTime reads gps week and seconds from a long ASCII header.
func headerTime(header string) (time.Time, error) {
	fields := strings.Split(header, ",")
	if len(fields) < 7 {
		return time.Time{}, fmt.Errorf("short header %q", header)
	}
	week, err := strconv.Atoi(fields[5])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad gps week %q", fields[5])
	}
	sow, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad gps seconds %q", fields[6])
	}
	return geodesy.FromGPSWeek(week, sow), nil
}

func (p *novatelParser) rangea(header, body string) error {
	t, err := headerTime(header)
	if err != nil {
		return err
	}
	fields := strings.Split(body, ",")
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("bad observation count %q", fields[0])
	}

	const per = 10
	ms := t.UnixMilli()
	for i := 0; i < n; i++ {
		base := 1 + i*per
		if base+per > len(fields) {
			break
		}
		rec := fields[base : base+per]
		vals, ok := parseFloats(rec[:9])
		if !ok {
			continue
		}
		status, err := strconv.ParseUint(rec[9], 16, 32)
		if err != nil {
			continue
		}
		sysID := int(status>>16) & 0x7
		sigID := int(status>>21) & 0x1f
		sys, ok := systemCodes[sysID]
		if !ok {
			continue
		}
		code, ok := signalCodes[[2]int{sysID, sigID}]
		if !ok {
			continue
		}

		prn := int(vals[0])
		if prn < 1 || prn > 255 {
			continue
		}
		fcn := 0
		if sys == "R" {
			fcn = int(vals[1]) - 7
		}

		lockTime := vals[8]
		key := fmt.Sprintf("%s%03d%s", sys, prn, code)
		slip := 0
		if prev, seen := p.lock[key]; seen && lockTime < prev {
			slip = 1
		}
		if (status>>10)&0x7 < 3 {
			slip = 1
		}
		p.lock[key] = lockTime

		flags := 0
		if (status>>28)&1 == 1 {
			flags |= 1
		}
		snr := vals[7]
		if snr < 0 {
			snr = 0
		}

		p.obs = append(p.obs, &rows.Observable{
			TimeMS:  ms,
			Sys:     sys,
			Sat:     prn,
			Obs:     code,
			Range:   vals[2],
			Phase:   -vals[4],
			Doppler: vals[6],
			SNR:     snr,
			Slip:    slip,
			Flags:   flags,
			FCN:     fcn,
		})
	}
	return nil
}

func (p *novatelParser) inspvaa(body string) error {
	fields := strings.Split(body, ",")
	if len(fields) < 11 {
		return fmt.Errorf("INSPVAA has %d fields", len(fields))
	}
	week, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("bad gps week %q", fields[0])
	}
	vals, ok := parseFloats(fields[1:11])
	if !ok {
		return fmt.Errorf("bad INSPVAA values")
	}

	row := &rows.IMUPosition{
		Timestamp:     geodesy.FromGPSWeek(week, vals[0]),
		Latitude:      vals[1],
		Longitude:     vals[2],
		Height:        vals[3],
		NorthVelocity: vals[4],
		EastVelocity:  vals[5],
		UpVelocity:    vals[6],
		Roll:          vals[7],
		Pitch:         vals[8],
		Azimuth:       vals[9],
	}
	if p.std != nil {
		applyStd(row, p.std)
	}
	p.imu = append(p.imu, row)
	return nil
}

func (p *novatelParser) insstdeva(header, body string) error {
	t, err := headerTime(header)
	if err != nil {
		return err
	}
	fields := strings.Split(body, ",")
	if len(fields) < 9 {
		return fmt.Errorf("INSSTDEVA has %d fields", len(fields))
	}
	std, ok := parseFloats(fields[:9])
	if !ok {
		return fmt.Errorf("bad INSSTDEVA values")
	}
	p.std = std
	if n := len(p.imu); n > 0 && p.imu[n-1].Timestamp.Equal(t) {
		applyStd(p.imu[n-1], std)
	}
	return nil
}

func applyStd(r *rows.IMUPosition, s []float64) {
	r.LatitudeStd = rows.Float(s[0])
	r.LongitudeStd = rows.Float(s[1])
	r.HeightStd = rows.Float(s[2])
	r.NorthVelocityStd = rows.Float(s[3])
	r.EastVelocityStd = rows.Float(s[4])
	r.UpVelocityStd = rows.Float(s[5])
	r.RollStd = rows.Float(s[6])
	r.PitchStd = rows.Float(s[7])
	r.AzimuthStd = rows.Float(s[8])
}

func parseFloats(fields []string) ([]float64, bool) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
