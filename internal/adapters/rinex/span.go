package rinex

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
)

// ReadSpan returns the UTC span of a RINEX observation file. The end falls
// back to the last epoch line, then to the end of the first epoch's day.
func ReadSpan(path string) (*time.Time, *time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open %s: %v", asset.ErrParse, path, err)
	}
	defer f.Close()

	var first, last, lastEpoch *time.Time
	inHeader := true
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if inHeader {
			label := ""
			if len(line) > 60 {
				label = strings.TrimSpace(line[60:])
			}
			switch label {
			case "TIME OF FIRST OBS":
				first = headerTime(line[:60])
			case "TIME OF LAST OBS":
				last = headerTime(line[:60])
			case "END OF HEADER":
				inHeader = false
				if first != nil && last != nil {
					return first, last, nil
				}
			}
			continue
		}
		if strings.HasPrefix(line, ">") {
			if t := epochTime(line); t != nil {
				lastEpoch = t
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read %s: %v", asset.ErrParse, path, err)
	}
	if first == nil {
		return nil, nil, fmt.Errorf("%w: %s has no TIME OF FIRST OBS", asset.ErrParse, path)
	}

	switch {
	case last != nil:
	case lastEpoch != nil:
		last = lastEpoch
	default:
		end := rows.Day(*first).AddDate(0, 0, 1).Add(-time.Second)
		last = &end
	}
	return first, last, nil
}

// headerTime parses "  2024     6     1     0     0    0.0000000     GPS".
func headerTime(s string) *time.Time {
	fields := strings.Fields(s)
	if len(fields) < 6 {
		return nil
	}
	t, ok := civil(fields[:6])
	if !ok {
		return nil
	}
	if len(fields) < 7 || fields[6] == timeScale {
		t = geodesy.GPSToUTC(t)
	}
	return &t
}

// epochTime parses "> 2024 06 01 00 00  0.0000000  0 12".
func epochTime(line string) *time.Time {
	fields := strings.Fields(strings.TrimPrefix(line, ">"))
	if len(fields) < 6 {
		return nil
	}
	t, ok := civil(fields[:6])
	if !ok {
		return nil
	}
	t = geodesy.GPSToUTC(t)
	return &t
}

func civil(f []string) (time.Time, bool) {
	var v [5]int
	for i := 0; i < 5; i++ {
		n, err := strconv.Atoi(f[i])
		if err != nil {
			return time.Time{}, false
		}
		v[i] = n
	}
	sec, err := strconv.ParseFloat(f[5], 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], 0, 0, time.UTC).
		Add(time.Duration(sec * float64(time.Second))), true
}
