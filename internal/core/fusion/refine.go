package fusion

import (
	"fmt"
	"sort"

	"github.com/example/sfg/internal/core/rows"
)

// Config tunes one day of refinement.
type Config struct {
	OutlierRadius float64 // meters from the median position; 0 disables
	InterpRadius  float64 // seconds
	BridgeGap     float64 // max seconds from a query epoch to the nearest measurement
	AlignMaxGap   float64 // max seconds for coarse pose alignment
	Kalman        KalmanSmoother
}

// DefaultConfig returns the refinement defaults.
func DefaultConfig() Config {
	return Config{
		OutlierRadius: 5000,
		InterpRadius:  0.2,
		BridgeGap:     3,
		AlignMaxGap:   1,
		Kalman:        DefaultKalman(),
	}
}

// Diagnostics summarizes a refinement run.
type Diagnostics struct {
	Input           int
	Updated         int
	UnfilledPing    int
	UnfilledReturn  int
	OutliersDropped int
	SpikesDropped   int
	Aligned         int
	FilterStates    int
}

// Unfilled is the number of pose fields left unset.
func (d Diagnostics) Unfilled() int { return d.UnfilledPing + d.UnfilledReturn }

// DayResult is the refined shot set for one calendar day.
type DayResult struct {
	Shots       []*rows.Shot
	Diagnostics Diagnostics
}

// RefineDay aligns and refines shots against the day's INS and kinematic
// positions. The returned shots are copies sorted by ping time; inputs are not
// mutated. With no shots or no positions, shots come back unmodified.
func RefineDay(shots []*rows.Shot, imu []*rows.IMUPosition, kin []*rows.Position, cfg Config) (DayResult, error) {
	out := make([]*rows.Shot, len(shots))
	for i, s := range shots {
		out[i] = s.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PingTime != out[j].PingTime {
			return out[i].PingTime < out[j].PingTime
		}
		return out[i].TransponderID < out[j].TransponderID
	})
	res := DayResult{Shots: out, Diagnostics: Diagnostics{Input: len(out)}}
	if len(out) == 0 || (len(imu) == 0 && len(kin) == 0) {
		return res, nil
	}

	kinObs, spikes := PrepareKin(kin)
	all := Combine(PrepareIMU(imu), kinObs)
	obs, dropped := FilterOutliers(all, cfg.OutlierRadius)
	res.Diagnostics.SpikesDropped = spikes
	res.Diagnostics.OutliersDropped = dropped
	if len(obs) == 0 {
		res.Diagnostics.UnfilledPing = len(out)
		res.Diagnostics.UnfilledReturn = len(out)
		return res, nil
	}

	// Alignment draws only on poses that survived outlier rejection.
	poses := PosesFromIMU(imu)
	if cfg.OutlierRadius > 0 {
		poses = FilterPoses(poses, MedianPosition(all), cfg.OutlierRadius)
	}
	for _, s := range out {
		if hasPose(s) {
			continue
		}
		p0, ok0 := NearestPose(poses, s.PingTime, cfg.AlignMaxGap)
		p1, ok1 := NearestPose(poses, s.ReturnTime, cfg.AlignMaxGap)
		if ok0 && ok1 {
			s.Head0, s.Pitch0, s.Roll0 = p0.Head, p0.Pitch, p0.Roll
			s.East0, s.North0, s.Up0 = p0.Pos.X, p0.Pos.Y, p0.Pos.Z
			s.Head1, s.Pitch1, s.Roll1 = p1.Head, p1.Pitch, p1.Roll
			s.East1, s.North1, s.Up1 = p1.Pos.X, p1.Pos.Y, p1.Pos.Z
			res.Diagnostics.Aligned++
		}
	}

	epochs := make([]Obs, len(obs), len(obs)+2*len(out))
	copy(epochs, obs)
	for _, s := range out {
		for _, q := range []float64{s.PingTime, s.ReturnTime} {
			if nearestGap(obs, q) <= cfg.BridgeGap {
				epochs = append(epochs, Obs{T: q, Query: true})
			}
		}
	}
	sort.SliceStable(epochs, func(i, j int) bool { return epochs[i].T < epochs[j].T })

	states, err := cfg.Kalman.Run(epochs)
	if err != nil {
		return res, fmt.Errorf("failed to smooth positions: %w", err)
	}
	res.Diagnostics.FilterStates = len(states)
	series := NewSeries(states)

	for _, s := range out {
		pos0, std0, ok0 := series.At(s.PingTime, cfg.InterpRadius)
		pos1, std1, ok1 := series.At(s.ReturnTime, cfg.InterpRadius)
		if ok0 {
			s.East0, s.North0, s.Up0 = pos0.X, pos0.Y, pos0.Z
			s.EastStd0, s.NorthStd0, s.UpStd0 = rows.Float(std0[0]), rows.Float(std0[1]), rows.Float(std0[2])
		} else {
			res.Diagnostics.UnfilledPing++
		}
		if ok1 {
			s.East1, s.North1, s.Up1 = pos1.X, pos1.Y, pos1.Z
			s.EastStd1, s.NorthStd1, s.UpStd1 = rows.Float(std1[0]), rows.Float(std1[1]), rows.Float(std1[2])
		} else {
			res.Diagnostics.UnfilledReturn++
		}
		s.IsUpdated = ok0 && ok1
		if s.IsUpdated {
			res.Diagnostics.Updated++
		}
	}
	return res, nil
}

func hasPose(s *rows.Shot) bool {
	return s.East0 != 0 || s.North0 != 0 || s.Up0 != 0
}
