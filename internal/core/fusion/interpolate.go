package fusion

import (
	"math"
	"sort"

	"github.com/soniakeys/coord"
	"gonum.org/v1/gonum/stat"

	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
)

const exactMatch = 1e-6

// RadiusInterpolate estimates the value at query from the samples within
// ±radius of it, weighted by inverse time distance. An exact match returns
// that sample; no neighbour returns NaN. times must be sorted.
func RadiusInterpolate(times, values []float64, query, radius float64) float64 {
	lo := sort.SearchFloat64s(times, query-radius)
	hi := sort.SearchFloat64s(times, query+radius+exactMatch)
	if lo >= hi {
		return math.NaN()
	}
	vs := make([]float64, 0, hi-lo)
	ws := make([]float64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		d := math.Abs(times[i] - query)
		if d > radius {
			continue
		}
		if d < exactMatch {
			return values[i]
		}
		vs = append(vs, values[i])
		ws = append(ws, 1/d)
	}
	if len(vs) == 0 {
		return math.NaN()
	}
	return stat.Mean(vs, ws)
}

// Series holds smoothed states as parallel sorted columns.
type Series struct {
	T          []float64
	X, Y, Z    []float64
	SX, SY, SZ []float64
}

// NewSeries splits states into columns. states must be sorted by time.
func NewSeries(states []State) Series {
	s := Series{}
	for _, st := range states {
		s.T = append(s.T, st.T)
		s.X = append(s.X, st.Pos.X)
		s.Y = append(s.Y, st.Pos.Y)
		s.Z = append(s.Z, st.Pos.Z)
		s.SX = append(s.SX, st.PosStd[0])
		s.SY = append(s.SY, st.PosStd[1])
		s.SZ = append(s.SZ, st.PosStd[2])
	}
	return s
}

// At interpolates position and its std at t. ok is false when any component
// has no neighbour within radius.
func (s Series) At(t, radius float64) (pos coord.Cart, std [3]float64, ok bool) {
	pos = coord.Cart{
		X: RadiusInterpolate(s.T, s.X, t, radius),
		Y: RadiusInterpolate(s.T, s.Y, t, radius),
		Z: RadiusInterpolate(s.T, s.Z, t, radius),
	}
	std = [3]float64{
		RadiusInterpolate(s.T, s.SX, t, radius),
		RadiusInterpolate(s.T, s.SY, t, radius),
		RadiusInterpolate(s.T, s.SZ, t, radius),
	}
	ok = !math.IsNaN(pos.X) && !math.IsNaN(pos.Y) && !math.IsNaN(pos.Z)
	return pos, std, ok
}

// Pose is an attitude-bearing position sample used for coarse alignment.
type Pose struct {
	T     float64
	Pos   coord.Cart
	Head  float64
	Pitch float64
	Roll  float64
}

// PosesFromIMU builds a time-sorted pose series from INS rows.
func PosesFromIMU(in []*rows.IMUPosition) []Pose {
	out := make([]Pose, 0, len(in))
	for _, r := range in {
		out = append(out, Pose{
			T:     rows.ToUnixSeconds(r.Timestamp),
			Pos:   geodesy.ToECEF(r.Latitude, r.Longitude, r.Height),
			Head:  r.Azimuth,
			Pitch: r.Pitch,
			Roll:  r.Roll,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}

// NearestPose returns the sample closest in time to t, provided it lies
// within maxGap seconds. Ties go to the earlier sample.
func NearestPose(series []Pose, t, maxGap float64) (Pose, bool) {
	if len(series) == 0 {
		return Pose{}, false
	}
	i := sort.Search(len(series), func(i int) bool { return series[i].T >= t })
	best := -1
	bestD := math.Inf(1)
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(series) {
			continue
		}
		if d := math.Abs(series[j].T - t); d < bestD {
			best, bestD = j, d
		}
	}
	if best < 0 || bestD > maxGap {
		return Pose{}, false
	}
	return series[best], true
}

// nearestGap returns the time distance from t to the closest observation.
func nearestGap(obs []Obs, t float64) float64 {
	i := sort.Search(len(obs), func(i int) bool { return obs[i].T >= t })
	gap := math.Inf(1)
	if i < len(obs) {
		gap = obs[i].T - t
	}
	if i > 0 {
		gap = math.Min(gap, t-obs[i-1].T)
	}
	return gap
}
