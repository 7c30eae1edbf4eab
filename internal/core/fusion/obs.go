// Package fusion refines acoustic shot poses from GNSS and inertial position
// series. Everything here is pure: inputs are pre-loaded rows, outputs are new
// rows and diagnostics.
package fusion

import (
	"math"
	"sort"

	"github.com/soniakeys/coord"
	"gonum.org/v1/gonum/stat"

	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/core/rows"
)

const (
	kinPosSigma     = 0.1
	kinSpikeZ       = 4.0
	defaultIMUSigma = 1.0
	defaultVelSigma = 0.1
)

// Obs is one position (and optional velocity) measurement in ECEF, or a
// query-only epoch at which the smoother must emit a state.
type Obs struct {
	T        float64 // unix seconds
	Pos      coord.Cart
	PosSigma float64
	Vel      coord.Cart
	VelSigma float64
	HasVel   bool
	Query    bool
}

func (o Obs) hasNaN() bool {
	if o.Query {
		return false
	}
	v := []float64{o.T, o.Pos.X, o.Pos.Y, o.Pos.Z, o.PosSigma}
	if o.HasVel {
		v = append(v, o.Vel.X, o.Vel.Y, o.Vel.Z, o.VelSigma)
	}
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// PrepareIMU converts INS epochs to ECEF observations. Velocities come from
// the NEU velocity columns rotated into ECEF; sigmas from the std columns,
// back-filled then forward-filled.
func PrepareIMU(in []*rows.IMUPosition) []Obs {
	if len(in) == 0 {
		return nil
	}
	posSig := make([]float64, len(in))
	velSig := make([]float64, len(in))
	for i, r := range in {
		posSig[i] = rms3(r.LatitudeStd, r.LongitudeStd, r.HeightStd)
		velSig[i] = rms3(r.NorthVelocityStd, r.EastVelocityStd, r.UpVelocityStd)
	}
	fill(posSig, defaultIMUSigma)
	fill(velSig, defaultVelSigma)

	out := make([]Obs, 0, len(in))
	for i, r := range in {
		out = append(out, Obs{
			T:        rows.ToUnixSeconds(r.Timestamp),
			Pos:      geodesy.ToECEF(r.Latitude, r.Longitude, r.Height),
			PosSigma: posSig[i],
			Vel:      enuToECEF(r.Latitude, r.Longitude, r.EastVelocity, r.NorthVelocity, r.UpVelocity),
			VelSigma: velSig[i],
			HasVel:   true,
		})
	}
	return out
}

// PrepareKin converts kinematic GNSS epochs to observations. Velocity is the
// first difference of position (the first epoch takes the next one's value).
// Epochs whose absolute velocity z-score exceeds 4 on any axis are dropped;
// the count of dropped epochs is returned.
func PrepareKin(in []*rows.Position) ([]Obs, int) {
	if len(in) == 0 {
		return nil, 0
	}
	sorted := make([]*rows.Position, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	obs := make([]Obs, len(sorted))
	for i, r := range sorted {
		obs[i] = Obs{
			T:        rows.ToUnixSeconds(r.Timestamp),
			Pos:      coord.Cart{X: r.East, Y: r.North, Z: r.Up},
			PosSigma: kinPosSigma,
		}
	}
	if len(obs) == 1 {
		return obs, 0
	}
	for i := 1; i < len(obs); i++ {
		dt := obs[i].T - obs[i-1].T
		if dt <= 0 {
			obs[i].Vel = obs[i-1].Vel
			continue
		}
		var d coord.Cart
		d.Sub(&obs[i].Pos, &obs[i-1].Pos)
		obs[i].Vel = coord.Cart{X: d.X / dt, Y: d.Y / dt, Z: d.Z / dt}
		obs[i].VelSigma = math.Sqrt2 * kinPosSigma / dt
		obs[i].HasVel = true
	}
	obs[0].Vel, obs[0].VelSigma, obs[0].HasVel = obs[1].Vel, obs[1].VelSigma, obs[1].HasVel

	axes := [3][]float64{make([]float64, len(obs)), make([]float64, len(obs)), make([]float64, len(obs))}
	for i, o := range obs {
		axes[0][i] = math.Abs(o.Vel.X)
		axes[1][i] = math.Abs(o.Vel.Y)
		axes[2][i] = math.Abs(o.Vel.Z)
	}
	var means, sds [3]float64
	for a := range axes {
		means[a], sds[a] = stat.PopMeanStdDev(axes[a], nil)
	}

	kept := obs[:0:0]
	for i, o := range obs {
		spike := false
		for a := range axes {
			if sds[a] > 0 && (axes[a][i]-means[a])/sds[a] >= kinSpikeZ {
				spike = true
			}
		}
		if !spike {
			kept = append(kept, o)
		}
	}
	return kept, len(obs) - len(kept)
}

// FilterOutliers drops observations farther than radius meters from the
// per-axis median position. It returns the kept observations and the number
// dropped.
func FilterOutliers(obs []Obs, radius float64) ([]Obs, int) {
	if len(obs) == 0 || radius <= 0 {
		return obs, 0
	}
	med := MedianPosition(obs)
	kept := make([]Obs, 0, len(obs))
	for _, o := range obs {
		if geodesy.Distance(o.Pos, med) <= radius {
			kept = append(kept, o)
		}
	}
	return kept, len(obs) - len(kept)
}

// FilterPoses drops poses farther than radius meters from center.
func FilterPoses(poses []Pose, center coord.Cart, radius float64) []Pose {
	kept := make([]Pose, 0, len(poses))
	for _, p := range poses {
		if geodesy.Distance(p.Pos, center) <= radius {
			kept = append(kept, p)
		}
	}
	return kept
}

// MedianPosition returns the per-axis median of the observed positions.
func MedianPosition(obs []Obs) coord.Cart {
	xs := make([]float64, len(obs))
	ys := make([]float64, len(obs))
	zs := make([]float64, len(obs))
	for i, o := range obs {
		xs[i], ys[i], zs[i] = o.Pos.X, o.Pos.Y, o.Pos.Z
	}
	return coord.Cart{X: median(xs), Y: median(ys), Z: median(zs)}
}

// Combine merges IMU and kinematic observations into one time-ordered series,
// dropping any observation carrying NaN.
func Combine(imu, kin []Obs) []Obs {
	out := make([]Obs, 0, len(imu)+len(kin))
	for _, o := range imu {
		if !o.hasNaN() {
			out = append(out, o)
		}
	}
	for _, o := range kin {
		if !o.hasNaN() {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(v))
	copy(s, v)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func enuToECEF(latDeg, lonDeg, e, n, u float64) coord.Cart {
	sp, cp := math.Sincos(latDeg * math.Pi / 180)
	sl, cl := math.Sincos(lonDeg * math.Pi / 180)
	return coord.Cart{
		X: -sl*e - sp*cl*n + cp*cl*u,
		Y: cl*e - sp*sl*n + cp*sl*u,
		Z: cp*n + sp*u,
	}
}

// rms3 returns the quadratic mean of three optional sigmas, NaN when none set.
func rms3(a, b, c *float64) float64 {
	var sum float64
	var n int
	for _, p := range []*float64{a, b, c} {
		if p != nil && !math.IsNaN(*p) {
			sum += *p * *p
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}

// fill back-fills then forward-fills NaN entries; an all-NaN slice takes def.
func fill(v []float64, def float64) {
	next := math.NaN()
	for i := len(v) - 1; i >= 0; i-- {
		if math.IsNaN(v[i]) {
			v[i] = next
		} else {
			next = v[i]
		}
	}
	prev := def
	for i := range v {
		if math.IsNaN(v[i]) {
			v[i] = prev
		} else {
			prev = v[i]
		}
	}
}
