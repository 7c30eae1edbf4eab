package fusion

import (
	"errors"
	"fmt"
	"math"

	"github.com/soniakeys/coord"
	"gonum.org/v1/gonum/mat"
)

// KalmanSmoother is a 6-state (ECEF position, velocity) constant-velocity
// filter with a Rauch–Tung–Striebel backward pass.
type KalmanSmoother struct {
	StartDt    float64 // seconds before the first epoch the filter is seeded at
	GNSSPosPSD float64 // position random-walk spectral density (m²/s)
	VelPSD     float64 // white-acceleration spectral density (m²/s³)
	CovErr     float64 // initial diagonal covariance
}

// DefaultKalman returns the filter tuning used when none is configured.
func DefaultKalman() KalmanSmoother {
	return KalmanSmoother{StartDt: 0.05, GNSSPosPSD: 3.125e-5, VelPSD: 0.0025, CovErr: 0.25}
}

// State is one smoothed epoch.
type State struct {
	T      float64
	Pos    coord.Cart
	Vel    coord.Cart
	PosStd [3]float64
}

var errNoMeasurements = errors.New("no position measurements to seed filter")

// Run filters then smooths obs, which must be sorted by time. One state is
// returned per input epoch, including query-only epochs.
func (k KalmanSmoother) Run(obs []Obs) ([]State, error) {
	n := len(obs)
	if n == 0 {
		return nil, nil
	}
	seed := -1
	for i, o := range obs {
		if !o.Query {
			seed = i
			break
		}
	}
	if seed < 0 {
		return nil, errNoMeasurements
	}

	x := mat.NewVecDense(6, []float64{
		obs[seed].Pos.X, obs[seed].Pos.Y, obs[seed].Pos.Z, 0, 0, 0,
	})
	if obs[seed].HasVel {
		x.SetVec(3, obs[seed].Vel.X)
		x.SetVec(4, obs[seed].Vel.Y)
		x.SetVec(5, obs[seed].Vel.Z)
	}
	P := scaledEye(6, k.CovErr)

	fs := make([]*mat.Dense, n)
	xps := make([]*mat.VecDense, n)
	pps := make([]*mat.Dense, n)
	xfs := make([]*mat.VecDense, n)
	pfs := make([]*mat.Dense, n)

	prev := obs[0].T - k.StartDt
	for i, o := range obs {
		dt := o.T - prev
		if dt < 0 {
			return nil, fmt.Errorf("observations not time ordered at index %d", i)
		}
		prev = o.T

		F := transition(dt)
		var xp mat.VecDense
		xp.MulVec(F, x)
		var fp, pp mat.Dense
		fp.Mul(F, P)
		pp.Mul(&fp, F.T())
		pp.Add(&pp, k.processNoise(dt))

		fs[i], xps[i], pps[i] = F, &xp, &pp

		if o.Query {
			x, P = mat.VecDenseCopyOf(&xp), mat.DenseCopyOf(&pp)
		} else {
			var err error
			x, P, err = update(&xp, &pp, o)
			if err != nil {
				return nil, fmt.Errorf("failed to update filter at t=%.3f: %w", o.T, err)
			}
		}
		xfs[i], pfs[i] = x, P
	}

	xs := make([]*mat.VecDense, n)
	ps := make([]*mat.Dense, n)
	xs[n-1], ps[n-1] = xfs[n-1], pfs[n-1]
	for i := n - 2; i >= 0; i-- {
		var ppInv mat.Dense
		if err := invert(&ppInv, pps[i+1]); err != nil {
			return nil, fmt.Errorf("failed to smooth at t=%.3f: %w", obs[i].T, err)
		}
		var C, tmp mat.Dense
		tmp.Mul(pfs[i], fs[i+1].T())
		C.Mul(&tmp, &ppInv)

		var dx, xsi mat.VecDense
		dx.SubVec(xs[i+1], xps[i+1])
		xsi.MulVec(&C, &dx)
		xsi.AddVec(xfs[i], &xsi)

		var dp, cdp, psi mat.Dense
		dp.Sub(ps[i+1], pps[i+1])
		cdp.Mul(&C, &dp)
		psi.Mul(&cdp, C.T())
		psi.Add(pfs[i], &psi)

		xs[i], ps[i] = &xsi, &psi
	}

	out := make([]State, n)
	for i := range obs {
		out[i] = State{
			T:   obs[i].T,
			Pos: coord.Cart{X: xs[i].AtVec(0), Y: xs[i].AtVec(1), Z: xs[i].AtVec(2)},
			Vel: coord.Cart{X: xs[i].AtVec(3), Y: xs[i].AtVec(4), Z: xs[i].AtVec(5)},
			PosStd: [3]float64{
				math.Sqrt(math.Abs(ps[i].At(0, 0))),
				math.Sqrt(math.Abs(ps[i].At(1, 1))),
				math.Sqrt(math.Abs(ps[i].At(2, 2))),
			},
		}
	}
	return out, nil
}

func transition(dt float64) *mat.Dense {
	F := scaledEye(6, 1)
	for a := 0; a < 3; a++ {
		F.Set(a, a+3, dt)
	}
	return F
}

func (k KalmanSmoother) processNoise(dt float64) *mat.Dense {
	Q := mat.NewDense(6, 6, nil)
	q := k.VelPSD
	for a := 0; a < 3; a++ {
		Q.Set(a, a, q*dt*dt*dt/3+k.GNSSPosPSD*dt)
		Q.Set(a, a+3, q*dt*dt/2)
		Q.Set(a+3, a, q*dt*dt/2)
		Q.Set(a+3, a+3, q*dt)
	}
	return Q
}

func update(xp *mat.VecDense, pp *mat.Dense, o Obs) (*mat.VecDense, *mat.Dense, error) {
	m := 3
	if o.HasVel {
		m = 6
	}
	H := mat.NewDense(m, 6, nil)
	z := mat.NewVecDense(m, nil)
	R := mat.NewDense(m, m, nil)
	pos := [3]float64{o.Pos.X, o.Pos.Y, o.Pos.Z}
	vel := [3]float64{o.Vel.X, o.Vel.Y, o.Vel.Z}
	for a := 0; a < 3; a++ {
		H.Set(a, a, 1)
		z.SetVec(a, pos[a])
		R.Set(a, a, o.PosSigma*o.PosSigma)
		if o.HasVel {
			H.Set(a+3, a+3, 1)
			z.SetVec(a+3, vel[a])
			R.Set(a+3, a+3, o.VelSigma*o.VelSigma)
		}
	}

	var hp, S mat.Dense
	hp.Mul(H, pp)
	S.Mul(&hp, H.T())
	S.Add(&S, R)
	var sInv mat.Dense
	if err := invert(&sInv, &S); err != nil {
		return nil, nil, err
	}
	var pht, K mat.Dense
	pht.Mul(pp, H.T())
	K.Mul(&pht, &sInv)

	var hx, y mat.VecDense
	hx.MulVec(H, xp)
	y.SubVec(z, &hx)
	var x mat.VecDense
	x.MulVec(&K, &y)
	x.AddVec(xp, &x)

	var kh, ikh, P mat.Dense
	kh.Mul(&K, H)
	ikh.Sub(scaledEye(6, 1), &kh)
	P.Mul(&ikh, pp)
	symmetrize(&P)
	return &x, &P, nil
}

func invert(dst *mat.Dense, a mat.Matrix) error {
	err := dst.Inverse(a)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return err
	}
	return nil
}

func symmetrize(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := (m.At(i, j) + m.At(j, i)) / 2
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func scaledEye(n int, s float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, s)
	}
	return m
}
