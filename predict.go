package bkmr

import (
	"iter"
	"runtime"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Method selects the posterior-prediction strategy for point and variance
// estimates of the exposure-response function.
type Method int

const (
	// MethodApprox averages the selected draws into a single parameter
	// value and evaluates the conditional posterior once. Cheapest, but
	// biased unless the posterior is tightly concentrated.
	MethodApprox Method = iota
	// MethodExact evaluates the conditional posterior at every selected
	// draw: the point estimate is the mean of the conditional means and
	// the variance combines by the law of total variance.
	MethodExact
)

// Seed for the restartable posterior-draw sequence: ranging over the same
// sequence twice replays the identical draws.
const sampleSeed = 0x5eed

func (m *Model) checkZnew(znew mat.Matrix) (*mat.Dense, error) {
	_, mz := m.z.Dims()
	_, c := znew.Dims()
	if c != mz {
		return nil, &DimensionError{What: "columns of Znew", Got: c, Want: mz}
	}
	return mat.DenseCopyOf(znew), nil
}

// hMoments evaluates the closed-form conditional posterior of h at the rows
// of znew for a single parameter draw:
//
//	μ_h = λ K_newᵀ V⁻¹ (y - Xβ)
//	V_h = σ² (λ K_new,new - λ² K_newᵀ V⁻¹ K_new),  V = I + λK (+ λ₂B).
//
// The diagonal of V_h is always returned; the full covariance only when
// wantCov is set (needed for posterior draws and paired contrasts).
func (m *Model) hMoments(znew *mat.Dense, smp Sample, wantCov bool) (mu, vdiag []float64, cov *mat.SymDense, err error) {
	n := len(m.y)
	n0, _ := znew.Dims()

	k := kernelMatrix(nil, m.z, smp.R)
	var chol mat.Cholesky
	if err := factorV(&chol, k, m.b, smp.Lambda); err != nil {
		return nil, nil, nil, err
	}

	resid := mat.NewVecDense(n, nil)
	yv := mat.NewVecDense(n, m.y)
	if m.x != nil {
		beta := mat.NewVecDense(len(smp.Beta), smp.Beta)
		var xb mat.VecDense
		xb.MulVec(m.x, beta)
		resid.SubVec(yv, &xb)
	} else {
		resid.CopyVec(yv)
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, resid); err != nil {
		return nil, nil, nil, errNotPosDef
	}

	lam := smp.Lambda[0]
	kn := crossKernel(nil, znew, m.z, smp.R)
	mu = make([]float64, n0)
	muVec := mat.NewVecDense(n0, mu)
	muVec.MulVec(kn, &sol)
	floats.Scale(lam, mu)

	var solK mat.Dense
	if err := chol.SolveTo(&solK, kn.T()); err != nil {
		return nil, nil, nil, errNotPosDef
	}
	var crossT mat.Dense
	crossT.Mul(kn, &solK)

	vdiag = make([]float64, n0)
	if wantCov {
		knn := kernelMatrix(nil, znew, smp.R)
		cov = mat.NewSymDense(n0, nil)
		for i := 0; i < n0; i++ {
			for j := i; j < n0; j++ {
				c := 0.5 * (crossT.At(i, j) + crossT.At(j, i))
				cov.SetSym(i, j, smp.Sigsq*(lam*knn.At(i, j)-lam*lam*c))
			}
		}
		for i := 0; i < n0; i++ {
			vdiag[i] = cov.At(i, i)
		}
		return mu, vdiag, cov, nil
	}
	// K_new,new has unit diagonal.
	for i := 0; i < n0; i++ {
		vdiag[i] = smp.Sigsq * (lam - lam*lam*crossT.At(i, i))
	}
	return mu, vdiag, nil, nil
}

// averageSample collapses the selected draws into a single parameter value
// by element-wise averaging, the θ̂ used by MethodApprox.
func (m *Model) averageSample(sel []int) Sample {
	first := m.chain.At(sel[0])
	avg := Sample{
		Beta:   make([]float64, len(first.Beta)),
		Lambda: make([]float64, len(first.Lambda)),
		R:      make([]float64, len(first.R)),
		Delta:  make([]bool, len(first.Delta)),
	}
	for _, idx := range sel {
		smp := m.chain.samples[idx]
		floats.Add(avg.Beta, smp.Beta)
		floats.Add(avg.Lambda, smp.Lambda)
		floats.Add(avg.R, smp.R)
		avg.Sigsq += smp.Sigsq
	}
	inv := 1 / float64(len(sel))
	floats.Scale(inv, avg.Beta)
	floats.Scale(inv, avg.Lambda)
	floats.Scale(inv, avg.R)
	avg.Sigsq *= inv
	for j, r := range avg.R {
		avg.Delta[j] = r > 0
	}
	return avg
}

// drawMoments evaluates hMoments at every selected draw concurrently. The
// chain is sealed and every evaluation is independent, so the fan-out
// shares no mutable state.
func (m *Model) drawMoments(znew *mat.Dense, sel []int, wantCov bool) (mus, vdiags [][]float64, covs []*mat.SymDense, err error) {
	mus = make([][]float64, len(sel))
	vdiags = make([][]float64, len(sel))
	covs = make([]*mat.SymDense, len(sel))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, idx := range sel {
		i, idx := i, idx
		g.Go(func() error {
			mu, vd, cov, err := m.hMoments(znew, m.chain.At(idx), wantCov)
			if err != nil {
				return &NumericalError{Iter: idx, Step: "posterior moments", Err: err}
			}
			mus[i], vdiags[i], covs[i] = mu, vd, cov
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return mus, vdiags, covs, nil
}

// PredictH estimates the posterior mean and variance of the
// exposure-response function at each row of znew, using the selected
// iteration subset (nil selects the second half of the chain).
func (m *Model) PredictH(znew mat.Matrix, method Method, sel []int) (mean, variance []float64, err error) {
	zn, err := m.checkZnew(znew)
	if err != nil {
		return nil, nil, err
	}
	sel, err = m.chain.subset(sel)
	if err != nil {
		return nil, nil, err
	}

	switch method {
	case MethodApprox:
		mu, vd, _, err := m.hMoments(zn, m.averageSample(sel), false)
		return mu, vd, err
	case MethodExact:
		mus, vdiags, _, err := m.drawMoments(zn, sel, false)
		if err != nil {
			return nil, nil, err
		}
		n0, _ := zn.Dims()
		mean = make([]float64, n0)
		variance = make([]float64, n0)
		perDraw := make([]float64, len(sel))
		for p := 0; p < n0; p++ {
			var vbar float64
			for i := range sel {
				perDraw[i] = mus[i][p]
				vbar += vdiags[i][p]
			}
			vbar /= float64(len(sel))
			mean[p] = stat.Mean(perDraw, nil)
			variance[p] = vbar
			// A single selected draw has no between-draw spread.
			if len(sel) > 1 {
				variance[p] += stat.Variance(perDraw, nil)
			}
		}
		return mean, variance, nil
	}
	return nil, nil, &ConfigError{Field: "method", Reason: "unknown prediction method"}
}

// SampleH returns a lazy, finite, restartable sequence with one draw of the
// exposure-response function at the rows of znew per selected iteration,
// representing the full posterior of h rather than its first two moments.
// A non-nil xnew adds the covariate contribution X_newβ of each draw,
// yielding fitted-value draws. The conditional moments of every selected
// iteration are evaluated and factorized before the sequence is returned, so
// any numerical failure surfaces as an error here and the sequence itself
// always yields exactly one draw per selected iteration. Ranging over the
// sequence again replays the same draws.
func (m *Model) SampleH(znew mat.Matrix, xnew mat.Matrix, sel []int) (iter.Seq[[]float64], error) {
	zn, err := m.checkZnew(znew)
	if err != nil {
		return nil, err
	}
	n0, _ := zn.Dims()
	var xn *mat.Dense
	if xnew != nil {
		if m.x == nil {
			return nil, &ConfigError{Field: "xnew", Reason: "model was fitted without covariates"}
		}
		xr, xc := xnew.Dims()
		if _, p := m.x.Dims(); xc != p {
			return nil, &DimensionError{What: "columns of Xnew", Got: xc, Want: p}
		}
		if xr != n0 {
			return nil, &DimensionError{What: "rows of Xnew", Got: xr, Want: n0}
		}
		xn = mat.DenseCopyOf(xnew)
	}
	sel, err = m.chain.subset(sel)
	if err != nil {
		return nil, err
	}

	mus, _, covs, err := m.drawMoments(zn, sel, true)
	if err != nil {
		return nil, err
	}
	factors := make([]*mat.TriDense, len(sel))
	for i, cov := range covs {
		chol, ok := factorWithJitter(cov)
		if !ok {
			return nil, &NumericalError{Iter: sel[i], Step: "posterior draw", Err: errNotPosDef}
		}
		l := &mat.TriDense{}
		chol.LTo(l)
		factors[i] = l
	}
	var offsets []*mat.VecDense
	if xn != nil {
		offsets = make([]*mat.VecDense, len(sel))
		for i, idx := range sel {
			smp := m.chain.At(idx)
			beta := mat.NewVecDense(len(smp.Beta), smp.Beta)
			var xb mat.VecDense
			xb.MulVec(xn, beta)
			offsets[i] = &xb
		}
	}

	return func(yield func([]float64) bool) {
		rng := rand.New(rand.NewSource(sampleSeed))
		u := mat.NewVecDense(n0, nil)
		var lu mat.VecDense
		for i := range sel {
			for k := 0; k < n0; k++ {
				u.SetVec(k, rng.NormFloat64())
			}
			lu.MulVec(factors[i], u)
			draw := make([]float64, n0)
			for k := range draw {
				draw[k] = mus[i][k] + lu.AtVec(k)
			}
			if offsets != nil {
				for k := range draw {
					draw[k] += offsets[i].AtVec(k)
				}
			}
			if !yield(draw) {
				return
			}
		}
	}, nil
}

// factorWithJitter factorizes the conditional covariance, adding a ridge of
// increasing size when the matrix is numerically semi-definite.
func factorWithJitter(cov *mat.SymDense) (*mat.Cholesky, bool) {
	n := cov.SymmetricDim()
	var chol mat.Cholesky
	if chol.Factorize(cov) {
		return &chol, true
	}
	for jit := 1e-10; jit <= 1e-4; jit *= 100 {
		pert := mat.NewSymDense(n, nil)
		pert.CopySym(cov)
		for i := 0; i < n; i++ {
			pert.SetSym(i, i, cov.At(i, i)+jit)
		}
		if chol.Factorize(pert) {
			return &chol, true
		}
	}
	return nil, false
}
