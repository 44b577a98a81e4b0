package bkmr

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// updateBeta draws the regression coefficients from their full conditional
//
//	β | rest ~ N((XᵀV⁻¹X)⁻¹ XᵀV⁻¹y, σ² (XᵀV⁻¹X)⁻¹),
//
// the weighted least-squares normal equations with V-weighting, and
// refreshes the residual vector. A fit without covariates skips the draw.
func (s *sampler) updateBeta() error {
	if s.p == 0 {
		return nil
	}

	// XᵀV⁻¹X and XᵀV⁻¹y through the Cholesky factorization of V.
	var vix mat.Dense
	if err := s.chol.SolveTo(&vix, s.x); err != nil {
		return errNotPosDef
	}
	var prec mat.Dense
	prec.Mul(s.x.T(), &vix)
	precSym := mat.NewSymDense(s.p, nil)
	for i := 0; i < s.p; i++ {
		for j := i; j < s.p; j++ {
			precSym.SetSym(i, j, 0.5*(prec.At(i, j)+prec.At(j, i)))
		}
	}
	var viy mat.VecDense
	if err := s.chol.SolveVecTo(&viy, s.y); err != nil {
		return errNotPosDef
	}
	rhs := mat.NewVecDense(s.p, nil)
	rhs.MulVec(s.x.T(), &viy)

	var cholPrec mat.Cholesky
	if !cholPrec.Factorize(precSym) {
		return errNotPosDef
	}
	var mean mat.VecDense
	if err := cholPrec.SolveVecTo(&mean, rhs); err != nil {
		return errNotPosDef
	}

	// β = mean + σ L⁻ᵀ u with u standard normal gives covariance
	// σ² (LLᵀ)⁻¹ = σ² (XᵀV⁻¹X)⁻¹.
	var l mat.TriDense
	cholPrec.LTo(&l)
	u := mat.NewVecDense(s.p, nil)
	for i := 0; i < s.p; i++ {
		u.SetVec(i, s.rng.NormFloat64())
	}
	var dev mat.VecDense
	if err := dev.SolveVec(l.T(), u); err != nil {
		return errNotPosDef
	}
	sigma := math.Sqrt(s.cur.Sigsq)
	for i := 0; i < s.p; i++ {
		s.cur.Beta[i] = mean.AtVec(i) + sigma*dev.AtVec(i)
	}

	// resid = y - X β.
	beta := mat.NewVecDense(s.p, s.cur.Beta)
	var xb mat.VecDense
	xb.MulVec(s.x, beta)
	s.resid.SubVec(s.y, &xb)
	return nil
}

// updateSigsq draws the residual variance from its inverse-gamma full
// conditional, σ² | rest ~ InvGamma(a + n/2, b + ½ residᵀV⁻¹resid), by
// inverting a gamma variate.
func (s *sampler) updateSigsq() error {
	var sol mat.VecDense
	if err := s.chol.SolveVecTo(&sol, s.resid); err != nil {
		return errNotPosDef
	}
	quad := mat.Dot(s.resid, &sol)
	c := &s.set.Control
	g := distuv.Gamma{
		Alpha: c.SigsqShape + 0.5*float64(s.n),
		Beta:  c.SigsqRate + 0.5*quad,
		Src:   s.src,
	}
	s.cur.Sigsq = 1 / g.Rand()
	return nil
}
