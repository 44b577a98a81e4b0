package bkmr

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errNotPosDef = errors.New("covariance matrix not positive definite")

// factorV builds the marginal covariance V = I + λ_1 K (+ λ_2 B for a
// random intercept) and overwrites chol with its Cholesky factorization.
// B may be nil when no random intercept is modeled.
func factorV(chol *mat.Cholesky, k, b *mat.SymDense, lambda []float64) error {
	n := k.SymmetricDim()
	v := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			el := lambda[0] * k.At(i, j)
			if b != nil {
				el += lambda[1] * b.At(i, j)
			}
			if i == j {
				el++
			}
			v.SetSym(i, j, el)
		}
	}
	if !chol.Factorize(v) {
		return errNotPosDef
	}
	return nil
}

// marginalLogLik evaluates the Gaussian log likelihood of the residuals
// with the exposure-response function integrated out,
//
//	resid ~ N(0, σ² V),
//
// given the Cholesky factorization of V.
func marginalLogLik(chol *mat.Cholesky, resid *mat.VecDense, sigsq float64) float64 {
	n := resid.Len()
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, resid); err != nil {
		return math.Inf(-1)
	}
	quad := mat.Dot(resid, &sol)
	return -0.5*float64(n)*math.Log(2*math.Pi*sigsq) - 0.5*chol.LogDet() - quad/(2*sigsq)
}

// intraclusterMatrix builds the random-intercept design B, with B_ij = 1
// when observations i and j share a cluster identifier.
func intraclusterMatrix(id []int) *mat.SymDense {
	n := len(id)
	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if id[i] == id[j] {
				b.SetSym(i, j, 1)
			}
		}
	}
	return b
}
