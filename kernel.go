package bkmr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// kernelMatrix computes the Gaussian kernel matrix over the rows of z,
//
//	K_ij = exp(-sum_m r_m (z_im - z_jm)^2),
//
// storing it in dst. dst is resized if nil or of the wrong size. The result
// is symmetric with unit diagonal for any r with nonnegative components.
func kernelMatrix(dst *mat.SymDense, z mat.Matrix, r []float64) *mat.SymDense {
	n, m := z.Dims()
	if len(r) != m {
		panic("bkmr: smoothness vector length mismatch")
	}
	if dst == nil || dst.SymmetricDim() != n {
		dst = mat.NewSymDense(n, nil)
	}
	for i := 0; i < n; i++ {
		dst.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			var d float64
			for k := 0; k < m; k++ {
				if r[k] == 0 {
					continue
				}
				dz := z.At(i, k) - z.At(j, k)
				d += r[k] * dz * dz
			}
			dst.SetSym(i, j, math.Exp(-d))
		}
	}
	return dst
}

// kernelUpdateColumn rescales src into dst for a change of dr in the
// smoothness of a single exposure column, using
//
//	K'_ij = K_ij * exp(-dr (z_im - z_jm)^2).
//
// This is the cheap incremental recomputation exploited by per-variable
// proposals. src and dst may alias.
func kernelUpdateColumn(dst, src *mat.SymDense, zcol []float64, dr float64) {
	n := src.SymmetricDim()
	if dst.SymmetricDim() != n {
		panic("bkmr: kernel size mismatch")
	}
	for i := 0; i < n; i++ {
		dst.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			dz := zcol[i] - zcol[j]
			dst.SetSym(i, j, src.At(i, j)*math.Exp(-dr*dz*dz))
		}
	}
}

// crossKernel computes the kernel between the rows of znew and the rows of
// z under smoothness r, storing the result (len(znew rows) x len(z rows))
// in dst.
func crossKernel(dst *mat.Dense, znew, z mat.Matrix, r []float64) *mat.Dense {
	n0, m := znew.Dims()
	n, mz := z.Dims()
	if m != mz || len(r) != m {
		panic("bkmr: cross-kernel dimension mismatch")
	}
	if dst == nil {
		dst = mat.NewDense(n0, n, nil)
	}
	for i := 0; i < n0; i++ {
		for j := 0; j < n; j++ {
			var d float64
			for k := 0; k < m; k++ {
				if r[k] == 0 {
					continue
				}
				dz := znew.At(i, k) - z.At(j, k)
				d += r[k] * dz * dz
			}
			dst.Set(i, j, math.Exp(-d))
		}
	}
	return dst
}
