package bkmr

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// colQuantiles returns the q-th empirical quantile of every column of z.
func colQuantiles(z mat.Matrix, q float64) []float64 {
	_, m := z.Dims()
	out := make([]float64, m)
	for j := 0; j < m; j++ {
		col := mat.Col(nil, j, z)
		sort.Float64s(col)
		out[j] = stat.Quantile(q, stat.Empirical, col, nil)
	}
	return out
}

// quantileProfile builds one exposure profile with every column at its
// fixed quantile and, optionally, a single column overridden to another
// quantile. which < 0 means no override.
func quantileProfile(z mat.Matrix, qFixed float64, which int, qWhich float64) []float64 {
	prof := colQuantiles(z, qFixed)
	if which >= 0 {
		col := mat.Col(nil, which, z)
		sort.Float64s(col)
		prof[which] = stat.Quantile(qWhich, stat.Empirical, col, nil)
	}
	return prof
}
