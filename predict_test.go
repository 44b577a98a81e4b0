package bkmr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func fitSmooth(t *testing.T, iter int) (*Model, *mat.Dense) {
	t.Helper()
	h := func(z []float64) float64 { return 2*math.Sin(z[0]) + z[1] }
	y, z := synthData(40, 2, h, 0.3, 30)
	model, err := Fit(y, z, nil, Settings{Iter: iter, Source: rand.NewSource(31)})
	require.NoError(t, err)
	return model, z
}

func TestPredictHInputValidation(t *testing.T) {
	model, _ := fitSmooth(t, 50)

	var dim *DimensionError
	_, _, err := model.PredictH(mat.NewDense(2, 5, nil), MethodExact, nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &dim)

	var cfg *ConfigError
	znew := mat.NewDense(1, 2, []float64{0, 0})
	_, _, err = model.PredictH(znew, MethodExact, []int{49, 50})
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfg, "selector beyond the sealed chain")

	_, _, err = model.PredictH(znew, Method(9), nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfg)
}

func TestPredictHVariancePositive(t *testing.T) {
	model, _ := fitSmooth(t, 300)
	znew := mat.NewDense(3, 2, []float64{0, 0, 0.5, -0.5, -1, 1})

	for _, method := range []Method{MethodApprox, MethodExact} {
		mean, variance, err := model.PredictH(znew, method, nil)
		require.NoError(t, err)
		require.Len(t, mean, 3)
		require.Len(t, variance, 3)
		for i := range variance {
			assert.Greater(t, variance[i], 0.0, "method %v point %d", method, i)
			assert.False(t, math.IsInf(variance[i], 0))
			assert.False(t, math.IsNaN(mean[i]))
		}
	}
}

func TestPredictHSingleDrawVariance(t *testing.T) {
	model, _ := fitSmooth(t, 50)
	znew := mat.NewDense(2, 2, []float64{0, 0, 1, -1})

	// An exact prediction from one retained draw has no between-draw
	// spread, only the conditional variance.
	mean, variance, err := model.PredictH(znew, MethodExact, []int{49})
	require.NoError(t, err)
	for i := range variance {
		assert.Greater(t, variance[i], 0.0, "point %d", i)
		assert.False(t, math.IsNaN(variance[i]), "point %d", i)
		assert.False(t, math.IsNaN(mean[i]), "point %d", i)
	}

	// A one-iteration chain reaches the same path through the default
	// selector.
	h := func(z []float64) float64 { return z[0] }
	y, z := synthData(20, 2, h, 0.5, 32)
	one, err := Fit(y, z, nil, Settings{Iter: 1, Source: rand.NewSource(33)})
	require.NoError(t, err)
	_, variance, err = one.PredictH(znew, MethodExact, nil)
	require.NoError(t, err)
	for i := range variance {
		assert.Greater(t, variance[i], 0.0, "point %d", i)
		assert.False(t, math.IsNaN(variance[i]), "point %d", i)
	}
}

func TestPredictHMethodsAgree(t *testing.T) {
	model, _ := fitSmooth(t, 1500)
	znew := mat.NewDense(2, 2, []float64{0, 0, 1, -1})

	approxMean, _, err := model.PredictH(znew, MethodApprox, nil)
	require.NoError(t, err)
	exactMean, exactVar, err := model.PredictH(znew, MethodExact, nil)
	require.NoError(t, err)

	for i := range exactMean {
		tol := 3 * math.Sqrt(exactVar[i])
		assert.InDelta(t, exactMean[i], approxMean[i], tol,
			"approx and exact posterior means should agree for a well-mixed chain (point %d)", i)
	}
}

func TestSampleHMatchesExactMoments(t *testing.T) {
	model, _ := fitSmooth(t, 1500)
	znew := mat.NewDense(1, 2, []float64{0.25, 0.25})

	exactMean, exactVar, err := model.PredictH(znew, MethodExact, nil)
	require.NoError(t, err)

	seq, err := model.SampleH(znew, nil, nil)
	require.NoError(t, err)
	var draws []float64
	for d := range seq {
		require.Len(t, d, 1)
		draws = append(draws, d[0])
	}
	require.Equal(t, 750, len(draws), "one draw per selected iteration")

	se := math.Sqrt(exactVar[0] / float64(len(draws)))
	assert.InDelta(t, exactMean[0], stat.Mean(draws, nil), 5*se+0.05,
		"sampling empirical mean converges to the exact point estimate")
	assert.InDelta(t, exactVar[0], stat.Variance(draws, nil), 0.75*exactVar[0],
		"sampling spread is on the scale of the exact variance")
}

func TestSampleHRestartable(t *testing.T) {
	model, _ := fitSmooth(t, 100)
	znew := mat.NewDense(2, 2, []float64{0, 0, 1, 1})

	seq, err := model.SampleH(znew, nil, []int{50, 60, 70})
	require.NoError(t, err)

	collect := func() [][]float64 {
		var out [][]float64
		for d := range seq {
			out = append(out, d)
		}
		return out
	}
	first := collect()
	second := collect()
	require.Len(t, first, 3)
	assert.Equal(t, first, second, "ranging again must replay the same draws")
}

func TestSampleHXnewValidation(t *testing.T) {
	model, _ := fitSmooth(t, 50)
	znew := mat.NewDense(1, 2, []float64{0, 0})

	var cfg *ConfigError
	_, err := model.SampleH(znew, mat.NewDense(1, 1, []float64{1}), nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfg, "model fitted without covariates rejects Xnew")
}
