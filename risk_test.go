package bkmr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func fitRisk(t *testing.T, iter int) *Model {
	t.Helper()
	h := func(z []float64) float64 { return z[0] + 0.5*z[0]*z[1] }
	y, z := synthData(40, 3, h, 0.3, 40)
	model, err := Fit(y, z, nil, Settings{Iter: iter, Source: rand.NewSource(41)})
	require.NoError(t, err)
	return model
}

func TestOverallRiskZeroShift(t *testing.T) {
	model := fitRisk(t, 200)

	// Comparing the median profile against itself is a zero contrast, so
	// both the estimate and its spread vanish for either method.
	for _, method := range []Method{MethodApprox, MethodExact} {
		risks, err := model.OverallRiskSummaries([]float64{0.5}, 0.5, method, nil)
		require.NoError(t, err)
		require.Len(t, risks, 1)
		assert.InDelta(t, 0, risks[0].Est, 1e-8, "method %v", method)
		assert.InDelta(t, 0, risks[0].SD, 1e-4, "method %v", method)
	}
}

func TestOverallRiskMonotoneSignal(t *testing.T) {
	// A strongly increasing h should give a positive risk for an upward
	// joint shift and a negative one for a downward shift.
	h := func(z []float64) float64 { return 2*z[0] + 2*z[1] }
	y, z := synthData(50, 2, h, 0.3, 42)
	model, err := Fit(y, z, nil, Settings{Iter: 1000, Source: rand.NewSource(43)})
	require.NoError(t, err)

	risks, err := model.OverallRiskSummaries([]float64{0.25, 0.75}, 0.5, MethodExact, nil)
	require.NoError(t, err)
	require.Len(t, risks, 2)
	assert.Less(t, risks[0].Est, 0.0, "shift down")
	assert.Greater(t, risks[1].Est, 0.0, "shift up")
	for _, r := range risks {
		assert.Greater(t, r.SD, 0.0)
		assert.False(t, math.IsNaN(r.SD))
	}
}

func TestSingVarRiskShape(t *testing.T) {
	model := fitRisk(t, 300)

	risks, err := model.SingVarRiskSummaries(0.25, 0.75, []float64{0.25, 0.5, 0.75}, MethodApprox, nil)
	require.NoError(t, err)
	require.Len(t, risks, 9)
	for i, r := range risks {
		assert.Equal(t, i/3, r.Variable)
		assert.Greater(t, r.SD, 0.0, "risk %d", i)
		assert.False(t, math.IsNaN(r.Est), "risk %d", i)
	}
}

func TestInteractionIdentity(t *testing.T) {
	model := fitRisk(t, 400)
	sel := make([]int, 50)
	for i := range sel {
		sel[i] = 350 + i
	}

	ints, err := model.SingVarIntSummaries(0.25, 0.75, 0.25, 0.75, MethodExact, sel)
	require.NoError(t, err)
	high, err := model.SingVarRiskSummaries(0.25, 0.75, []float64{0.75}, MethodExact, sel)
	require.NoError(t, err)
	low, err := model.SingVarRiskSummaries(0.25, 0.75, []float64{0.25}, MethodExact, sel)
	require.NoError(t, err)

	require.Len(t, ints, 3)
	for v := range ints {
		assert.InDelta(t, high[v].Est-low[v].Est, ints[v].Est, 1e-9,
			"interaction estimate equals the difference of single-variable risks (variable %d)", v)
	}
}

func TestRiskSingleDrawSD(t *testing.T) {
	model := fitRisk(t, 50)

	// With one selected draw the exact SD is the conditional contrast
	// spread alone, never NaN.
	risks, err := model.OverallRiskSummaries([]float64{0.75}, 0.5, MethodExact, []int{49})
	require.NoError(t, err)
	require.Len(t, risks, 1)
	assert.False(t, math.IsNaN(risks[0].SD))
	assert.GreaterOrEqual(t, risks[0].SD, 0.0)
	assert.False(t, math.IsNaN(risks[0].Est))
}

func TestRiskSelectorValidation(t *testing.T) {
	model := fitRisk(t, 50)
	var cfg *ConfigError

	_, err := model.OverallRiskSummaries([]float64{0.75}, 0.5, MethodExact, []int{-1})
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfg)

	_, err = model.SingVarIntSummaries(0.25, 0.75, 0.25, 0.75, Method(7), nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &cfg)
}
