package bkmr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestResolveGroups(t *testing.T) {
	gs := resolveGroups(nil, 3)
	require.Len(t, gs, 3)
	for j, g := range gs {
		assert.Equal(t, []int{j}, g.members)
	}

	gs = resolveGroups([]int{7, 2, 7, 2, 5}, 5)
	require.Len(t, gs, 3)
	assert.Equal(t, []int{0, 2}, gs[0].members)
	assert.Equal(t, 7, gs[0].id)
	assert.Equal(t, []int{1, 3}, gs[1].members)
	assert.Equal(t, []int{4}, gs[2].members)
}

func TestPIPBoundsAndGroupDominance(t *testing.T) {
	h := func(z []float64) float64 { return 1.5*z[0] + math.Sin(z[1]) }
	y, z := synthData(40, 4, h, 0.5, 20)

	model, err := Fit(y, z, nil, Settings{
		Iter:   600,
		VarSel: true,
		Groups: []int{0, 0, 1, 1},
		Source: rand.NewSource(21),
	})
	require.NoError(t, err)

	pips := model.PIPs()
	require.Len(t, pips, 4)
	for j, p := range pips {
		assert.GreaterOrEqual(t, p, 0.0, "pip[%d]", j)
		assert.LessOrEqual(t, p, 1.0, "pip[%d]", j)
	}

	groupPIPs := model.GroupPIPs()
	require.Len(t, groupPIPs, 2)
	assert.GreaterOrEqual(t, groupPIPs[0], math.Max(pips[0], pips[1]))
	assert.GreaterOrEqual(t, groupPIPs[1], math.Max(pips[2], pips[3]))
}

func TestSingletonGroupsMatchComponentwise(t *testing.T) {
	h := func(z []float64) float64 { return 2 * z[0] }
	y, z := synthData(30, 3, h, 0.5, 22)

	fit := func(groups []int) *Model {
		model, err := Fit(y, z, nil, Settings{
			Iter:   400,
			VarSel: true,
			Groups: groups,
			Source: rand.NewSource(23),
		})
		require.NoError(t, err)
		return model
	}

	comp := fit(nil)
	hier := fit([]int{0, 1, 2})

	// Singleton groups are the component-wise scheme: same seed, same
	// chain, identical inclusion probabilities.
	assert.Equal(t, comp.PIPs(), hier.PIPs())
	last := comp.Chain().Len() - 1
	assert.Equal(t, comp.Chain().At(last), hier.Chain().At(last))
	for id, p := range hier.GroupPIPs() {
		assert.Equal(t, hier.PIPs()[id], p, "group %d", id)
	}
}

func TestGroupPIPsWithoutSelection(t *testing.T) {
	h := func(z []float64) float64 { return z[0] }
	y, z := synthData(20, 2, h, 0.5, 27)
	model, err := Fit(y, z, nil, Settings{Iter: 30, Source: rand.NewSource(28)})
	require.NoError(t, err)

	assert.Empty(t, model.GroupPIPs())
	for _, p := range model.PIPs() {
		assert.Equal(t, 1.0, p)
	}
}

func TestCorrelatedPairGroupedPIP(t *testing.T) {
	// Two exposures made nearly identical by construction: component-wise
	// selection splits the inclusion mass between them, while grouping
	// them concentrates it at the group level.
	rng := rand.New(rand.NewSource(24))
	n := 60
	y, z := synthData(n, 4, func(zr []float64) float64 { return 0 }, 0, 25)
	for i := 0; i < n; i++ {
		z.Set(i, 3, z.At(i, 2)+0.02*rng.NormFloat64())
		y[i] = 2*z.At(i, 2) + 0.5*rng.NormFloat64()
	}

	comp, err := Fit(y, z, nil, Settings{
		Iter:   1500,
		VarSel: true,
		Source: rand.NewSource(26),
	})
	require.NoError(t, err)

	hier, err := Fit(y, z, nil, Settings{
		Iter:   1500,
		VarSel: true,
		Groups: []int{0, 1, 2, 2},
		Source: rand.NewSource(26),
	})
	require.NoError(t, err)

	compPIPs := comp.PIPs()
	groupPIP := hier.GroupPIPs()[2]
	assert.Greater(t, groupPIP, 0.5, "grouped pair should be included most of the time")
	assert.GreaterOrEqual(t, groupPIP, compPIPs[2], "group PIP vs member 2")
	assert.GreaterOrEqual(t, groupPIP, compPIPs[3], "group PIP vs member 3")
}
