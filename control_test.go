package bkmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsResolveDefaults(t *testing.T) {
	set, err := Settings{Iter: 100}.resolve(20, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, set.ReportEvery)
	assert.NotNil(t, set.Source)
	assert.Greater(t, set.Control.LambdaJump, 0.0)
	assert.Greater(t, set.Control.RJump, 0.0)
	assert.Greater(t, set.Control.RMuProp, 0.0)
	assert.Equal(t, 0.5, set.Control.InclusionProb)
}

func TestSettingsResolveErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		set  Settings
	}{
		{name: "ZeroIter", set: Settings{}},
		{name: "NegativeIter", set: Settings{Iter: -5}},
		{name: "GroupsWrongLength", set: Settings{Iter: 10, VarSel: true, Groups: []int{0, 0}}},
		{name: "GroupsWithoutVarsel", set: Settings{Iter: 10, Groups: []int{0, 1, 2}}},
		{name: "BadFamily", set: Settings{Iter: 10, Family: Family(99)}},
		{name: "BadRPrior", set: Settings{Iter: 10, Control: Control{RPrior: RPriorKind(42)}}},
		{name: "InvUniformZeroMin", set: Settings{Iter: 10, Control: Control{RPrior: RPriorInvUniform}}},
		{name: "EmptyUniformSupport", set: Settings{Iter: 10, Control: Control{RPrior: RPriorUniform, RMin: 2, RMax: 1}}},
		{name: "BadInclusionProb", set: Settings{Iter: 10, Control: Control{InclusionProb: 1.5}}},
		{name: "IDWrongLength", set: Settings{Iter: 10, ID: []int{1, 2}}},
	} {
		_, err := test.set.resolve(20, 3)
		require.Error(t, err, test.name)
		var cfg *ConfigError
		assert.ErrorAs(t, err, &cfg, test.name)
	}
}

func TestLogRPriorSupport(t *testing.T) {
	set, err := Settings{Iter: 10, Control: Control{RPrior: RPriorUniform, RMin: 0, RMax: 2}}.resolve(20, 3)
	require.NoError(t, err)
	c := set.Control
	assert.True(t, c.logRPrior(1) > c.logRPrior(3), "outside support must have -Inf density")
	assert.InDelta(t, c.logRPrior(0.5), c.logRPrior(1.5), 1e-14, "flat inside support")

	set, err = Settings{Iter: 10, Control: Control{RPrior: RPriorInvUniform, RMin: 0.1, RMax: 10}}.resolve(20, 3)
	require.NoError(t, err)
	c = set.Control
	// Density proportional to r^-2 inside the support.
	assert.InDelta(t, c.logRPrior(1)-c.logRPrior(2), 2*0.6931471805599453, 1e-12)
}
