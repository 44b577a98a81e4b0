package bkmr

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// OverallRisk is the posterior summary of shifting every exposure jointly
// from the fixed quantile to Quantile.
type OverallRisk struct {
	Quantile float64
	Est      float64
	SD       float64
}

// SingVarRisk is the posterior summary of shifting one exposure between two
// quantiles while the others are held at FixedQuantile.
type SingVarRisk struct {
	Variable      int
	FixedQuantile float64
	Est           float64
	SD            float64
}

// InteractionRisk is the single-variable risk with the other exposures
// fixed at a high quantile minus the same risk with the others fixed at a
// low quantile.
type InteractionRisk struct {
	Variable int
	Est      float64
	SD       float64
}

// contrastSummary evaluates the linear contrast cᵀh over the stacked
// exposure profiles. For the exact method the estimate is the mean over
// draws of the per-draw contrast of conditional means, and the variance
// combines the per-draw contrast variance cᵀV_h c with the spread of the
// per-draw contrasts. The paired evaluations within one draw share the chain
// state, so the variance is never assembled from two independently
// time-averaged summaries.
func (m *Model) contrastSummary(profiles *mat.Dense, contrast []float64, method Method, sel []int) (est, sd float64, err error) {
	switch method {
	case MethodApprox:
		mu, _, cov, err := m.hMoments(profiles, m.averageSample(sel), true)
		if err != nil {
			return 0, 0, err
		}
		est = floats.Dot(contrast, mu)
		return est, math.Sqrt(quadForm(contrast, cov)), nil
	case MethodExact:
		mus, _, covs, err := m.drawMoments(profiles, sel, true)
		if err != nil {
			return 0, 0, err
		}
		diffs := make([]float64, len(sel))
		var vbar float64
		for i := range sel {
			diffs[i] = floats.Dot(contrast, mus[i])
			vbar += quadForm(contrast, covs[i])
		}
		vbar /= float64(len(sel))
		est = stat.Mean(diffs, nil)
		v := vbar
		// A single selected draw has no between-draw spread.
		if len(sel) > 1 {
			v += stat.Variance(diffs, nil)
		}
		return est, math.Sqrt(v), nil
	}
	return 0, 0, &ConfigError{Field: "method", Reason: "unknown prediction method"}
}

func quadForm(c []float64, cov *mat.SymDense) float64 {
	var s float64
	for i, ci := range c {
		for j, cj := range c {
			s += ci * cj * cov.At(i, j)
		}
	}
	return s
}

// OverallRiskSummaries estimates, for each comparison quantile in qs, the
// change in h when every exposure is shifted jointly from the qFixed
// quantile of the observed Z to that quantile.
func (m *Model) OverallRiskSummaries(qs []float64, qFixed float64, method Method, sel []int) ([]OverallRisk, error) {
	sel, err := m.chain.subset(sel)
	if err != nil {
		return nil, err
	}
	_, nz := m.z.Dims()
	out := make([]OverallRisk, 0, len(qs))
	for _, q := range qs {
		profiles := mat.NewDense(2, nz, nil)
		profiles.SetRow(0, quantileProfile(m.z, q, -1, 0))
		profiles.SetRow(1, quantileProfile(m.z, qFixed, -1, 0))
		est, sd, err := m.contrastSummary(profiles, []float64{1, -1}, method, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, OverallRisk{Quantile: q, Est: est, SD: sd})
	}
	return out, nil
}

// SingVarRiskSummaries estimates, per exposure and per fixed quantile in
// qFixed, the change in h when that exposure moves from the qLow to the
// qHigh quantile while all other exposures are held at the fixed quantile.
func (m *Model) SingVarRiskSummaries(qLow, qHigh float64, qFixed []float64, method Method, sel []int) ([]SingVarRisk, error) {
	sel, err := m.chain.subset(sel)
	if err != nil {
		return nil, err
	}
	_, nz := m.z.Dims()
	out := make([]SingVarRisk, 0, nz*len(qFixed))
	for v := 0; v < nz; v++ {
		for _, f := range qFixed {
			profiles := mat.NewDense(2, nz, nil)
			profiles.SetRow(0, quantileProfile(m.z, f, v, qHigh))
			profiles.SetRow(1, quantileProfile(m.z, f, v, qLow))
			est, sd, err := m.contrastSummary(profiles, []float64{1, -1}, method, sel)
			if err != nil {
				return nil, err
			}
			out = append(out, SingVarRisk{Variable: v, FixedQuantile: f, Est: est, SD: sd})
		}
	}
	return out, nil
}

// SingVarIntSummaries estimates, per exposure, the interaction summary: the
// single-variable risk (qLow to qHigh) with the other exposures fixed at
// qFixedHigh minus the same risk with the others fixed at qFixedLow. The
// four profile evaluations form a single contrast per draw, so the identity
// with the difference of the two SingVarRiskSummaries point estimates holds
// exactly on the same chain.
func (m *Model) SingVarIntSummaries(qLow, qHigh, qFixedLow, qFixedHigh float64, method Method, sel []int) ([]InteractionRisk, error) {
	sel, err := m.chain.subset(sel)
	if err != nil {
		return nil, err
	}
	_, nz := m.z.Dims()
	out := make([]InteractionRisk, 0, nz)
	for v := 0; v < nz; v++ {
		profiles := mat.NewDense(4, nz, nil)
		profiles.SetRow(0, quantileProfile(m.z, qFixedHigh, v, qHigh))
		profiles.SetRow(1, quantileProfile(m.z, qFixedHigh, v, qLow))
		profiles.SetRow(2, quantileProfile(m.z, qFixedLow, v, qHigh))
		profiles.SetRow(3, quantileProfile(m.z, qFixedLow, v, qLow))
		est, sd, err := m.contrastSummary(profiles, []float64{1, -1, -1, 1}, method, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, InteractionRisk{Variable: v, Est: est, SD: sd})
	}
	return out, nil
}
