// Package bkmr implements Bayesian kernel machine regression, relating a
// multivariate exposure profile to an outcome through a flexible function
// represented by a Gaussian kernel,
//
//	y_i = x_iᵀβ + h(z_i) + ε_i,   h ~ GP(0, σ²λK),
//	K_ij = exp(-Σ_m r_m (z_im - z_jm)²).
//
// The model is described in
//
//	Jennifer F. Bobb et al. "Bayesian kernel machine regression for
//	estimating the health effects of multi-pollutant mixtures",
//	Biostatistics, Vol. 16, No. 3 (2015), pp. 493-508.
//	doi: 10.1093/biostatistics/kxu058
//
// Fit runs a Markov chain Monte Carlo sampler mixing closed-form Gibbs
// updates (β, σ²) with Metropolis-Hastings moves (λ, r), optionally with
// component-wise or hierarchical variable selection over the exposures. The
// fitted model holds the sealed posterior chain; PredictH, SampleH, and the
// risk-summary methods are read-only consumers of it and may be called
// concurrently.
package bkmr

import "gonum.org/v1/gonum/mat"

// Model is a fitted kernel machine regression: the immutable inputs, the
// resolved settings, and the sealed posterior chain. All downstream
// prediction and summary calls take the model explicitly; there is no
// process-wide current fit.
type Model struct {
	y []float64
	z *mat.Dense
	x *mat.Dense // nil when the fit had no covariates
	b *mat.SymDense

	settings Settings
	groups   []selGroup
	chain    *Chain
	accept   AcceptanceRates
}

// Fit samples the posterior of the kernel machine regression of y on the
// exposure matrix z with optional covariates x (may be nil). Inputs are
// copied; the caller may reuse them.
//
// A numerical failure that survives the single perturbed-proposal retry
// aborts sampling. In that case Fit returns the NumericalError together
// with a non-nil model whose chain is truncated to the last fully-committed
// iteration (the only trusted result), unless no iteration committed at all,
// in which case the model is nil.
func Fit(y []float64, z mat.Matrix, x mat.Matrix, set Settings) (*Model, error) {
	if z == nil {
		return nil, &ConfigError{Field: "z", Reason: "exposure matrix is required"}
	}
	zc := mat.DenseCopyOf(z)
	var xc *mat.Dense
	if x != nil {
		if _, c := x.Dims(); c > 0 {
			xc = mat.DenseCopyOf(x)
		}
	}

	s, err := newSampler(y, zc, xc, set)
	if err != nil {
		return nil, err
	}
	runErr := s.run()
	if runErr != nil && s.chain.Len() == 0 {
		return nil, runErr
	}
	m := &Model{
		y:        append([]float64(nil), y...),
		z:        zc,
		x:        xc,
		b:        s.b,
		settings: s.set,
		groups:   s.groups,
		chain:    s.chain,
		accept:   s.acceptanceRates(),
	}
	return m, runErr
}

// Chain returns the sealed posterior chain.
func (m *Model) Chain() *Chain { return m.chain }

// Acceptance returns the per-parameter M-H acceptance-rate summary.
func (m *Model) Acceptance() AcceptanceRates { return m.accept }

// Settings returns the resolved control parameters the fit actually used.
func (m *Model) Settings() Settings { return m.settings }
