package bkmr

import (
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// Family identifies the residual model. Only the gaussian closed-form model
// is implemented.
type Family int

const (
	FamilyGaussian Family = iota
)

// RPriorKind selects the prior family for the smoothness parameters r_m.
type RPriorKind int

const (
	// RPriorGamma is a Gamma(RShape, RRate) prior on each r_m.
	RPriorGamma RPriorKind = iota
	// RPriorUniform is a flat prior on [RMin, RMax].
	RPriorUniform
	// RPriorInvUniform places a flat prior on 1/r_m over [1/RMax, 1/RMin],
	// giving density proportional to r^-2 on [RMin, RMax].
	RPriorInvUniform
)

// Control holds the proposal tuning standard deviations and the prior
// hyperparameters for each parameter family. The zero value is usable;
// unset fields are resolved to defaults at fit start.
type Control struct {
	// LambdaJump is the standard deviation of the gamma random-walk
	// proposal for each kernel-variance ratio component.
	LambdaJump float64
	// RJump is the standard deviation of the gamma random-walk proposal
	// for r_m when variable selection is disabled.
	RJump float64
	// RJumpRefine is the standard deviation of the log-scale random walk
	// used by the refine move under variable selection.
	RJumpRefine float64
	// RMuProp and RSdProp are the mean and standard deviation of the gamma
	// proposal used when a switch move turns a variable on.
	RMuProp float64
	RSdProp float64

	// SigsqShape and SigsqRate are the inverse-gamma prior hyperparameters
	// for the residual variance.
	SigsqShape float64
	SigsqRate  float64

	// MuLambda and SdLambda are the mean and standard deviation of the
	// gamma prior on each kernel-variance ratio component.
	MuLambda float64
	SdLambda float64

	// RPrior selects the prior family for r, with its hyperparameters.
	RPrior RPriorKind
	RShape float64 // gamma prior shape
	RRate  float64 // gamma prior rate
	RMin   float64 // uniform and inverse-uniform support
	RMax   float64

	// InclusionProb is the prior probability that a variable (or group)
	// is included when variable selection is enabled.
	InclusionProb float64

	// RInit and LambdaInit are the starting values for r_m (when selection
	// is disabled, or for initially included variables) and λ.
	RInit      float64
	LambdaInit float64
}

// Settings configures a single fit. The zero value of most fields is
// replaced by a default; Iter must be set.
type Settings struct {
	// Iter is the number of retained MCMC iterations. Must be positive.
	Iter int

	// VarSel enables variable selection. With Groups nil, selection is
	// component-wise; with Groups set, selection is hierarchical.
	VarSel bool

	// Groups maps each column of Z to a group identifier. It must either
	// be nil or have one entry per column; every column belongs to exactly
	// one group. Only meaningful when VarSel is true.
	Groups []int

	// ID optionally clusters observations for a random intercept. When
	// non-nil it must have one entry per row of Z, and the kernel-variance
	// ratio becomes a 2-vector.
	ID []int

	Family Family

	Control Control

	// Verbose enables periodic progress reporting and acceptance-rate
	// diagnostics through Logger.
	Verbose bool
	// ReportEvery is the iteration period of progress reports. Defaults
	// to Iter/10.
	ReportEvery int

	// Logger receives progress and convergence diagnostics. Nil means
	// silent. Logging is diagnostic only and never alters sampler state.
	Logger *zap.Logger

	// Source is the random source for every draw of the fit. Nil uses a
	// fixed-seed source so reruns are reproducible.
	Source rand.Source
}

const defaultSeed = 1

// resolve fills defaults and validates, returning the settings actually
// used by the sampler. m is the number of exposure columns, n the number
// of rows.
func (s Settings) resolve(n, m int) (Settings, error) {
	if s.Iter <= 0 {
		return s, &ConfigError{Field: "Iter", Reason: "must be positive"}
	}
	if s.Family != FamilyGaussian {
		return s, &ConfigError{Field: "Family", Reason: "only the gaussian family is supported"}
	}
	if s.Groups != nil {
		if len(s.Groups) != m {
			return s, &ConfigError{Field: "Groups", Reason: "must map every exposure column to a group"}
		}
		if !s.VarSel {
			return s, &ConfigError{Field: "Groups", Reason: "grouping requires variable selection"}
		}
	}
	if s.ID != nil && len(s.ID) != n {
		return s, &ConfigError{Field: "ID", Reason: "must have one entry per observation"}
	}

	c := &s.Control
	setDefault(&c.LambdaJump, 10)
	setDefault(&c.RJump, 0.1)
	setDefault(&c.RJumpRefine, 0.2)
	setDefault(&c.RMuProp, 1)
	setDefault(&c.RSdProp, 0.5)
	setDefault(&c.SigsqShape, 1e-3)
	setDefault(&c.SigsqRate, 1e-3)
	setDefault(&c.MuLambda, 10)
	setDefault(&c.SdLambda, 10)
	setDefault(&c.RShape, 1)
	setDefault(&c.RRate, 0.1)
	setDefault(&c.RMax, 100)
	setDefault(&c.InclusionProb, 0.5)
	setDefault(&c.RInit, 1)
	setDefault(&c.LambdaInit, 10)

	switch c.RPrior {
	case RPriorGamma:
		if c.RShape <= 0 || c.RRate <= 0 {
			return s, &ConfigError{Field: "Control.RShape/RRate", Reason: "gamma prior hyperparameters must be positive"}
		}
	case RPriorUniform, RPriorInvUniform:
		if c.RMax <= c.RMin {
			return s, &ConfigError{Field: "Control.RMin/RMax", Reason: "support must be a nonempty interval"}
		}
		if c.RPrior == RPriorInvUniform && c.RMin <= 0 {
			return s, &ConfigError{Field: "Control.RMin", Reason: "inverse-uniform support must be positive"}
		}
	default:
		return s, &ConfigError{Field: "Control.RPrior", Reason: "unsupported prior family"}
	}
	if c.InclusionProb <= 0 || c.InclusionProb >= 1 {
		return s, &ConfigError{Field: "Control.InclusionProb", Reason: "must lie strictly in (0,1)"}
	}

	if s.ReportEvery == 0 {
		s.ReportEvery = s.Iter / 10
		if s.ReportEvery == 0 {
			s.ReportEvery = 1
		}
	}
	if s.Source == nil {
		s.Source = rand.NewSource(defaultSeed)
	}
	return s, nil
}

func setDefault(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

// logRPrior evaluates the log prior density of a single smoothness value
// under the configured family. Values outside the support return -Inf.
func (c *Control) logRPrior(r float64) float64 {
	switch c.RPrior {
	case RPriorGamma:
		if r <= 0 {
			return math.Inf(-1)
		}
		return c.RShape*math.Log(c.RRate) - lgamma(c.RShape) + (c.RShape-1)*math.Log(r) - c.RRate*r
	case RPriorUniform:
		if r < c.RMin || r > c.RMax {
			return math.Inf(-1)
		}
		return -math.Log(c.RMax - c.RMin)
	case RPriorInvUniform:
		if r < c.RMin || r > c.RMax {
			return math.Inf(-1)
		}
		return -math.Log(1/c.RMin-1/c.RMax) - 2*math.Log(r)
	}
	panic("bkmr: unreachable prior family")
}

// logLambdaPrior evaluates the log gamma prior on a kernel-variance ratio
// component, parameterized by its mean and standard deviation.
func (c *Control) logLambdaPrior(lambda float64) float64 {
	if lambda <= 0 {
		return math.Inf(-1)
	}
	shape := c.MuLambda * c.MuLambda / (c.SdLambda * c.SdLambda)
	rate := c.MuLambda / (c.SdLambda * c.SdLambda)
	return shape*math.Log(rate) - lgamma(shape) + (shape-1)*math.Log(lambda) - rate*lambda
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
