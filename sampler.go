package bkmr

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Healthy operating band for random-walk acceptance rates. Rates outside
// it trigger a non-fatal ConvergenceWarning on the verbose channel.
const (
	acceptLow  = 0.1
	acceptHigh = 0.6
)

const propPerturb = 1e-6

// selGroup is one variable-selection group, resolved at fit start.
// Component-wise selection is the special case of singleton groups, so a
// single code path serves both modes.
type selGroup struct {
	id      int
	members []int
}

// updateStep is one entry of the per-iteration update plan. The plan is
// resolved once at fit start; the iteration loop just walks it in order.
type updateStep struct {
	name  string
	apply func() error
}

type samplerPhase int

const (
	phaseInit samplerPhase = iota
	phaseIterating
	phaseDone
)

// sampler holds the full MCMC state for one fit. It is strictly
// sequential: each iteration mutates cur exactly once through the ordered
// update plan and then appends a snapshot to the chain.
type sampler struct {
	// Immutable inputs.
	y *mat.VecDense
	z *mat.Dense
	x *mat.Dense    // nil when p == 0
	b *mat.SymDense // random intercept design, nil without ID

	n, m, p int

	set    Settings
	src    rand.Source
	rng    *rand.Rand
	logger *zap.Logger

	groups []selGroup // nil when selection is disabled

	// Mutable state.
	phase samplerPhase
	cur   Sample
	k     *mat.SymDense // kernel matrix at cur.R
	chol  mat.Cholesky  // factorization of V = I + λ1 K (+ λ2 B)
	resid *mat.VecDense // y - X cur.Beta

	chain     *Chain
	accLambda []accCounter
	accR      []accCounter

	plan []updateStep
}

func newSampler(y []float64, z, x *mat.Dense, set Settings) (*sampler, error) {
	n, m := z.Dims()
	if len(y) != n {
		return nil, &DimensionError{What: "length of y", Got: len(y), Want: n}
	}
	var p int
	if x != nil {
		xr, xc := x.Dims()
		if xr != n {
			return nil, &DimensionError{What: "rows of X", Got: xr, Want: n}
		}
		p = xc
	}
	set, err := set.resolve(n, m)
	if err != nil {
		return nil, err
	}

	s := &sampler{
		y:      mat.NewVecDense(n, append([]float64(nil), y...)),
		z:      z,
		x:      x,
		n:      n,
		m:      m,
		p:      p,
		set:    set,
		src:    set.Source,
		logger: set.Logger,
		chain:  &Chain{},
		accR:   make([]accCounter, m),
	}
	s.rng = rand.New(s.src)
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if set.ID != nil {
		s.b = intraclusterMatrix(set.ID)
	}

	if set.VarSel {
		s.groups = resolveGroups(set.Groups, m)
	}

	s.initState()
	s.buildPlan()
	return s, nil
}

// initState sets θ and δ before iteration 0 from the resolved control
// parameters.
func (s *sampler) initState() {
	c := &s.set.Control
	nLambda := 1
	if s.b != nil {
		nLambda = 2
	}
	s.cur = Sample{
		Beta:   make([]float64, s.p),
		Sigsq:  1,
		Lambda: make([]float64, nLambda),
		R:      make([]float64, s.m),
		Delta:  make([]bool, s.m),
	}
	for j := range s.cur.Lambda {
		s.cur.Lambda[j] = c.LambdaInit
	}
	s.accLambda = make([]accCounter, nLambda)
	for j := 0; j < s.m; j++ {
		if s.set.VarSel {
			// Selection chains start from the null model; switch moves
			// bring variables in.
			continue
		}
		s.cur.R[j] = c.RInit
		s.cur.Delta[j] = true
	}
	s.resid = mat.NewVecDense(s.n, nil)
	s.resid.CopyVec(s.y)
}

// buildPlan resolves the iteration-time conditionals (selection on/off,
// hierarchical vs component-wise, random-intercept dimensionality) into a
// fixed ordered list of update steps.
func (s *sampler) buildPlan() {
	s.plan = append(s.plan, updateStep{name: "beta", apply: s.updateBeta})
	s.plan = append(s.plan, updateStep{name: "sigsq", apply: s.updateSigsq})
	for j := range s.cur.Lambda {
		j := j
		s.plan = append(s.plan, updateStep{
			name:  fmt.Sprintf("lambda[%d]", j),
			apply: func() error { return s.updateLambda(j) },
		})
	}
	if !s.set.VarSel {
		for j := 0; j < s.m; j++ {
			j := j
			s.plan = append(s.plan, updateStep{
				name:  fmt.Sprintf("r[%d]", j),
				apply: func() error { return s.updateR(j) },
			})
		}
		return
	}
	for _, g := range s.groups {
		g := g
		s.plan = append(s.plan, updateStep{
			name:  fmt.Sprintf("group[%d]", g.id),
			apply: func() error { return s.updateGroup(g) },
		})
	}
}

// run executes the fixed iteration count. On a numerical failure the chain
// is sealed at the last fully-committed iteration and the error returned.
func (s *sampler) run() error {
	if s.phase != phaseInit {
		panic("bkmr: sampler reuse")
	}
	s.phase = phaseIterating
	defer func() { s.phase = phaseDone }()

	kern := kernelMatrix(nil, s.z, s.cur.R)
	s.k = kern
	if err := factorV(&s.chol, s.k, s.b, s.cur.Lambda); err != nil {
		s.chain.seal()
		return &NumericalError{Iter: 0, Step: "init", Err: err}
	}

	start := time.Now()
	for iter := 0; iter < s.set.Iter; iter++ {
		for _, step := range s.plan {
			if err := step.apply(); err != nil {
				s.chain.seal()
				return &NumericalError{Iter: iter, Step: step.name, Err: err}
			}
		}
		s.chain.append(s.cur)

		if s.set.Verbose && (iter+1)%s.set.ReportEvery == 0 {
			s.logger.Info("mcmc progress",
				zap.Int("iteration", iter+1),
				zap.Int("total", s.set.Iter),
				zap.Duration("elapsed", time.Since(start)),
				zap.Float64s("lambda_accept", counterRates(s.accLambda)),
				zap.Float64s("r_accept", counterRates(s.accR)),
			)
		}
	}
	s.chain.seal()
	s.warnAcceptance()
	return nil
}

func counterRates(cs []accCounter) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.rate()
	}
	return out
}

// warnAcceptance emits ConvergenceWarning diagnostics for acceptance rates
// outside the healthy band. Diagnostic only; never blocks progress.
func (s *sampler) warnAcceptance() {
	if !s.set.Verbose {
		return
	}
	warn := func(name string, c accCounter) {
		r := c.rate()
		if c.proposed == 0 || (r >= acceptLow && r <= acceptHigh) {
			return
		}
		s.logger.Warn("acceptance rate outside healthy band",
			zap.String("parameter", name),
			zap.Float64("rate", r),
			zap.Float64("low", acceptLow),
			zap.Float64("high", acceptHigh),
		)
	}
	for j, c := range s.accLambda {
		warn(fmt.Sprintf("lambda[%d]", j), c)
	}
	for j, c := range s.accR {
		warn(fmt.Sprintf("r[%d]", j), c)
	}
}

func (s *sampler) acceptanceRates() AcceptanceRates {
	return AcceptanceRates{
		Lambda: counterRates(s.accLambda),
		R:      counterRates(s.accR),
	}
}
