package bkmr

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// gammaMeanSD is the gamma proposal used by the random-walk moves,
// parameterized by its mean and standard deviation.
func gammaMeanSD(mean, sd float64, src rand.Source) distuv.Gamma {
	return distuv.Gamma{
		Alpha: mean * mean / (sd * sd),
		Beta:  mean / (sd * sd),
		Src:   src,
	}
}

func (s *sampler) curLogLik() float64 {
	return marginalLogLik(&s.chol, s.resid, s.cur.Sigsq)
}

func (s *sampler) logAccept(logA float64) bool {
	if logA >= 0 {
		return true
	}
	return math.Log(s.rng.Float64()) < logA
}

// updateLambda is a Metropolis-Hastings random-walk step for one component
// of the kernel-variance ratio: no closed-form conditional exists under the
// gaussian family once h is integrated out. The proposal is a gamma
// distribution whose mean equals the current value; the acceptance ratio is
// the marginal-likelihood ratio times the prior ratio times the asymmetric
// proposal-density ratio.
func (s *sampler) updateLambda(j int) error {
	c := &s.set.Control
	cur := s.cur.Lambda[j]
	prop := gammaMeanSD(cur, c.LambdaJump, s.src)
	lNew := prop.Rand()

	lambdaNew := append([]float64(nil), s.cur.Lambda...)
	lambdaNew[j] = lNew
	var cholNew mat.Cholesky
	if err := factorV(&cholNew, s.k, s.b, lambdaNew); err != nil {
		lNew = lNew*(1+propPerturb) + propPerturb
		lambdaNew[j] = lNew
		if err := factorV(&cholNew, s.k, s.b, lambdaNew); err != nil {
			return err
		}
	}

	rev := gammaMeanSD(lNew, c.LambdaJump, s.src)
	logA := marginalLogLik(&cholNew, s.resid, s.cur.Sigsq) - s.curLogLik() +
		c.logLambdaPrior(lNew) - c.logLambdaPrior(cur) +
		rev.LogProb(cur) - prop.LogProb(lNew)

	acc := s.logAccept(logA)
	s.accLambda[j].record(acc)
	if acc {
		s.cur.Lambda[j] = lNew
		s.chol = cholNew
	}
	return nil
}

// factorRProposal builds the kernel matrix and covariance factorization for
// moving variable j to rNew, using the incremental single-column update. A
// factorization failure is retried once with a perturbed proposal; the
// value actually factorized is returned.
func (s *sampler) factorRProposal(j int, rNew float64, kProp *mat.SymDense, cholProp *mat.Cholesky) (float64, error) {
	zcol := mat.Col(nil, j, s.z)
	kernelUpdateColumn(kProp, s.k, zcol, rNew-s.cur.R[j])
	if err := factorV(cholProp, kProp, s.b, s.cur.Lambda); err == nil {
		return rNew, nil
	}
	rNew = rNew*(1+propPerturb) + propPerturb
	kernelUpdateColumn(kProp, s.k, zcol, rNew-s.cur.R[j])
	if err := factorV(cholProp, kProp, s.b, s.cur.Lambda); err != nil {
		return 0, err
	}
	return rNew, nil
}

// factorROff builds the state for setting variable j to zero. The retry
// path recomputes the kernel from scratch, discarding any drift accumulated
// by the incremental updates.
func (s *sampler) factorROff(j int, kProp *mat.SymDense, cholProp *mat.Cholesky) error {
	zcol := mat.Col(nil, j, s.z)
	kernelUpdateColumn(kProp, s.k, zcol, -s.cur.R[j])
	if err := factorV(cholProp, kProp, s.b, s.cur.Lambda); err == nil {
		return nil
	}
	r := append([]float64(nil), s.cur.R...)
	r[j] = 0
	kernelMatrix(kProp, s.z, r)
	return factorV(cholProp, kProp, s.b, s.cur.Lambda)
}

func (s *sampler) commitR(j int, rNew float64, kProp *mat.SymDense, cholProp *mat.Cholesky) {
	s.cur.R[j] = rNew
	s.cur.Delta[j] = rNew > 0
	s.k = kProp
	s.chol = *cholProp
}

// updateR is the per-variable smoothness move with selection disabled: a
// gamma random walk centered at the current value, accepted by the
// marginal-likelihood ratio under the configured r-prior family.
func (s *sampler) updateR(j int) error {
	c := &s.set.Control
	cur := s.cur.R[j]
	prop := gammaMeanSD(cur, c.RJump, s.src)
	rNew := prop.Rand()

	kProp := mat.NewSymDense(s.n, nil)
	var cholProp mat.Cholesky
	rNew, err := s.factorRProposal(j, rNew, kProp, &cholProp)
	if err != nil {
		return err
	}

	rev := gammaMeanSD(rNew, c.RJump, s.src)
	logA := marginalLogLik(&cholProp, s.resid, s.cur.Sigsq) - s.curLogLik() +
		c.logRPrior(rNew) - c.logRPrior(cur) +
		rev.LogProb(cur) - prop.LogProb(rNew)

	acc := s.logAccept(logA)
	s.accR[j].record(acc)
	if acc {
		s.commitR(j, rNew, kProp, &cholProp)
	}
	return nil
}

// updateGroup runs the selection scheme for one group. Component-wise
// selection is the singleton-group case of the same code path.
//
// An inactive group always takes a switch move: a uniformly chosen member
// is proposed on. An active group takes, with equal probability, either the
// switch branch (a uniformly chosen member is toggled; turning off the last
// active member deactivates the group) or the refine branch (a log-scale
// random walk on every included member). The uniform member choice cancels
// in the Hastings ratio; the certain-versus-coin branch selection between
// the inactive and single-active states does not, and enters as logMove.
//
// Group inclusion changes one member at a time; no move integrates the
// marginal likelihood over a group's whole smoothness vector, but the chain
// has the same joint posterior as its stationary distribution.
func (s *sampler) updateGroup(g selGroup) error {
	var nActive int
	for _, j := range g.members {
		if s.cur.Delta[j] {
			nActive++
		}
	}

	if nActive == 0 {
		// Forward move is certain; the reverse switch-off is chosen with
		// probability 1/2.
		j := g.members[s.rng.Intn(len(g.members))]
		return s.switchOn(j, math.Log(0.5))
	}

	if s.rng.Float64() < 0.5 {
		j := g.members[s.rng.Intn(len(g.members))]
		if !s.cur.Delta[j] {
			return s.switchOn(j, 0)
		}
		var logMove float64
		if nActive == 1 {
			// Deactivating the group; the reverse switch-on is certain
			// while this branch was chosen with probability 1/2.
			logMove = math.Log(2)
		}
		return s.switchOff(j, logMove)
	}

	// Refine branch: only attempted for included variables.
	for _, j := range g.members {
		if !s.cur.Delta[j] {
			continue
		}
		if err := s.refineR(j); err != nil {
			return err
		}
	}
	return nil
}

// switchOn proposes flipping δ_j from 0 to 1 with a fresh smoothness drawn
// from the configured gamma proposal, accepted by the M-H ratio including
// the prior inclusion odds.
func (s *sampler) switchOn(j int, logMove float64) error {
	c := &s.set.Control
	prop := gammaMeanSD(c.RMuProp, c.RSdProp, s.src)
	rNew := prop.Rand()

	kProp := mat.NewSymDense(s.n, nil)
	var cholProp mat.Cholesky
	rNew, err := s.factorRProposal(j, rNew, kProp, &cholProp)
	if err != nil {
		return err
	}

	logA := marginalLogLik(&cholProp, s.resid, s.cur.Sigsq) - s.curLogLik() +
		math.Log(c.InclusionProb/(1-c.InclusionProb)) +
		c.logRPrior(rNew) - prop.LogProb(rNew) +
		logMove

	acc := s.logAccept(logA)
	s.accR[j].record(acc)
	if acc {
		s.commitR(j, rNew, kProp, &cholProp)
	}
	return nil
}

// switchOff proposes flipping δ_j from 1 to 0, deterministically setting
// r_j = 0.
func (s *sampler) switchOff(j int, logMove float64) error {
	c := &s.set.Control
	kProp := mat.NewSymDense(s.n, nil)
	var cholProp mat.Cholesky
	if err := s.factorROff(j, kProp, &cholProp); err != nil {
		return err
	}

	rev := gammaMeanSD(c.RMuProp, c.RSdProp, s.src)
	logA := marginalLogLik(&cholProp, s.resid, s.cur.Sigsq) - s.curLogLik() +
		math.Log((1-c.InclusionProb)/c.InclusionProb) +
		rev.LogProb(s.cur.R[j]) - c.logRPrior(s.cur.R[j]) +
		logMove

	acc := s.logAccept(logA)
	s.accR[j].record(acc)
	if acc {
		s.commitR(j, 0, kProp, &cholProp)
	}
	return nil
}

// refineR is the within-model move for an included variable: a random walk
// that is symmetric on the log scale, so the Hastings ratio carries the
// Jacobian factor r_new/r_old.
func (s *sampler) refineR(j int) error {
	c := &s.set.Control
	cur := s.cur.R[j]
	rNew := cur * math.Exp(s.rng.NormFloat64()*c.RJumpRefine)

	kProp := mat.NewSymDense(s.n, nil)
	var cholProp mat.Cholesky
	rNew, err := s.factorRProposal(j, rNew, kProp, &cholProp)
	if err != nil {
		return err
	}

	logA := marginalLogLik(&cholProp, s.resid, s.cur.Sigsq) - s.curLogLik() +
		c.logRPrior(rNew) - c.logRPrior(cur) +
		math.Log(rNew) - math.Log(cur)

	acc := s.logAccept(logA)
	s.accR[j].record(acc)
	if acc {
		s.commitR(j, rNew, kProp, &cholProp)
	}
	return nil
}
