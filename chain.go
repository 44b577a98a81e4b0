package bkmr

// Sample is one retained posterior snapshot of the parameter and selection
// state.
type Sample struct {
	Beta   []float64 // regression coefficients, length p (may be empty)
	Sigsq  float64   // residual variance
	Lambda []float64 // kernel-variance ratio; length 1, or 2 with a random intercept
	R      []float64 // smoothness vector, length M, every component >= 0
	Delta  []bool    // inclusion indicators, length M
}

func (s Sample) clone() Sample {
	c := Sample{
		Beta:   make([]float64, len(s.Beta)),
		Sigsq:  s.Sigsq,
		Lambda: make([]float64, len(s.Lambda)),
		R:      make([]float64, len(s.R)),
		Delta:  make([]bool, len(s.Delta)),
	}
	copy(c.Beta, s.Beta)
	copy(c.Lambda, s.Lambda)
	copy(c.R, s.R)
	copy(c.Delta, s.Delta)
	return c
}

// Chain is the ordered, append-only sequence of posterior samples produced
// by a fit. Once sealed it is read-only; At returns defensive copies so the
// stored samples cannot be mutated through the accessor.
type Chain struct {
	samples []Sample
	sealed  bool
}

// Len returns the number of retained iterations.
func (c *Chain) Len() int { return len(c.samples) }

// At returns a copy of the i-th retained sample.
func (c *Chain) At(i int) Sample { return c.samples[i].clone() }

func (c *Chain) append(s Sample) {
	if c.sealed {
		panic("bkmr: append to sealed chain")
	}
	c.samples = append(c.samples, s.clone())
}

func (c *Chain) seal() { c.sealed = true }

// defaultSubset is the iteration subset used when a caller passes a nil
// selector: the second half of the chain, discarding burn-in.
func (c *Chain) defaultSubset() []int {
	n := len(c.samples)
	sel := make([]int, 0, n-n/2)
	for i := n / 2; i < n; i++ {
		sel = append(sel, i)
	}
	return sel
}

// subset validates an iteration selector against the sealed chain,
// returning the default subset for a nil selector.
func (c *Chain) subset(sel []int) ([]int, error) {
	if sel == nil {
		return c.defaultSubset(), nil
	}
	if len(sel) == 0 {
		return nil, &ConfigError{Field: "sel", Reason: "empty iteration subset"}
	}
	for _, i := range sel {
		if i < 0 || i >= len(c.samples) {
			return nil, &ConfigError{Field: "sel", Reason: "iteration index beyond the sealed chain"}
		}
	}
	out := make([]int, len(sel))
	copy(out, sel)
	return out, nil
}

// AcceptanceRates summarizes accept/reject outcomes per parameter family.
// Entries are zero for parameters with no proposals (for example r moves
// when a variable stayed excluded all chain long).
type AcceptanceRates struct {
	Lambda []float64 // per kernel-variance ratio component
	R      []float64 // per exposure, all M-H r moves pooled
}

type accCounter struct {
	accepted int
	proposed int
}

func (a *accCounter) record(accepted bool) {
	a.proposed++
	if accepted {
		a.accepted++
	}
}

func (a accCounter) rate() float64 {
	if a.proposed == 0 {
		return 0
	}
	return float64(a.accepted) / float64(a.proposed)
}
