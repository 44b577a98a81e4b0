package bkmr

// resolveGroups turns the Groups setting into the group structure walked by
// the update plan. A nil mapping means component-wise selection, realized
// as one singleton group per exposure column; otherwise columns sharing an
// identifier form one group, ordered by first appearance. The length of the
// mapping was validated against the exposure count during settings
// resolution, so every column belongs to exactly one group.
func resolveGroups(groups []int, m int) []selGroup {
	if groups == nil {
		out := make([]selGroup, m)
		for j := 0; j < m; j++ {
			out[j] = selGroup{id: j, members: []int{j}}
		}
		return out
	}
	idx := make(map[int]int)
	var out []selGroup
	for j, id := range groups {
		gi, ok := idx[id]
		if !ok {
			gi = len(out)
			idx[id] = gi
			out = append(out, selGroup{id: id})
		}
		out[gi].members = append(out[gi].members, j)
	}
	return out
}

// PIPs returns the posterior inclusion probability of each exposure: the
// fraction of retained iterations with δ_m = 1. Without variable selection
// every entry is 1.
func (m *Model) PIPs() []float64 {
	nv := len(m.chain.samples[0].Delta)
	counts := make([]float64, nv)
	for _, smp := range m.chain.samples {
		for j, d := range smp.Delta {
			if d {
				counts[j]++
			}
		}
	}
	n := float64(m.chain.Len())
	for j := range counts {
		counts[j] /= n
	}
	return counts
}

// GroupPIPs returns, per group identifier, the fraction of retained
// iterations in which the group was active, that is, in which at least one
// member had δ_m = 1. For component-wise selection each variable is its own
// group and the values coincide with PIPs. A fit without variable selection
// has no groups and the map is empty.
func (m *Model) GroupPIPs() map[int]float64 {
	out := make(map[int]float64, len(m.groups))
	n := float64(m.chain.Len())
	for _, g := range m.groups {
		var count float64
		for _, smp := range m.chain.samples {
			for _, j := range g.members {
				if smp.Delta[j] {
					count++
					break
				}
			}
		}
		out[g.id] = count / n
	}
	return out
}
